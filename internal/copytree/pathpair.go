package copytree

import "github.com/bamsammich/skel/internal/metadata"

// PathPair identifies one filesystem entry for the duration of an
// operation: an open parent directory descriptor plus the entry's name.
// Every raw syscall goes through (Dirfd, Name) with the no-follow variant
// where one exists, so a concurrent rename of an intermediate component
// cannot redirect the operation. FullPath is presentation and
// prefix-rewriting only.
type PathPair struct {
	FullPath string
	Dirfd    int
	Name     string
}

// child builds the PathPair for an entry of this directory, relative to
// the directory's own open descriptor.
func (p PathPair) child(dirfd int, name string) PathPair {
	return PathPair{
		FullPath: p.FullPath + "/" + name,
		Dirfd:    dirfd,
		Name:     name,
	}
}

func (p PathPair) ref() metadata.Ref {
	return metadata.Ref{Path: p.FullPath, Dirfd: p.Dirfd, Name: p.Name}
}
