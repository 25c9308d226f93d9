// Package metadata provides the pluggable backends for the optional
// metadata a tree copy can carry: security labels, POSIX ACLs, and
// extended attributes. Each backend reports a tri-state outcome: nil,
// ErrUnsupported (destination filesystem lacks the feature, recoverable),
// or a real error.
package metadata

import "errors"

// ErrUnsupported is returned when the source or destination filesystem does
// not support the requested metadata subsystem. Callers treat it as a
// recoverable outcome: the copy proceeds without that metadata.
var ErrUnsupported = errors.New("metadata: not supported by filesystem")

// Ref identifies one filesystem entry by an open parent directory
// descriptor and a name. Path is carried for error messages only; all
// descriptor acquisition goes through (Dirfd, Name) with O_NOFOLLOW.
type Ref struct {
	Path  string
	Dirfd int
	Name  string
}

// XattrCopier copies extended attributes, excluding the ACL category
// (ACLs need their own copier so that filesystems without ACL support do
// not end up with unexpected permissions).
type XattrCopier interface {
	Copy(src, dst Ref) error
	CopyFd(srcFd, dstFd int) error
}

// ACLCopier copies POSIX access control lists.
type ACLCopier interface {
	Copy(src, dst Ref) error
	CopyFd(srcFd, dstFd int) error
}

// Labeler arms the security label for objects about to be created, so they
// are born carrying the right label rather than relabeled afterwards.
// mode is the file type bits of the object to be created.
type Labeler interface {
	SetCreateLabel(src Ref, mode uint32) error
	Reset() error
}

// Capabilities bundles the three backends used by a tree copy.
type Capabilities struct {
	Labels Labeler
	ACLs   ACLCopier
	Xattrs XattrCopier
}

type noopLabeler struct{}

func (noopLabeler) SetCreateLabel(Ref, uint32) error { return nil }
func (noopLabeler) Reset() error                     { return nil }

type noopCopier struct{}

func (noopCopier) Copy(Ref, Ref) error   { return nil }
func (noopCopier) CopyFd(int, int) error { return nil }

// Noop returns capabilities that do nothing. Used on platforms without the
// subsystems and in tests; the copy engine's control flow never branches on
// feature presence.
func Noop() Capabilities {
	return Capabilities{
		Labels: noopLabeler{},
		ACLs:   noopCopier{},
		Xattrs: noopCopier{},
	}
}
