// Package copytree copies a directory tree the way account provisioning
// needs it copied: regular files, directories, symlinks, hardlinks and
// special files are reproduced at the destination with ownership remapped
// by policy, permissions and timestamps preserved, optional
// ACL/xattr/security-label propagation, and a strict no-clobber rule for
// pre-existing destination entries (directories excepted, which are
// merged into).
//
// The walk is single-threaded and purely blocking. Every operation is
// directory-relative against an already-open descriptor, which is the
// defence against an attacker swapping a path component between check and
// use while a privileged process populates the tree.
package copytree

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/skel/internal/event"
	"github.com/bamsammich/skel/internal/metadata"
	"github.com/bamsammich/skel/internal/stats"
)

// Options controls one tree copy.
type Options struct {
	// CopyRoot creates the destination root itself, failing if it
	// already exists. When false both roots must be existing
	// directories and only their contents are copied.
	CopyRoot bool

	// ResetLabels requests default security labels at the destination
	// instead of propagating the source's. It also suppresses the
	// extended attribute copy: a relabel is a deliberate attribute
	// replacement, not a preservation.
	ResetLabels bool

	// Ownership remap, applied independently to uid and gid.
	// UnchangedID as an old id matches every owner; as a new id it
	// leaves ownership alone.
	OldUID, NewUID int
	OldGID, NewGID int

	// Events receives per-entry progress and failure events. Nil
	// disables reporting; a slow subscriber loses events rather than
	// stalling the copy.
	Events chan<- event.Event

	// Stats receives counter updates. Optional.
	Stats *stats.Collector

	// Metadata overrides the platform label/ACL/xattr backends.
	// Nil selects metadata.Default().
	Metadata *metadata.Capabilities
}

// traversal is the state of one top-level tree copy: the original root
// paths for symlink and hardlink prefix rewriting, plus the live hardlink
// registry. Created by CopyTree and threaded through the recursion, never
// shared between copies.
type traversal struct {
	srcRoot string
	dstRoot string
	opts    Options
	caps    metadata.Capabilities
	links   *linkRegistry
}

// CopyTree copies the tree rooted at srcRoot to dstRoot.
//
// Per-entry failures do not abort the walk: every sibling is still
// attempted and the aggregate error reports the first failure and how
// many more occurred. A failed copy leaves the destination partially
// populated; nothing is rolled back.
func CopyTree(srcRoot, dstRoot string, opts Options) error {
	caps := metadata.Default()
	if opts.Metadata != nil {
		caps = *opts.Metadata
	}
	tv := &traversal{
		srcRoot: srcRoot,
		dstRoot: dstRoot,
		opts:    opts,
		caps:    caps,
		links:   newLinkRegistry(),
	}

	src := PathPair{FullPath: srcRoot, Dirfd: unix.AT_FDCWD, Name: srcRoot}
	dst := PathPair{FullPath: dstRoot, Dirfd: unix.AT_FDCWD, Name: dstRoot}

	tv.emit(event.TreeStarted, dstRoot, 0)

	var err error
	if opts.CopyRoot {
		err = tv.copyRoot(src, dst)
	} else {
		err = tv.walkDir(src, dst)
	}

	// Restore the default create label once per top-level copy, error
	// paths included.
	if rerr := tv.caps.Labels.Reset(); rerr != nil && err == nil {
		err = rerr
	}

	tv.emit(event.TreeComplete, dstRoot, 0)
	return err
}

// copyRoot handles CopyRoot: the destination must not exist yet, the
// source must be a directory, and the root is dispatched through the
// standard entry dispatcher exactly once.
func (tv *traversal) copyRoot(src, dst PathPair) error {
	var st unix.Stat_t
	err := unix.Fstatat(dst.Dirfd, dst.Name, &st, 0)
	if err == nil {
		return fmt.Errorf("destination %s already exists", dst.FullPath)
	}
	if !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("stat %s: %w", dst.FullPath, err)
	}

	if err := unix.Fstatat(src.Dirfd, src.Name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("stat %s: %w", src.FullPath, err)
	}
	if statMode(&st)&unix.S_IFMT != unix.S_IFDIR {
		return fmt.Errorf("%s is not a directory", src.FullPath)
	}

	return tv.copyEntry(src, dst)
}

// walkDir opens both directories, enumerates the source, and dispatches
// every entry. Entry failures are recorded and the remaining siblings are
// still attempted.
func (tv *traversal) walkDir(src, dst PathPair) error {
	const dirFlags = unix.O_DIRECTORY | unix.O_RDONLY | unix.O_NOFOLLOW | unix.O_CLOEXEC

	srcFd, err := unix.Openat(src.Dirfd, src.Name, dirFlags, 0)
	if err != nil {
		return fmt.Errorf("open source dir %s: %w", src.FullPath, err)
	}
	srcDir := os.NewFile(uintptr(srcFd), src.FullPath)
	defer srcDir.Close()

	dstFd, err := unix.Openat(dst.Dirfd, dst.Name, dirFlags, 0)
	if err != nil {
		return fmt.Errorf("open destination dir %s: %w", dst.FullPath, err)
	}
	defer unix.Close(dstFd)

	// Readdirnames never returns "." or "..".
	names, err := srcDir.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", src.FullPath, err)
	}

	var firstErr error
	failed := 0
	for _, name := range names {
		srcEntry := src.child(srcFd, name)
		dstEntry := dst.child(dstFd, name)

		if err := tv.copyEntry(srcEntry, dstEntry); err != nil {
			tv.fail(dstEntry.FullPath, err)
			if firstErr == nil {
				firstErr = err
			}
			failed++
		}
	}

	if failed > 1 {
		return fmt.Errorf("%w (and %d more entries under %s)", firstErr, failed-1, src.FullPath)
	}
	return firstErr
}

// copyEntry classifies one source entry and dispatches to the matching
// copier. The classification never follows symlinks.
func (tv *traversal) copyEntry(src, dst PathPair) error {
	var st unix.Stat_t
	if err := unix.Fstatat(src.Dirfd, src.Name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("stat %s: %w", src.FullPath, err)
	}
	times := statTimes(&st)
	fileType := statMode(&st) & unix.S_IFMT

	var err error
	if fileType == unix.S_IFDIR {
		err = tv.copyDir(src, dst, &st, times)
	}

	// The existence check runs after the directory branch so that a
	// pre-existing destination directory is still recursed into; every
	// other pre-existing destination entry is left untouched.
	var dstSt unix.Stat_t
	if unix.Fstatat(dst.Dirfd, dst.Name, &dstSt, unix.AT_SYMLINK_NOFOLLOW) == nil {
		if fileType != unix.S_IFDIR {
			tv.skip(dst.FullPath)
		}
		return err
	}
	if fileType == unix.S_IFDIR {
		return err
	}

	switch {
	case fileType == unix.S_IFLNK:
		return tv.copySymlink(src, dst, &st, times)
	default:
		rec := tv.links.checkLink(src.FullPath, statDevIno(&st), statNlink(&st), tv.srcRoot, tv.dstRoot)
		switch {
		case rec != nil:
			return tv.copyHardlink(dst, rec)
		case fileType != unix.S_IFREG:
			return tv.copySpecial(src, dst, &st, times)
		default:
			return tv.copyFile(src, dst, &st, times)
		}
	}
}

func (tv *traversal) emit(typ event.Type, path string, size int64) {
	event.Emit(tv.opts.Events, event.Event{Type: typ, Path: path, Size: size})
}

func (tv *traversal) skip(path string) {
	event.Emit(tv.opts.Events, event.Event{Type: event.EntrySkipped, Path: path})
	if tv.opts.Stats != nil {
		tv.opts.Stats.AddEntriesSkipped(1)
	}
}

func (tv *traversal) fail(path string, err error) {
	event.Emit(tv.opts.Events, event.Event{Type: event.EntryFailed, Path: path, Error: err})
	if tv.opts.Stats != nil {
		tv.opts.Stats.AddEntriesFailed(1)
	}
}
