package copytree

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/skel/internal/event"
	"github.com/bamsammich/skel/internal/metadata"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyDir copies a directory. A destination that is already a directory
// is merged into without touching its metadata; otherwise the directory
// is created 0700 first so there is no window where a not-yet-chowned
// directory is accessible with its final permissions.
func (tv *traversal) copyDir(src, dst PathPair, st *unix.Stat_t, times [2]unix.Timespec) error {
	var dstSt unix.Stat_t
	if unix.Fstatat(dst.Dirfd, dst.Name, &dstSt, unix.AT_SYMLINK_NOFOLLOW) == nil &&
		statMode(&dstSt)&unix.S_IFMT == unix.S_IFDIR {
		tv.emit(event.DirMerged, dst.FullPath, 0)
		if tv.opts.Stats != nil {
			tv.opts.Stats.AddDirsMerged(1)
		}
		return tv.walkDir(src, dst)
	}

	if err := tv.setCreateLabel(src, unix.S_IFDIR); err != nil {
		return err
	}
	if err := unix.Mkdirat(dst.Dirfd, dst.Name, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dst.FullPath, err)
	}
	if err := tv.chownAt(dst, st); err != nil {
		return err
	}
	if err := unix.Fchmodat(dst.Dirfd, dst.Name, statMode(st)&0o7777, 0); err != nil {
		return fmt.Errorf("chmod %s: %w", dst.FullPath, err)
	}
	if err := tv.copyACLs(src, dst); err != nil {
		return err
	}
	if err := tv.copyXattrs(src, dst); err != nil {
		return err
	}

	tv.emit(event.DirCreated, dst.FullPath, 0)
	if tv.opts.Stats != nil {
		tv.opts.Stats.AddDirsCreated(1)
	}

	if err := tv.walkDir(src, dst); err != nil {
		return err
	}

	// Timestamps last: creating the children above disturbed the
	// directory's own mtime.
	return utimesAt(dst, times)
}

// copySymlink recreates a symlink. A target that points inside the
// original source tree is rewritten to point inside the destination tree;
// anything else, dangling targets included, is copied verbatim. Symlinks
// have no mode of their own, and ACLs/xattrs are not copied for them.
func (tv *traversal) copySymlink(src, dst PathPair, st *unix.Stat_t, times [2]unix.Timespec) error {
	target, err := readlinkAt(src)
	if err != nil {
		return err
	}
	if strings.HasPrefix(target, tv.srcRoot) {
		target = tv.dstRoot + target[len(tv.srcRoot):]
	}

	if err := tv.setCreateLabel(src, unix.S_IFLNK); err != nil {
		return err
	}
	if err := unix.Symlinkat(target, dst.Dirfd, dst.Name); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", dst.FullPath, target, err)
	}
	if err := tv.chownAt(dst, st); err != nil {
		return err
	}
	if err := utimesAt(dst, times); err != nil {
		return err
	}

	tv.emit(event.SymlinkCreated, dst.FullPath, 0)
	if tv.opts.Stats != nil {
		tv.opts.Stats.AddSymlinksCreated(1)
	}
	return nil
}

// copyHardlink links dst to the destination entry recorded on the first
// encounter of this inode. The linked inode already carries its metadata
// from that first copy, so there is no footer here.
func (tv *traversal) copyHardlink(dst PathPair, rec *linkRecord) error {
	if err := unix.Linkat(unix.AT_FDCWD, rec.dstPath, dst.Dirfd, dst.Name, 0); err != nil {
		return fmt.Errorf("link %s -> %s: %w", dst.FullPath, rec.dstPath, err)
	}
	tv.links.release(rec)

	tv.emit(event.HardlinkCreated, dst.FullPath, 0)
	if tv.opts.Stats != nil {
		tv.opts.Stats.AddHardlinksCreated(1)
	}
	return nil
}

// copySpecial recreates a FIFO, socket, or device node with the source's
// type bits, then applies the standard metadata footer.
func (tv *traversal) copySpecial(src, dst PathPair, st *unix.Stat_t, times [2]unix.Timespec) error {
	mode := statMode(st)

	if err := tv.setCreateLabel(src, mode&unix.S_IFMT); err != nil {
		return err
	}
	if err := unix.Mknodat(dst.Dirfd, dst.Name, mode&^uint32(0o7777), statRdev(st)); err != nil {
		return fmt.Errorf("mknod %s: %w", dst.FullPath, err)
	}
	if err := tv.chownAt(dst, st); err != nil {
		return err
	}
	if err := unix.Fchmodat(dst.Dirfd, dst.Name, mode&0o7777, 0); err != nil {
		return fmt.Errorf("chmod %s: %w", dst.FullPath, err)
	}
	if err := tv.copyACLs(src, dst); err != nil {
		return err
	}
	if err := tv.copyXattrs(src, dst); err != nil {
		return err
	}
	if err := utimesAt(dst, times); err != nil {
		return err
	}

	tv.emit(event.SpecialCreated, dst.FullPath, 0)
	if tv.opts.Stats != nil {
		tv.opts.Stats.AddSpecialsCreated(1)
	}
	return nil
}

// copyFile copies a regular file. The destination is created exclusively
// with mode 0600, and ownership and permissions are settled before any
// content is written: a crash mid-copy must never leave content behind
// under the wrong owner or mode.
func (tv *traversal) copyFile(src, dst PathPair, st *unix.Stat_t, times [2]unix.Timespec) error {
	// O_NOFOLLOW: a symlink masquerading as the regular file we just
	// classified is an attack, not a race to tolerate.
	ifd, err := unix.Openat(src.Dirfd, src.Name, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", src.FullPath, err)
	}
	defer unix.Close(ifd)

	if err := tv.setCreateLabel(src, unix.S_IFREG); err != nil {
		return err
	}

	ofd, err := unix.Openat(dst.Dirfd, dst.Name,
		unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_TRUNC|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst.FullPath, err)
	}

	if err := tv.copyFileMeta(src, dst, ifd, ofd, st); err != nil {
		unix.Close(ofd)
		return err
	}

	written, err := streamContent(ifd, ofd)
	if err != nil {
		unix.Close(ofd)
		return fmt.Errorf("copy %s: %w", dst.FullPath, err)
	}

	if err := unix.Close(ofd); err != nil && !errors.Is(err, unix.EINTR) {
		return fmt.Errorf("close %s: %w", dst.FullPath, err)
	}
	if err := utimesAt(dst, times); err != nil {
		return err
	}

	tv.emit(event.FileCopied, dst.FullPath, written)
	if tv.opts.Stats != nil {
		tv.opts.Stats.AddFilesCopied(1)
		tv.opts.Stats.AddBytesCopied(written)
	}
	return nil
}

// copyFileMeta applies the descriptor-based metadata footer of a regular
// file: ownership, permission bits, ACLs, then xattrs.
func (tv *traversal) copyFileMeta(src, dst PathPair, ifd, ofd int, st *unix.Stat_t) error {
	uid := resolveID(st.Uid, tv.opts.OldUID, tv.opts.NewUID)
	gid := resolveID(st.Gid, tv.opts.OldGID, tv.opts.NewGID)
	if err := unix.Fchown(ofd, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", dst.FullPath, err)
	}
	if err := unix.Fchmod(ofd, statMode(st)&0o7777); err != nil {
		return fmt.Errorf("chmod %s: %w", dst.FullPath, err)
	}
	if err := tv.caps.ACLs.CopyFd(ifd, ofd); err != nil && !errors.Is(err, metadata.ErrUnsupported) {
		return fmt.Errorf("copy ACLs to %s: %w", dst.FullPath, err)
	}
	if !tv.opts.ResetLabels {
		if err := tv.caps.Xattrs.CopyFd(ifd, ofd); err != nil && !errors.Is(err, metadata.ErrUnsupported) {
			return fmt.Errorf("copy xattrs to %s: %w", dst.FullPath, err)
		}
	}
	return nil
}

// streamContent copies everything from ifd to ofd in fixed-size chunks,
// retrying interrupted reads and writes. Any other error aborts, leaving
// the destination truncated.
func streamContent(ifd, ofd int) (int64, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var total int64
	for {
		n, err := unix.Read(ifd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return total, nil
		}

		written := 0
		for written < n {
			w, err := unix.Write(ofd, buf[written:n])
			if err != nil {
				if errors.Is(err, unix.EINTR) {
					continue
				}
				return total, fmt.Errorf("write: %w", err)
			}
			written += w
		}
		total += int64(n)
	}
}

// Footer helpers shared by the per-kind copiers.

func (tv *traversal) chownAt(dst PathPair, st *unix.Stat_t) error {
	uid := resolveID(st.Uid, tv.opts.OldUID, tv.opts.NewUID)
	gid := resolveID(st.Gid, tv.opts.OldGID, tv.opts.NewGID)
	if err := unix.Fchownat(dst.Dirfd, dst.Name, uid, gid, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("chown %s: %w", dst.FullPath, err)
	}
	return nil
}

func (tv *traversal) setCreateLabel(src PathPair, fileType uint32) error {
	if tv.opts.ResetLabels {
		// A reset means default labels at the destination; do not arm
		// the source's context.
		return nil
	}
	if err := tv.caps.Labels.SetCreateLabel(src.ref(), fileType); err != nil {
		return fmt.Errorf("set label for %s: %w", src.FullPath, err)
	}
	return nil
}

func (tv *traversal) copyACLs(src, dst PathPair) error {
	err := tv.caps.ACLs.Copy(src.ref(), dst.ref())
	if err != nil && !errors.Is(err, metadata.ErrUnsupported) {
		return fmt.Errorf("copy ACLs to %s: %w", dst.FullPath, err)
	}
	return nil
}

func (tv *traversal) copyXattrs(src, dst PathPair) error {
	if tv.opts.ResetLabels {
		return nil
	}
	err := tv.caps.Xattrs.Copy(src.ref(), dst.ref())
	if err != nil && !errors.Is(err, metadata.ErrUnsupported) {
		return fmt.Errorf("copy xattrs to %s: %w", dst.FullPath, err)
	}
	return nil
}

func utimesAt(dst PathPair, times [2]unix.Timespec) error {
	if err := unix.UtimesNanoAt(dst.Dirfd, dst.Name, times[:], unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("utimes %s: %w", dst.FullPath, err)
	}
	return nil
}

func readlinkAt(src PathPair) (string, error) {
	for size := 128; ; size *= 2 {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(src.Dirfd, src.Name, buf)
		if err != nil {
			return "", fmt.Errorf("readlink %s: %w", src.FullPath, err)
		}
		if n < size {
			return string(buf[:n]), nil
		}
	}
}
