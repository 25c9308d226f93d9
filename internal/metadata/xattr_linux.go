//go:build linux

package metadata

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// ACL-category attribute names. Excluded from the generic xattr copy and
// handled by the ACL copier instead.
const (
	aclAccessAttr  = "system.posix_acl_access"
	aclDefaultAttr = "system.posix_acl_default"
)

type xattrCopier struct{}

// NewXattrCopier returns the Linux xattr backend.
func NewXattrCopier() XattrCopier { return xattrCopier{} }

func (c xattrCopier) Copy(src, dst Ref) error {
	srcFd, dstFd, err := openPair(src, dst)
	if err != nil {
		return err
	}
	defer unix.Close(srcFd)
	defer unix.Close(dstFd)
	return c.CopyFd(srcFd, dstFd)
}

func (xattrCopier) CopyFd(srcFd, dstFd int) error {
	names, err := listXattrFd(srcFd)
	if err != nil {
		return wrapUnsupported(err)
	}
	for _, name := range names {
		if isACLAttr(name) {
			continue
		}
		val, err := getXattrFd(srcFd, name)
		if err != nil {
			if errors.Is(err, unix.ENODATA) {
				continue // removed between list and get
			}
			return wrapUnsupported(err)
		}
		if err := unix.Fsetxattr(dstFd, name, val, 0); err != nil {
			return wrapUnsupported(fmt.Errorf("setxattr %s: %w", name, err))
		}
	}
	return nil
}

type aclCopier struct{}

// NewACLCopier returns the Linux ACL backend. POSIX ACLs live in the
// system.posix_acl_* attribute pair, so the copy is an xattr copy
// restricted to exactly those names.
func NewACLCopier() ACLCopier { return aclCopier{} }

func (c aclCopier) Copy(src, dst Ref) error {
	srcFd, dstFd, err := openPair(src, dst)
	if err != nil {
		return err
	}
	defer unix.Close(srcFd)
	defer unix.Close(dstFd)
	return c.CopyFd(srcFd, dstFd)
}

func (aclCopier) CopyFd(srcFd, dstFd int) error {
	for _, name := range []string{aclAccessAttr, aclDefaultAttr} {
		val, err := getXattrFd(srcFd, name)
		if err != nil {
			if errors.Is(err, unix.ENODATA) {
				continue // no ACL of this kind on the source
			}
			return wrapUnsupported(err)
		}
		if err := unix.Fsetxattr(dstFd, name, val, 0); err != nil {
			return wrapUnsupported(fmt.Errorf("setxattr %s: %w", name, err))
		}
	}
	return nil
}

func isACLAttr(name string) bool {
	return name == aclAccessAttr || name == aclDefaultAttr
}

// openPair opens both sides for metadata transfer. O_NONBLOCK so that
// opening a FIFO does not block waiting for a writer; O_NOFOLLOW because
// metadata is never copied through a symlink. Sockets cannot be opened at
// all (ENXIO), which surfaces as ErrUnsupported.
func openPair(src, dst Ref) (srcFd, dstFd int, err error) {
	const flags = unix.O_RDONLY | unix.O_NOFOLLOW | unix.O_NONBLOCK | unix.O_CLOEXEC
	srcFd, err = unix.Openat(src.Dirfd, src.Name, flags, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return 0, 0, ErrUnsupported
		}
		return 0, 0, fmt.Errorf("open %s: %w", src.Path, err)
	}
	dstFd, err = unix.Openat(dst.Dirfd, dst.Name, flags, 0)
	if err != nil {
		unix.Close(srcFd)
		if errors.Is(err, unix.ENXIO) {
			return 0, 0, ErrUnsupported
		}
		return 0, 0, fmt.Errorf("open %s: %w", dst.Path, err)
	}
	return srcFd, dstFd, nil
}

func listXattrFd(fd int) ([]string, error) {
	sz, err := unix.Flistxattr(fd, nil)
	if err != nil || sz == 0 {
		return nil, err
	}
	buf := make([]byte, sz)
	sz, err = unix.Flistxattr(fd, buf)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range strings.Split(string(buf[:sz]), "\x00") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func getXattrFd(fd int, name string) ([]byte, error) {
	sz, err := unix.Fgetxattr(fd, name, nil)
	if err != nil {
		return nil, err
	}
	if sz == 0 {
		return nil, nil
	}
	buf := make([]byte, sz)
	sz, err = unix.Fgetxattr(fd, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:sz], nil
}

func wrapUnsupported(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) {
		return ErrUnsupported
	}
	return err
}
