//go:build linux

package metadata

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	selinuxAttr  = "security.selinux"
	selinuxMount = "/sys/fs/selinux"
	fscreatePath = "/proc/self/attr/fscreate"
)

type selinuxLabeler struct{}

// NewSELinuxLabeler returns a Labeler that propagates SELinux contexts:
// it reads the source entry's context and arms the process create-context,
// so the destination object is created already labeled.
func NewSELinuxLabeler() Labeler { return selinuxLabeler{} }

// SELinuxEnabled reports whether SELinux is active on this system.
func SELinuxEnabled() bool {
	_, err := os.Stat(selinuxMount)
	return err == nil
}

func (selinuxLabeler) SetCreateLabel(src Ref, _ uint32) error {
	// O_PATH pins the inode (symlinks included); the procfs link gives
	// the xattr syscalls a handle on exactly that inode, with no path
	// re-resolution.
	fd, err := unix.Openat(src.Dirfd, src.Name, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", src.Path, err)
	}
	defer unix.Close(fd)

	label, err := getXattrPath(fmt.Sprintf("/proc/self/fd/%d", fd), selinuxAttr)
	if err != nil {
		if errors.Is(err, unix.ENODATA) || errors.Is(err, unix.ENOTSUP) {
			return clearCreateLabel()
		}
		return fmt.Errorf("get label of %s: %w", src.Path, err)
	}

	if err := os.WriteFile(fscreatePath, label, 0); err != nil {
		return fmt.Errorf("set create label: %w", err)
	}
	return nil
}

func (selinuxLabeler) Reset() error {
	return clearCreateLabel()
}

func clearCreateLabel() error {
	// An empty write restores the default create context.
	if err := os.WriteFile(fscreatePath, nil, 0); err != nil {
		return fmt.Errorf("clear create label: %w", err)
	}
	return nil
}

func getXattrPath(path, name string) ([]byte, error) {
	sz, err := unix.Getxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, sz)
	sz, err = unix.Getxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	// Contexts are stored NUL-terminated.
	for sz > 0 && buf[sz-1] == 0 {
		sz--
	}
	return buf[:sz], nil
}

// Default returns the platform capabilities: xattr and ACL copy are always
// available on Linux (individual filesystems report ErrUnsupported), the
// SELinux labeler only when the subsystem is active.
func Default() Capabilities {
	caps := Capabilities{
		Labels: noopLabeler{},
		ACLs:   NewACLCopier(),
		Xattrs: NewXattrCopier(),
	}
	if SELinuxEnabled() {
		caps.Labels = NewSELinuxLabeler()
	}
	return caps
}
