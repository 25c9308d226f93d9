//go:build !linux

package metadata

// Default returns noop capabilities on platforms without the Linux
// xattr/ACL/SELinux subsystems.
func Default() Capabilities {
	return Noop()
}
