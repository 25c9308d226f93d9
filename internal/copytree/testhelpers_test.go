//go:build linux || darwin

package copytree_test

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/skel/internal/event"
)

// createSkelTree populates root with a standard skeleton tree:
//
//	profile              (0644, 18 bytes)
//	secret               (0600)
//	sub/one sub/two sub/three
//	sub/deep/leaf
//	abs-link             → <root>/sub/one (absolute, internal)
//	rel-link             → profile (relative)
//	ext-link             → /etc/passwd (absolute, external)
//	dangling             → no-such-file
//	mail                 hardlinked to sub/mailbox (nlink=2)
//	queue                FIFO
func createSkelTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "profile"), []byte("export EDITOR=vi\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret"), []byte("token\n"), 0o600))

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "sub", name),
			[]byte("content of "+name+"\n"),
			0o644,
		))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "leaf"), []byte("leaf\n"), 0o644))

	require.NoError(t, os.Symlink(filepath.Join(root, "sub", "one"), filepath.Join(root, "abs-link")))
	require.NoError(t, os.Symlink("profile", filepath.Join(root, "rel-link")))
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(root, "ext-link")))
	require.NoError(t, os.Symlink("no-such-file", filepath.Join(root, "dangling")))

	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "mailbox"), []byte("mail spool\n"), 0o660))
	require.NoError(t, os.Link(filepath.Join(root, "sub", "mailbox"), filepath.Join(root, "mail")))

	require.NoError(t, unix.Mkfifo(filepath.Join(root, "queue"), 0o600))
}

// verifySkelCopy checks that dst contains a faithful copy of the tree
// created by createSkelTree under src.
func verifySkelCopy(t *testing.T, src, dst string) {
	t.Helper()

	for _, rel := range []string{
		"profile",
		"secret",
		filepath.Join("sub", "one"),
		filepath.Join("sub", "two"),
		filepath.Join("sub", "three"),
		filepath.Join("sub", "deep", "leaf"),
		filepath.Join("sub", "mailbox"),
	} {
		want, err := os.ReadFile(filepath.Join(src, rel))
		require.NoError(t, err, "read src %s", rel)
		got, err := os.ReadFile(filepath.Join(dst, rel))
		require.NoError(t, err, "read dst %s", rel)
		require.Equal(t, want, got, "content mismatch: %s", rel)

		srcInfo, err := os.Lstat(filepath.Join(src, rel))
		require.NoError(t, err)
		dstInfo, err := os.Lstat(filepath.Join(dst, rel))
		require.NoError(t, err)
		require.Equal(t, srcInfo.Mode().Perm(), dstInfo.Mode().Perm(), "mode mismatch: %s", rel)
	}

	// Internal absolute symlink rewritten to the destination tree.
	target, err := os.Readlink(filepath.Join(dst, "abs-link"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dst, "sub", "one"), target)

	// Relative and external targets copied verbatim.
	target, err = os.Readlink(filepath.Join(dst, "rel-link"))
	require.NoError(t, err)
	require.Equal(t, "profile", target)

	target, err = os.Readlink(filepath.Join(dst, "ext-link"))
	require.NoError(t, err)
	require.Equal(t, "/etc/passwd", target)

	// Dangling target preserved unresolved.
	target, err = os.Readlink(filepath.Join(dst, "dangling"))
	require.NoError(t, err)
	require.Equal(t, "no-such-file", target)

	// Hardlink pair shares one inode.
	requireSameInode(t, filepath.Join(dst, "mail"), filepath.Join(dst, "sub", "mailbox"))

	// FIFO recreated as a FIFO.
	fifoInfo, err := os.Lstat(filepath.Join(dst, "queue"))
	require.NoError(t, err)
	require.Equal(t, os.ModeNamedPipe, fifoInfo.Mode()&os.ModeType, "queue should be a FIFO")
}

func requireSameInode(t *testing.T, a, b string) {
	t.Helper()
	as := statOf(t, a)
	bs := statOf(t, b)
	require.Equal(t, as.Dev, bs.Dev, "%s and %s on different devices", a, b)
	require.Equal(t, as.Ino, bs.Ino, "%s and %s are separate inodes", a, b)
}

func statOf(t *testing.T, path string) *syscall.Stat_t {
	t.Helper()
	info, err := os.Lstat(path)
	require.NoError(t, err)
	st, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	return st
}

func uidOf(t *testing.T, path string) int {
	t.Helper()
	return int(statOf(t, path).Uid)
}

// setKnownTimes gives path a fixed old mtime so preservation is
// distinguishable from "freshly created".
func setKnownTimes(t *testing.T, path string) time.Time {
	t.Helper()
	when := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, when, when))
	return when
}

// collectEvents returns a buffered event channel and a getter that drains
// and returns everything received. The getter may be called once.
func collectEvents(t *testing.T) (chan event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 4096)
	return ch, func() []event.Event {
		close(ch)
		var collected []event.Event
		for ev := range ch {
			collected = append(collected, ev)
		}
		return collected
	}
}

func eventsOfType(evs []event.Event, typ event.Type) []event.Event {
	var out []event.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
