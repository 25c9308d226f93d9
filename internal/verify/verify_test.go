package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/skel/internal/event"
	"github.com/bamsammich/skel/internal/stats"
)

func TestVerify_MatchingFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "sub"), 0755))

	for _, relPath := range []string{"profile", "sub/one"} {
		data := []byte("content of " + relPath)
		require.NoError(t, os.WriteFile(filepath.Join(src, relPath), data, 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dst, relPath), data, 0644))
	}

	collector := stats.NewCollector()
	events := make(chan event.Event, 64)

	vr := Verify(context.Background(), Config{
		SrcRoot: src,
		DstRoot: dst,
		Workers: 2,
		Stats:   collector,
		Events:  events,
	})
	close(events)

	assert.Equal(t, int64(2), vr.Verified)
	assert.Equal(t, int64(0), vr.Failed)
	assert.Empty(t, vr.Mismatches)
	assert.Equal(t, int64(2), collector.Snapshot().FilesVerified)
}

func TestVerify_CorruptedFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(src, "profile"), []byte("correct"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "profile"), []byte("corrupted"), 0644))

	collector := stats.NewCollector()

	vr := Verify(context.Background(), Config{
		SrcRoot: src,
		DstRoot: dst,
		Workers: 1,
		Stats:   collector,
	})

	assert.Equal(t, int64(0), vr.Verified)
	assert.Equal(t, int64(1), vr.Failed)
	require.Len(t, vr.Mismatches, 1)
	assert.Equal(t, "profile", vr.Mismatches[0].Path)
	assert.Contains(t, vr.Mismatches[0].Detail, "content hash")
	assert.Equal(t, int64(1), collector.Snapshot().FilesVerifyFailed)
}

func TestVerify_SymlinkTargets(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	// Relative target copied verbatim.
	require.NoError(t, os.Symlink("profile", filepath.Join(src, "rel")))
	require.NoError(t, os.Symlink("profile", filepath.Join(dst, "rel")))

	// Absolute internal target must have been rewritten.
	require.NoError(t, os.Symlink(filepath.Join(src, "profile"), filepath.Join(src, "abs")))
	require.NoError(t, os.Symlink(filepath.Join(dst, "profile"), filepath.Join(dst, "abs")))

	// A link still pointing into the source tree is a mismatch.
	require.NoError(t, os.Symlink(filepath.Join(src, "profile"), filepath.Join(src, "stale")))
	require.NoError(t, os.Symlink(filepath.Join(src, "profile"), filepath.Join(dst, "stale")))

	vr := Verify(context.Background(), Config{SrcRoot: src, DstRoot: dst, Workers: 1})

	assert.Equal(t, int64(2), vr.Verified)
	assert.Equal(t, int64(1), vr.Failed)
	require.Len(t, vr.Mismatches, 1)
	assert.Equal(t, "stale", vr.Mismatches[0].Path)
	assert.Contains(t, vr.Mismatches[0].Detail, "symlink target")
}

func TestVerify_HardlinkTopology(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(src, "mail"), []byte("spool"), 0644))
	require.NoError(t, os.Link(filepath.Join(src, "mail"), filepath.Join(src, "mbox")))

	// Same content at the destination but as two independent inodes.
	require.NoError(t, os.WriteFile(filepath.Join(dst, "mail"), []byte("spool"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "mbox"), []byte("spool"), 0644))

	vr := Verify(context.Background(), Config{SrcRoot: src, DstRoot: dst, Workers: 1})

	assert.Equal(t, int64(2), vr.Verified, "content still matches")
	assert.Equal(t, int64(1), vr.Failed)
	require.Len(t, vr.Mismatches, 1)
	assert.Contains(t, vr.Mismatches[0].Detail, "not hardlinked")
}

func TestVerify_ExtraDestinationEntriesIgnored(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	// Merged trees legitimately carry entries the skeleton never had.
	require.NoError(t, os.WriteFile(filepath.Join(dst, "local-only"), []byte("x"), 0644))

	vr := Verify(context.Background(), Config{SrcRoot: src, DstRoot: dst, Workers: 1})

	assert.Equal(t, int64(0), vr.Verified)
	assert.Equal(t, int64(0), vr.Failed)
}

func TestVerify_Events(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(src, "ok"), []byte("same"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "ok"), []byte("same"), 0644))

	require.NoError(t, os.WriteFile(filepath.Join(src, "bad"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "bad"), []byte("b"), 0644))

	events := make(chan event.Event, 64)
	var collected []event.Event
	done := make(chan struct{})
	go func() {
		for ev := range events {
			collected = append(collected, ev)
		}
		close(done)
	}()

	Verify(context.Background(), Config{
		SrcRoot: src,
		DstRoot: dst,
		Workers: 1,
		Events:  events,
	})
	close(events)
	<-done

	typeSet := make(map[event.Type]bool)
	for _, ev := range collected {
		typeSet[ev.Type] = true
	}

	assert.True(t, typeSet[event.VerifyStarted])
	assert.True(t, typeSet[event.VerifyOK])
	assert.True(t, typeSet[event.VerifyFailed])
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	h1, err := hashFile(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	require.NoError(t, os.WriteFile(path, []byte("other"), 0644))
	h3, err := hashFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	_, err = hashFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
