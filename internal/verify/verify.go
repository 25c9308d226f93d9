// Package verify checks a provisioned tree against the skeleton it was
// copied from: file content by BLAKE3 checksum, symlink targets with the
// source-to-destination rewrite applied, and hardlink topology by inode
// grouping.
package verify

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/skel/internal/event"
	"github.com/bamsammich/skel/internal/stats"
)

// Config controls a verification pass.
type Config struct {
	SrcRoot string
	DstRoot string
	Workers int
	Events  chan<- event.Event
	Stats   *stats.Collector
}

// Result holds the outcome of a verification pass.
type Result struct {
	Verified   int64
	Failed     int64
	Mismatches []Mismatch
}

// Mismatch records a single divergence between source and destination.
type Mismatch struct {
	Path   string
	Detail string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s", m.Path, m.Detail)
}

type devino struct {
	dev uint64
	ino uint64
}

// Verify walks the destination tree and compares it against the source.
// Regular files are checksummed by cfg.Workers goroutines; symlink targets
// and hardlink groups are checked inline.
func Verify(ctx context.Context, cfg Config) Result {
	event.Emit(cfg.Events, event.Event{Type: event.VerifyStarted, Path: cfg.DstRoot})

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	files, symlinks := collectEntries(ctx, cfg.SrcRoot, cfg.DstRoot)

	var mu sync.Mutex
	var result Result

	fail := func(rel, detail string) {
		mu.Lock()
		result.Failed++
		result.Mismatches = append(result.Mismatches, Mismatch{Path: rel, Detail: detail})
		mu.Unlock()
		if cfg.Stats != nil {
			cfg.Stats.AddFilesVerifyFailed(1)
		}
		event.Emit(cfg.Events, event.Event{Type: event.VerifyFailed, Path: rel})
	}
	pass := func(rel string) {
		mu.Lock()
		result.Verified++
		mu.Unlock()
		if cfg.Stats != nil {
			cfg.Stats.AddFilesVerified(1)
		}
		event.Emit(cfg.Events, event.Event{Type: event.VerifyOK, Path: rel})
	}

	taskCh := make(chan string, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				verifyFile(cfg, rel, pass, fail)
			}
		}()
	}

	for _, rel := range files {
		select {
		case <-ctx.Done():
		case taskCh <- rel:
		}
	}
	close(taskCh)
	wg.Wait()

	for _, rel := range symlinks {
		verifySymlink(cfg, rel, pass, fail)
	}
	verifyHardlinks(cfg, files, fail)

	return result
}

func verifyFile(cfg Config, rel string, pass func(string), fail func(string, string)) {
	srcHash, err := hashFile(filepath.Join(cfg.SrcRoot, rel))
	if err != nil {
		fail(rel, fmt.Sprintf("source unreadable: %v", err))
		return
	}
	dstHash, err := hashFile(filepath.Join(cfg.DstRoot, rel))
	if err != nil {
		fail(rel, fmt.Sprintf("destination unreadable: %v", err))
		return
	}
	if srcHash != dstHash {
		fail(rel, fmt.Sprintf("content hash %s != %s", dstHash, srcHash))
		return
	}
	pass(rel)
}

// hashFile streams the file at path through BLAKE3 and returns the
// hex-encoded digest.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifySymlink compares the destination link's target against the
// source's, with targets inside the source tree expected to have been
// rewritten into the destination tree.
func verifySymlink(cfg Config, rel string, pass func(string), fail func(string, string)) {
	want, err := os.Readlink(filepath.Join(cfg.SrcRoot, rel))
	if err != nil {
		fail(rel, fmt.Sprintf("source unreadable: %v", err))
		return
	}
	if strings.HasPrefix(want, cfg.SrcRoot) {
		want = cfg.DstRoot + want[len(cfg.SrcRoot):]
	}
	got, err := os.Readlink(filepath.Join(cfg.DstRoot, rel))
	if err != nil {
		fail(rel, fmt.Sprintf("destination unreadable: %v", err))
		return
	}
	if got != want {
		fail(rel, fmt.Sprintf("symlink target %q != %q", got, want))
		return
	}
	pass(rel)
}

// verifyHardlinks checks that files sharing an inode in the source still
// share one inode in the destination.
func verifyHardlinks(cfg Config, files []string, fail func(string, string)) {
	groups := make(map[devino][]string)
	for _, rel := range files {
		st, err := lstatSys(filepath.Join(cfg.SrcRoot, rel))
		if err != nil {
			continue
		}
		if st.Nlink > 1 {
			key := devino{dev: uint64(st.Dev), ino: uint64(st.Ino)}
			groups[key] = append(groups[key], rel)
		}
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		first, err := lstatSys(filepath.Join(cfg.DstRoot, group[0]))
		if err != nil {
			fail(group[0], fmt.Sprintf("destination unreadable: %v", err))
			continue
		}
		for _, rel := range group[1:] {
			st, err := lstatSys(filepath.Join(cfg.DstRoot, rel))
			if err != nil {
				fail(rel, fmt.Sprintf("destination unreadable: %v", err))
				continue
			}
			if st.Dev != first.Dev || st.Ino != first.Ino {
				fail(rel, fmt.Sprintf("not hardlinked to %s", group[0]))
			}
		}
	}
}

// collectEntries walks the destination tree and returns the relative paths
// of regular files and symlinks that also exist in the source.
func collectEntries(ctx context.Context, srcRoot, dstRoot string) (files, symlinks []string) {
	_ = filepath.WalkDir(dstRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dstRoot, path)
		if err != nil {
			return nil
		}
		if _, err := os.Lstat(filepath.Join(srcRoot, rel)); err != nil {
			return nil
		}

		switch {
		case d.Type().IsRegular():
			files = append(files, rel)
		case d.Type()&fs.ModeSymlink != 0:
			symlinks = append(symlinks, rel)
		}
		return nil
	})
	return files, symlinks
}

func lstatSys(path string) (*syscall.Stat_t, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("lstat %s: no stat data", path)
	}
	return st, nil
}
