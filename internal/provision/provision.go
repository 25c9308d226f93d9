// Package provision creates home directories from a skeleton tree, the
// way account creation tools populate a new user's home.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bamsammich/skel/internal/copytree"
	"github.com/bamsammich/skel/internal/event"
	"github.com/bamsammich/skel/internal/metadata"
	"github.com/bamsammich/skel/internal/stats"
	"github.com/bamsammich/skel/internal/verify"
)

// Params describes a home directory to provision.
type Params struct {
	// SkelDir is the skeleton tree to copy from. Empty, or a path that
	// does not exist, means the home is created bare.
	SkelDir string

	// HomePath is the directory to create. It must not already exist.
	HomePath string

	// UID and GID own the home and every entry copied into it.
	UID int
	GID int

	// Mode is the permission bits for the home directory itself.
	Mode os.FileMode

	// ResetLabels drops SELinux labels and xattrs from the skeleton so
	// the destination picks up filesystem defaults.
	ResetLabels bool

	// Verify re-reads the provisioned tree and checks it against the
	// skeleton after copying.
	Verify bool

	Events   chan<- event.Event
	Stats    *stats.Collector
	Metadata *metadata.Capabilities
}

// Mkhome creates the home directory, copies the skeleton into it with
// ownership remapped to the new account, and optionally verifies the
// result.
func Mkhome(ctx context.Context, p Params) error {
	if _, err := os.Lstat(p.HomePath); err == nil {
		return fmt.Errorf("home directory %s already exists", p.HomePath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", p.HomePath, err)
	}

	mode := p.Mode
	if mode == 0 {
		mode = 0o700
	}

	// Intermediate directories (a fresh /home/site partition, say) are
	// root-owned with default permissions; only the home itself gets the
	// account's ownership and mode.
	if err := os.MkdirAll(filepath.Dir(p.HomePath), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p.HomePath, err)
	}
	if err := os.Mkdir(p.HomePath, mode); err != nil {
		return fmt.Errorf("mkdir %s: %w", p.HomePath, err)
	}
	// Mkdir is subject to the umask; settle the exact bits explicitly.
	if err := os.Chmod(p.HomePath, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", p.HomePath, err)
	}
	if err := os.Lchown(p.HomePath, p.UID, p.GID); err != nil {
		return fmt.Errorf("chown %s: %w", p.HomePath, err)
	}

	if !skelExists(p.SkelDir) {
		return nil
	}

	opts := copytree.Options{
		CopyRoot:    false,
		ResetLabels: p.ResetLabels,
		OldUID:      copytree.UnchangedID,
		NewUID:      p.UID,
		OldGID:      copytree.UnchangedID,
		NewGID:      p.GID,
		Events:      p.Events,
		Stats:       p.Stats,
		Metadata:    p.Metadata,
	}
	if err := copytree.CopyTree(p.SkelDir, p.HomePath, opts); err != nil {
		return fmt.Errorf("populate %s from %s: %w", p.HomePath, p.SkelDir, err)
	}

	if p.Verify {
		result := verify.Verify(ctx, verify.Config{
			SrcRoot: p.SkelDir,
			DstRoot: p.HomePath,
			Events:  p.Events,
			Stats:   p.Stats,
		})
		if result.Failed > 0 {
			return fmt.Errorf("verify %s: %d of %d entries diverge from %s",
				p.HomePath, result.Failed, result.Failed+result.Verified, p.SkelDir)
		}
	}
	return nil
}

func skelExists(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Lstat(dir)
	return err == nil && info.IsDir()
}
