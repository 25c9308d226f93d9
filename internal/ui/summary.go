// Package ui renders the end-of-run summary for the command line.
package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/skel/internal/stats"
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	styleLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5a6278"))
	styleValue  = lipgloss.NewStyle().Foreground(lipgloss.Color("#cdd6f4"))
)

// Summary builds a single final summary line from a snapshot.
// Format: done ✓  entries 1,204  size 2.1 MiB  time 3s  errors 0
func Summary(snap stats.Snapshot) string {
	icon := "✓"
	if snap.EntriesFailed > 0 || snap.FilesVerifyFailed > 0 {
		icon = "✗"
	}

	entries := snap.DirsCreated + snap.DirsMerged + snap.FilesCopied +
		snap.SymlinksCreated + snap.HardlinksCreated + snap.SpecialsCreated

	base := fmt.Sprintf("done %s  entries %s  size %s  time %s",
		icon,
		FormatCount(entries),
		FormatBytes(snap.BytesCopied),
		FormatDuration(snap.Elapsed),
	)

	if snap.EntriesSkipped > 0 {
		base += fmt.Sprintf("  skipped %s", FormatCount(snap.EntriesSkipped))
	}
	if snap.FilesVerified > 0 || snap.FilesVerifyFailed > 0 {
		base += fmt.Sprintf("  verified %s", FormatCount(snap.FilesVerified))
	}

	base += fmt.Sprintf("  errors %d", snap.EntriesFailed+snap.FilesVerifyFailed)
	return base
}

// Report renders a styled multi-line breakdown of a snapshot.
func Report(snap stats.Snapshot) string {
	rows := []struct {
		label string
		value int64
	}{
		{"directories", snap.DirsCreated},
		{"merged", snap.DirsMerged},
		{"files", snap.FilesCopied},
		{"symlinks", snap.SymlinksCreated},
		{"hardlinks", snap.HardlinksCreated},
		{"specials", snap.SpecialsCreated},
		{"skipped", snap.EntriesSkipped},
	}

	var b strings.Builder
	for _, row := range rows {
		if row.value == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n",
			styleLabel.Render(fmt.Sprintf("%-12s", row.label)),
			styleValue.Render(FormatCount(row.value)),
		)
	}
	fmt.Fprintf(&b, "%s %s\n",
		styleLabel.Render(fmt.Sprintf("%-12s", "copied")),
		styleValue.Render(FormatBytes(snap.BytesCopied)),
	)

	if snap.EntriesFailed > 0 || snap.FilesVerifyFailed > 0 {
		fmt.Fprintf(&b, "%s %s\n",
			styleLabel.Render(fmt.Sprintf("%-12s", "errors")),
			styleFailed.Render(FormatCount(snap.EntriesFailed+snap.FilesVerifyFailed)),
		)
	} else {
		b.WriteString(styleOK.Render("no errors") + "\n")
	}
	return b.String()
}

// FormatCount formats an integer with comma separators.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return b.String()
}

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
