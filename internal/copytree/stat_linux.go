//go:build linux

package copytree

import "golang.org/x/sys/unix"

// statTimes returns the access and modification times of st, in the order
// utimensat(2) expects.
func statTimes(st *unix.Stat_t) [2]unix.Timespec {
	return [2]unix.Timespec{st.Atim, st.Mtim}
}

func statDevIno(st *unix.Stat_t) DevIno {
	// Dev and Nlink widths vary across linux architectures.
	return DevIno{Dev: uint64(st.Dev), Ino: st.Ino}
}

func statMode(st *unix.Stat_t) uint32 { return st.Mode }

func statNlink(st *unix.Stat_t) uint64 { return uint64(st.Nlink) }

func statRdev(st *unix.Stat_t) int { return int(st.Rdev) }
