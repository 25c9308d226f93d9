package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	TreeStarted     Type = iota + 1
	TreeComplete
	DirCreated
	DirMerged
	FileCopied
	SymlinkCreated
	HardlinkCreated
	SpecialCreated
	EntrySkipped
	EntryFailed
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	TreeStarted:     "TreeStarted",
	TreeComplete:    "TreeComplete",
	DirCreated:      "DirCreated",
	DirMerged:       "DirMerged",
	FileCopied:      "FileCopied",
	SymlinkCreated:  "SymlinkCreated",
	HardlinkCreated: "HardlinkCreated",
	SpecialCreated:  "SpecialCreated",
	EntrySkipped:    "EntrySkipped",
	EntryFailed:     "EntryFailed",
	VerifyStarted:   "VerifyStarted",
	VerifyOK:        "VerifyOK",
	VerifyFailed:    "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from a tree copy or verify pass.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // destination path of the entry
	Size      int64  // bytes written (FileCopied)
	Error     error  // EntryFailed, VerifyFailed
}

// Emit sends e on ch without blocking. A nil or full channel drops the
// event; subscribers are diagnostic only and must never stall the copy.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
