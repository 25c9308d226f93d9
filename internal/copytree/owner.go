package copytree

// UnchangedID is the wildcard sentinel for ownership remapping: as an old
// id it matches any current owner, as a new id it means "no change".
// Matches the -1 convention of chown(2).
const UnchangedID = -1

// resolveID computes the effective owner id for a destination entry.
// If oldID is the wildcard or the entry is currently owned by oldID, the
// entry is remapped to newID; otherwise, and whenever newID is the
// wildcard, the current owner is kept. Applied independently to uid and
// gid.
func resolveID(current uint32, oldID, newID int) int {
	mapped := UnchangedID
	if oldID == UnchangedID || int(current) == oldID {
		mapped = newID
	}
	if mapped == UnchangedID {
		return int(current)
	}
	return mapped
}
