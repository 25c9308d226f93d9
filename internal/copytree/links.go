package copytree

// DevIno uniquely identifies an inode independent of the path used to
// reach it.
type DevIno struct {
	Dev uint64
	Ino uint64
}

// linkRecord tracks one source inode with nlink > 1 that has not yet been
// fully linked at the destination.
type linkRecord struct {
	key       DevIno
	remaining uint64 // links left to recreate, including the first copy
	dstPath   string // destination path of the first copy
}

// linkRegistry converts the 2nd..Nth visit of a multi-link inode into a
// hardlink creation instead of a duplicate content copy. Scoped to one
// top-level tree copy; the single-threaded walk needs no locking. Links
// whose other references lie outside the traversed tree are never fully
// released and simply die with the registry.
type linkRegistry struct {
	records map[DevIno]*linkRecord
}

func newLinkRegistry() *linkRegistry {
	return &linkRegistry{records: make(map[DevIno]*linkRecord)}
}

// checkLink returns the record for a previously seen inode, meaning the
// caller must recreate a hardlink rather than copy. On first encounter of
// a multi-link inode it registers a record whose destination path is the
// source path with the source root prefix substituted by the destination
// root, and returns nil so the caller copies normally. Inodes with a
// single link need no bookkeeping at all.
func (r *linkRegistry) checkLink(srcPath string, key DevIno, nlink uint64, srcRoot, dstRoot string) *linkRecord {
	if rec, ok := r.records[key]; ok {
		return rec
	}
	if nlink == 1 {
		return nil
	}
	r.records[key] = &linkRecord{
		key:       key,
		remaining: nlink,
		dstPath:   dstRoot + srcPath[len(srcRoot):],
	}
	return nil
}

// release decrements the remaining link count after a hardlink was
// recreated, dropping the record once every reference is accounted for.
func (r *linkRegistry) release(rec *linkRecord) {
	rec.remaining--
	if rec.remaining == 0 {
		delete(r.records, rec.key)
	}
}
