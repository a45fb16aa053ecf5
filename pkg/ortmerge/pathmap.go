package ortmerge

import "strings"

// PathRecord is the PATH MAP's value type. It is always a full CONFLICT
// INFO (N2): when Clean is true, Stages/FileMask/DirMask/MatchMask carry no
// meaning and callers should only look at the embedded MERGED INFO fields
// (Result, IsNull, Clean, DirectoryName, NameOffset).
type PathRecord struct {
	// MERGED INFO header.
	Result        VersionInfo
	IsNull        bool
	Clean         bool
	DirectoryName string // interned parent directory path ("" for root entries)
	NameOffset    int    // index into the full path where the basename starts

	// CONFLICT INFO body (meaningful while !Clean, retained after resolution
	// for diagnostics).
	Stage        StageTriple
	FileMask     int
	DirMask      int
	MatchMask    int
	DFConflict   bool
	PathConflict bool

	// path is the record's own full-path key, kept alongside the map key so
	// that moving/renaming code can update DirectoryName/NameOffset without
	// a second lookup.
	path string
}

func newPathRecord(path string) *PathRecord {
	return &PathRecord{path: path}
}

// PathMap is the sole source of truth shared by every merge phase.
type PathMap struct {
	entries  map[string]*PathRecord
	interner *interner
}

func newPathMap() *PathMap {
	return &PathMap{
		entries:  make(map[string]*PathRecord),
		interner: newInterner(),
	}
}

// getOrCreate returns the record for path, creating it (and any
// placeholder ancestors implied by path's directory chain, per §4.4) if
// absent.
func (pm *PathMap) getOrCreate(path string) *PathRecord {
	if rec, ok := pm.entries[path]; ok {
		return rec
	}
	rec := newPathRecord(path)
	rec.DirectoryName, rec.NameOffset = pm.parentOf(path)
	pm.entries[path] = rec
	return rec
}

func (pm *PathMap) get(path string) (*PathRecord, bool) {
	rec, ok := pm.entries[path]
	return rec, ok
}

func (pm *PathMap) set(path string, rec *PathRecord) {
	rec.path = path
	rec.DirectoryName, rec.NameOffset = pm.parentOf(path)
	pm.entries[path] = rec
}

func (pm *PathMap) delete(path string) {
	delete(pm.entries, path)
}

func (pm *PathMap) len() int { return len(pm.entries) }

// reset clears every entry and interned name, for the collector's single
// redo pass (§4.1 Redo trigger) which restarts the walk from scratch.
func (pm *PathMap) reset() {
	pm.entries = make(map[string]*PathRecord)
	pm.interner = newInterner()
}

// parentOf computes the interned parent-directory string and basename
// offset for path, creating placeholder MERGED INFO records for any
// ancestor directories not yet present (§4.3 "every record's
// directory_name must point to the interned key for its parent directory").
func (pm *PathMap) parentOf(path string) (string, int) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", 0
	}
	parent := path[:idx]
	pm.ensureDirPlaceholder(parent)
	return pm.interner.intern(parent), idx + 1
}

// ensureDirPlaceholder guarantees a (possibly clean, possibly empty)
// placeholder record exists for every ancestor of dir, synthesizing them
// bottom-up to the root. Used when implicit renames or directory-rename
// application relocate a record under ancestors the joint walk never
// visited directly.
func (pm *PathMap) ensureDirPlaceholder(dir string) {
	if dir == "" {
		return
	}
	if _, ok := pm.entries[dir]; ok {
		return
	}
	parent, offset := pm.parentOf(dir)
	rec := newPathRecord(dir)
	rec.DirectoryName = parent
	rec.NameOffset = offset
	rec.Result.Mode = ModeDir
	rec.IsNull = true // no real children yet; cleared once a child lands
	rec.Clean = true
	pm.entries[dir] = rec
}

// paths returns every key currently in the map, unordered.
func (pm *PathMap) paths() []string {
	out := make([]string, 0, len(pm.entries))
	for p := range pm.entries {
		out = append(out, p)
	}
	return out
}
