package ortmerge

import (
	"fmt"

	"github.com/odvcencio/ort/pkg/object"
)

// resolver implements §4.3: classifies every non-clean record left by the
// COLLECTOR and RENAME ENGINE into one of conflict classes C1-C7.
type resolver struct {
	store   Store
	pathMap *PathMap
	opts    Options
	content ContentMerger
	finder  MergeBaseFinder
	checker AncestorChecker

	existingPaths map[string]bool
	hasLiveChild  map[string]bool
	unmerged      map[string]*PathRecord
	messages      map[string][]string
	unclean       bool
}

func newResolver(store Store, pathMap *PathMap, opts Options, content ContentMerger, finder MergeBaseFinder, checker AncestorChecker) *resolver {
	existing := make(map[string]bool)
	for _, p := range pathMap.paths() {
		existing[p] = true
	}
	return &resolver{
		store:         store,
		pathMap:       pathMap,
		opts:          opts,
		content:       content,
		finder:        finder,
		checker:       checker,
		existingPaths: existing,
		hasLiveChild:  make(map[string]bool),
		unmerged:      make(map[string]*PathRecord),
		messages:      make(map[string][]string),
	}
}

func (r *resolver) note(path, msg string) {
	r.messages[path] = append(r.messages[path], msg)
}

// run walks every path in "directories next to their children" order,
// deepest entries first, so a directory's children are always finalized
// before the directory's own record is classified.
func (r *resolver) run() error {
	order := sortedPathsDescending(r.pathMap.paths())
	for _, path := range order {
		rec, ok := r.pathMap.get(path)
		if !ok {
			continue
		}
		if !rec.Clean {
			if err := r.classify(path, rec); err != nil {
				return err
			}
		}
		if rec.DirectoryName != "" && !rec.IsNull {
			r.hasLiveChild[rec.DirectoryName] = true
		}
	}
	return nil
}

func (r *resolver) classify(path string, rec *PathRecord) error {
	switch {
	case rec.MatchMask != 0:
		r.resolveC1(rec)
	case rec.FileMask&6 == 6 && distinctTypes(rec.Stage.Versions[1], rec.Stage.Versions[2]):
		r.resolveC2(path, rec)
	case rec.FileMask == 6 || rec.FileMask == 7:
		if err := r.resolveC3(path, rec); err != nil {
			return err
		}
	case rec.FileMask == 3 || rec.FileMask == 5:
		if err := r.resolveC4(path, rec); err != nil {
			return err
		}
	case rec.FileMask == 2 || rec.FileMask == 4:
		r.resolveC5(rec)
	case rec.FileMask == 1:
		r.resolveC6(rec)
	default:
		// dirmask-only record (no competing file): its children (if any
		// survived relocation) were already finalized, since we walk
		// deepest-first. A directory left with none is_null per §4.6
		// rather than serialized as a phantom empty entry.
		rec.Clean = true
		if r.hasLiveChild[path] {
			rec.Result.Mode = ModeDir
			rec.IsNull = false
		} else {
			rec.IsNull = true
		}
	}

	if rec.DFConflict {
		r.resolveC7(path, rec)
	}

	if !rec.Clean {
		r.unmerged[path] = rec
		r.unclean = true
	}
	return nil
}

// C1: match_mask nonzero.
func (r *resolver) resolveC1(rec *PathRecord) {
	rec.Clean = true
	switch {
	case rec.MatchMask&6 == 6: // sides agree, differ from base
		rec.Result = rec.Stage.Versions[1]
	case rec.MatchMask&3 == 3: // base == side1, side2 changed
		rec.Result = rec.Stage.Versions[2]
	case rec.MatchMask&5 == 5: // base == side2, side1 changed
		rec.Result = rec.Stage.Versions[1]
	}
	rec.IsNull = rec.Result.isNull()
}

// fileKind collapses FileMode down to the fundamental entry type C2 cares
// about: regular and executable share a kind, since the only difference
// between them is the permission bit, not the entry's type (SUPPLEMENTED
// FEATURE 2a). Symlink and submodule each remain their own kind.
func fileKind(m FileMode) int {
	switch m {
	case ModeSymlink:
		return 1
	case ModeSubmodule:
		return 2
	default:
		return 0
	}
}

func distinctTypes(a, b VersionInfo) bool {
	return !a.isNull() && !b.isNull() && fileKind(a.Mode) != fileKind(b.Mode)
}

// C2: distinct types on the two sides.
func (r *resolver) resolveC2(path string, rec *PathRecord) {
	rec.PathConflict = true
	newPath1 := uniquePath(r.existingPaths, path, r.opts.Side1Label)
	r.existingPaths[newPath1] = true
	newPath2 := uniquePath(r.existingPaths, path, r.opts.Side2Label)
	r.existingPaths[newPath2] = true

	one := newPathRecord(newPath1)
	one.Clean = true
	one.Result = rec.Stage.Versions[1]
	one.DirectoryName, one.NameOffset = r.pathMap.parentOf(newPath1)
	r.pathMap.set(newPath1, one)

	two := newPathRecord(newPath2)
	two.Clean = true
	two.Result = rec.Stage.Versions[2]
	two.DirectoryName, two.NameOffset = r.pathMap.parentOf(newPath2)
	r.pathMap.set(newPath2, two)

	rec.Clean = true
	rec.IsNull = true
	r.note(path, fmt.Sprintf("distinct types added at %s and %s", newPath1, newPath2))
}

// C3: matching file types on both sides, content merge required.
func (r *resolver) resolveC3(path string, rec *PathRecord) error {
	v1, v2 := rec.Stage.Versions[1], rec.Stage.Versions[2]
	if v1.Mode == ModeSubmodule && v2.Mode == ModeSubmodule {
		return r.resolveSubmoduleC3(path, rec)
	}

	base, side1, side2, err := r.readBlobs(rec)
	if err != nil {
		return err
	}
	mode, modeClean := mergeMode(rec.Stage.Versions)
	// §9 open question 1, mirrored as-is: at callDepth > 0 (recursive-ancestor
	// construction) a mode-only conflict is not reported; the content result
	// carries the winning mode silently rather than leaving the path unclean.
	modeClean = modeClean || r.opts.callDepth > 0

	merged, clean := r.content.Merge(base, side1, side2, rec.Stage.Paths, r.opts.markerSize(), r.opts.RecursiveVariant, r.opts.Renormalize)
	oid, err := r.store.WriteBlob(&object.Blob{Data: merged})
	if err != nil {
		return err
	}
	rec.Result = VersionInfo{Oid: oid, Mode: mode}
	rec.IsNull = false
	rec.Clean = clean && !rec.PathConflict && !rec.DFConflict && modeClean
	switch {
	case !clean:
		r.note(path, "content merge left conflict markers")
	case !modeClean:
		r.note(path, fmt.Sprintf("mode conflict: %s is %s, %s is %s", r.opts.Side1Label, modeName(v1.Mode), r.opts.Side2Label, modeName(v2.Mode)))
	}
	return nil
}

// resolveSubmoduleC3 handles a submodule/submodule conflict (§4.5,
// SUPPLEMENTED FEATURE 4). It never reads the two gitlink oids as blobs —
// they name commits in the submodule's own history, not objects in this
// store, and Store.ReadBlob would fail on them.
func (r *resolver) resolveSubmoduleC3(path string, rec *PathRecord) error {
	res, err := mergeSubmodule(r.finder, r.checker, rec.Stage.Versions[0].Oid, rec.Stage.Versions[1].Oid, rec.Stage.Versions[2].Oid)
	if err != nil {
		return err
	}
	if res.Resolved {
		rec.Result = VersionInfo{Oid: res.Result, Mode: ModeSubmodule}
		rec.IsNull = false
		rec.Clean = !rec.PathConflict && !rec.DFConflict
		return nil
	}
	// SUBMODULE_UNAVAILABLE (§7): non-fatal, recorded at the submodule's own
	// path rather than aborting the merge. Keep side1's commit as the
	// tentative result so the tree still builds; the path stays unclean.
	rec.Result = rec.Stage.Versions[1]
	rec.IsNull = false
	rec.Clean = false
	r.note(path, fmt.Sprintf("SUBMODULE_UNAVAILABLE: %s", res.Message))
	return nil
}

// modeName renders a FileMode as the short word the original's diagnostics
// use for mode conflicts.
func modeName(m FileMode) string {
	switch m {
	case ModeExecutable:
		return "executable"
	case ModeSymlink:
		return "symlink"
	case ModeSubmodule:
		return "submodule"
	default:
		return "regular file"
	}
}

// C4: modify/delete.
func (r *resolver) resolveC4(path string, rec *PathRecord) error {
	modifiedSide := Role(1)
	if rec.FileMask == 5 {
		modifiedSide = Role(2)
	}
	modified := rec.Stage.Versions[modifiedSide]

	equal, err := r.renormalizeEqual(rec.Stage.Versions[0], modified)
	if err != nil {
		return err
	}
	if equal {
		rec.Clean = true
		rec.IsNull = true
		rec.Result = VersionInfo{}
		return nil
	}
	rec.Result = modified
	rec.IsNull = false
	rec.Clean = false
	r.note(path, "modified on one side, deleted on the other")
	return nil
}

// C5: add on one side only.
func (r *resolver) resolveC5(rec *PathRecord) {
	side := Role(1)
	if rec.FileMask == 4 {
		side = Role(2)
	}
	rec.Result = rec.Stage.Versions[side]
	rec.IsNull = rec.Result.isNull()
	rec.Clean = !rec.DFConflict && !rec.PathConflict
}

// C6: deleted on both sides.
func (r *resolver) resolveC6(rec *PathRecord) {
	rec.Clean = true
	rec.IsNull = true
	rec.Result = VersionInfo{}
}

// C7: the directory and a file both want this path. Whichever has children
// still present wins the literal path; the loser's file gets a uniquified
// name.
func (r *resolver) resolveC7(path string, rec *PathRecord) {
	if rec.Result.Mode.IsFile() && r.hasLiveChild[path] {
		newPath := uniquePath(r.existingPaths, path, sideLabelForMode(r.opts, rec))
		r.existingPaths[newPath] = true
		moved := newPathRecord(newPath)
		moved.Clean = rec.Clean
		moved.Result = rec.Result
		moved.IsNull = rec.IsNull
		moved.DirectoryName, moved.NameOffset = r.pathMap.parentOf(newPath)
		r.pathMap.set(newPath, moved)

		rec.Result = VersionInfo{Mode: ModeDir}
		rec.IsNull = false
		r.note(path, fmt.Sprintf("directory/file conflict: file relocated to %s", newPath))
	}
}

func sideLabelForMode(opts Options, rec *PathRecord) string {
	if rec.Stage.Versions[1].Mode.IsFile() {
		return opts.Side1Label
	}
	return opts.Side2Label
}

// mergeMode implements §4.5's mode-merging rule.
func mergeMode(versions [3]VersionInfo) (FileMode, bool) {
	base, side1, side2 := versions[0].Mode, versions[1].Mode, versions[2].Mode
	if side1 == side2 || side1 == base {
		return side2, true
	}
	return side1, side2 == base
}

func (r *resolver) readBlobs(rec *PathRecord) (base, side1, side2 []byte, err error) {
	if !rec.Stage.Versions[0].isNull() {
		b, e := r.store.ReadBlob(rec.Stage.Versions[0].Oid)
		if e != nil {
			return nil, nil, nil, e
		}
		base = b.Data
	}
	if !rec.Stage.Versions[1].isNull() {
		b, e := r.store.ReadBlob(rec.Stage.Versions[1].Oid)
		if e != nil {
			return nil, nil, nil, e
		}
		side1 = b.Data
	}
	if !rec.Stage.Versions[2].isNull() {
		b, e := r.store.ReadBlob(rec.Stage.Versions[2].Oid)
		if e != nil {
			return nil, nil, nil, e
		}
		side2 = b.Data
	}
	return base, side1, side2, nil
}

func (r *resolver) renormalizeEqual(base, modified VersionInfo) (bool, error) {
	if base.isNull() || !base.Mode.IsFile() || !modified.Mode.IsFile() {
		return false, nil
	}
	baseBlob, err := r.store.ReadBlob(base.Oid)
	if err != nil {
		return false, err
	}
	modBlob, err := r.store.ReadBlob(modified.Oid)
	if err != nil {
		return false, err
	}
	return string(renormalizeText(baseBlob.Data)) == string(renormalizeText(modBlob.Data)), nil
}
