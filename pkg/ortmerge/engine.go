package ortmerge

import (
	"fmt"

	"github.com/odvcencio/ort/pkg/object"
)

// Engine is a reusable merge driver. It owns the RENAME CACHE, which can be
// kept alive across a sequence of merges sharing a history edge (§4.2.4,
// §5), and the ContentMerger collaborator used for C3 file conflicts.
type Engine struct {
	Store   Store
	Finder  MergeBaseFinder
	Checker AncestorChecker
	Content ContentMerger
	Options Options

	cache1 *renameCache
	cache2 *renameCache

	// Messages accumulates per-path diagnostics from the most recent merge,
	// keyed by path ("" for merge-wide notes like SIMILARITY_LIMIT_HIT).
	Messages map[string][]string
}

// NewEngine builds an Engine with the package's default ContentMerger and
// freshly cleared rename caches.
func NewEngine(store Store, finder MergeBaseFinder, opts Options) *Engine {
	return &Engine{
		Store:   store,
		Finder:  finder,
		Content: NewDefaultContentMerger(),
		Options: opts,
		cache1:  newRenameCache(),
		cache2:  newRenameCache(),
	}
}

// MergeResult is the outcome of a tree merge.
type MergeResult struct {
	Tree     object.Hash
	Clean    bool
	Unmerged map[string]*PathRecord
	Messages map[string][]string
}

// DeclareCacheValidSide asserts that the given side's rename cache can be
// reused unchanged for the upcoming merge: "base equals previous side2 AND
// new side1 equals previous result tree" (or the symmetric statement for
// side2), per §4.2.4. The caller is responsible for verifying the
// precondition; the engine trusts the assertion.
func (e *Engine) DeclareCacheValidSide(side Role) {
	switch side {
	case RoleSide1:
		e.cache1.validSide = int(RoleSide1)
	case RoleSide2:
		e.cache2.validSide = int(RoleSide2)
	}
}

// Free performs §5's "partial clear": drop per-merge PATH MAP / RENAME
// STATE scratch space while retaining the RENAME CACHE for reuse.
// MergeNonRecursive and MergeRecursive do not call it; it is exposed so
// callers driving a manual merge sequence can invoke it between merges that
// reuse an Engine.
func (e *Engine) Free() {
	// Intentionally a no-op beyond cache retention: the PathMap, renameState,
	// resolver and treeBuilder instances created per call are already
	// unreferenced once MergeNonRecursive returns, so the garbage collector
	// reclaims them; only the two *renameCache fields persist on Engine.
}

// MergeNonRecursive merges two trees against a single common-ancestor tree,
// without constructing any synthetic multi-base ancestor first.
func (e *Engine) MergeNonRecursive(baseTree, side1Tree, side2Tree object.Hash) (*MergeResult, error) {
	pathMap := newPathMap()
	state1 := newRenameState(RoleSide1, e.cache1)
	state2 := newRenameState(RoleSide2, e.cache2)

	col := newCollector(e.Store, pathMap, state1, state2)
	if err := col.run(baseTree, side1Tree, side2Tree); err != nil {
		return nil, err
	}

	messages := make(map[string][]string)
	dirRenameSplit := false

	if e.Options.DetectDirectoryRenames != DirRenameNone {
		split, err := e.runRenameEngine(pathMap, state1, state2, messages)
		if err != nil {
			return nil, err
		}
		dirRenameSplit = split
	} else {
		if err := e.runRegularRenamesOnly(state1, state2, messages); err != nil {
			return nil, err
		}
	}

	res := newResolver(e.Store, pathMap, e.Options, e.Content, e.Finder, e.Checker)
	if err := res.run(); err != nil {
		return nil, err
	}
	for path, msgs := range res.messages {
		messages[path] = append(messages[path], msgs...)
	}

	tb := newTreeBuilder(e.Store)
	tree, err := tb.build(pathMap)
	if err != nil {
		return nil, err
	}

	e.Messages = messages
	return &MergeResult{
		Tree:     tree,
		Clean:    !res.unclean && !dirRenameSplit,
		Unmerged: res.unmerged,
		Messages: messages,
	}, nil
}

// runRegularRenamesOnly runs §4.2.1 detection without folding the result
// into directory-rename inference, for DetectDirectoryRenames == DirRenameNone.
func (e *Engine) runRegularRenamesOnly(state1, state2 *renameState, messages map[string][]string) error {
	for _, state := range [2]*renameState{state1, state2} {
		det := newRenameDetector(e.Store, state, e.Options.RenameScore, e.Options.renameLimit())
		pairs, limitHit, err := det.detect()
		if err != nil {
			return err
		}
		if limitHit {
			messages[""] = append(messages[""], fmt.Sprintf("SIMILARITY_LIMIT_HIT: rename limit %d exceeded", e.Options.renameLimit()))
		}
		state.candidates = pairs
	}
	return nil
}

// runRenameEngine runs regular rename detection on both sides, aggregates
// directory renames (§4.2.2), resolves collisions (§4.2.3), and applies
// implicit renames by relocating PATH MAP records.
func (e *Engine) runRenameEngine(pathMap *PathMap, state1, state2 *renameState, messages map[string][]string) (bool, error) {
	if err := e.runRegularRenamesOnly(state1, state2, messages); err != nil {
		return false, err
	}

	for _, state := range [2]*renameState{state1, state2} {
		for _, pair := range state.candidates {
			if pair.status != statusRename {
				continue
			}
			oldDir, newDir := dirOf(pair.oldPath), dirOf(pair.newPath)
			if oldDir != newDir {
				state.bumpDirRenameCount(oldDir, newDir)
			}
		}
	}

	anySplit := false
	for _, state := range [2]*renameState{state1, state2} {
		splits := state.collapseDirRenames()
		for _, d := range splits {
			anySplit = true
			messages[d] = append(messages[d], "directory rename split: ambiguous destination")
		}
	}

	// Invalidation pass (a): a directory renamed on both sides is left to
	// its individual file renames.
	for oldDir := range state1.dirRenames {
		if _, ok := state2.dirRenames[oldDir]; ok {
			state1.invalidateDirRename(oldDir)
			state2.invalidateDirRename(oldDir)
		}
	}
	// Invalidation pass (b): a directory still present (clean, or still a
	// directory on this side) was never truly removed.
	for _, state := range [2]*renameState{state1, state2} {
		for oldDir := range state.dirRenames {
			if rec, ok := pathMap.get(oldDir); ok && (rec.Clean || rec.Result.Mode.IsDir()) {
				state.invalidateDirRename(oldDir)
			}
		}
	}

	type relocation struct {
		fromKey string // the record's current PATH MAP key
		toKey   string
	}
	var pending []relocation
	destinations := make(map[string][]string)
	// A directory rename detected on one side is applied to the path
	// produced by the OTHER side: the side that renamed the directory has
	// no remaining path under the old name to relocate, while anything
	// new the opposite side placed under the old directory (an unpaired
	// add, or even an unrelated explicit rename landing there) follows
	// the rename along, exactly as git's apply_directory_rename_modifications
	// pairs a side's dir_renames against its counterpart's new paths.
	others := map[Role]*renameState{RoleSide1: state2, RoleSide2: state1}
	for _, state := range [2]*renameState{state1, state2} {
		other := others[state.side]
		for i := range state.candidates {
			pair := &state.candidates[i]
			if pair.status != statusAdd && pair.status != statusRename {
				continue
			}
			currentKey := pair.newPath
			target, ok := applyImplicitRename(other.dirRenames, currentKey)
			if !ok {
				continue
			}
			destinations[target] = append(destinations[target], currentKey)
			pending = append(pending, relocation{fromKey: currentKey, toKey: target})
			pair.newPath = target
		}
	}

	collided := make(map[string]bool)
	for _, coll := range detectCollisions(destinations) {
		for _, src := range coll.sources {
			collided[src] = true
			if rec, ok := pathMap.get(src); ok {
				rec.PathConflict = true
			}
		}
		messages[coll.path] = append(messages[coll.path], "rename collision: multiple sources map to this path")
	}

	for _, reloc := range pending {
		if collided[reloc.fromKey] || reloc.fromKey == reloc.toKey {
			continue
		}
		relocateRecord(pathMap, reloc.fromKey, reloc.toKey, messages)
	}

	for _, state := range [2]*renameState{state1, state2} {
		for _, pair := range state.candidates {
			if pair.status != statusRename || pair.oldPath == "" || pair.newPath == pair.oldPath {
				continue
			}
			if collided[pair.newPath] {
				continue
			}
			relocateRecord(pathMap, pair.oldPath, pair.newPath, messages)
		}
	}
	return anySplit, nil
}

func dirOf(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// relocateRecord implements §4.4: move a record from oldPath to newPath,
// merging with any resident record already at newPath.
func relocateRecord(pathMap *PathMap, oldPath, newPath string, messages map[string][]string) {
	moving, ok := pathMap.get(oldPath)
	if !ok {
		return
	}
	if resident, ok := pathMap.get(newPath); ok {
		if resident.FileMask&moving.FileMask != 0 {
			messages[newPath] = append(messages[newPath], "path updated: rename target already occupied on this side")
			resident.PathConflict = true
			return
		}
		resident.FileMask |= moving.FileMask
		for i, v := range moving.Stage.Versions {
			if !v.isNull() {
				resident.Stage.Versions[i] = v
				resident.Stage.Paths[i] = newPath
			}
		}
		if resident.DirMask != 0 {
			resident.DFConflict = true
		}
		pathMap.delete(oldPath)
		messages[newPath] = append(messages[newPath], fmt.Sprintf("path updated: merged rename from %s", oldPath))
		return
	}

	pathMap.delete(oldPath)
	moving.Stage.Paths[roleOfMask(moving.FileMask)] = newPath
	pathMap.set(newPath, moving)
	messages[newPath] = append(messages[newPath], fmt.Sprintf("path updated: renamed from %s", oldPath))
}

func roleOfMask(mask int) Role {
	switch mask {
	case 2:
		return RoleSide1
	case 4:
		return RoleSide2
	default:
		return RoleSide1
	}
}

// MergeRecursive performs a recursive-ancestor merge: when more than one
// merge-base tree is given in bases, it folds them
// pairwise into a single virtual ancestor tree (itself the output of a
// nested MergeNonRecursive at callDepth+1) before merging that against the
// two sides, mirroring git's merge-recursive strategy.
func (e *Engine) MergeRecursive(bases []object.Hash, side1Tree, side2Tree object.Hash) (*MergeResult, error) {
	if len(bases) == 0 {
		return e.MergeNonRecursive("", side1Tree, side2Tree)
	}
	if len(bases) == 1 {
		return e.MergeNonRecursive(bases[0], side1Tree, side2Tree)
	}

	nested := *e
	nested.Options = e.Options
	nested.Options.callDepth = e.Options.callDepth + 1
	nested.cache1 = newRenameCache()
	nested.cache2 = newRenameCache()

	merged := bases[0]
	for _, next := range bases[1:] {
		innerBase := merged
		if nested.Finder != nil {
			if mb, err := nested.Finder.FindMergeBase(merged, next); err == nil && mb != "" {
				innerBase = mb
			}
		}
		res, err := nested.MergeNonRecursive(innerBase, merged, next)
		if err != nil {
			return nil, fmt.Errorf("constructing virtual ancestor: %w", err)
		}
		merged = res.Tree
	}

	return e.MergeNonRecursive(merged, side1Tree, side2Tree)
}
