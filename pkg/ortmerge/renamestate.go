package ortmerge

import "github.com/odvcencio/ort/pkg/object"

// relevance classifies why a deleted path might still be a rename source.
type relevance int

const (
	relevantNone     relevance = 0
	relevantContent  relevance = 1
	relevantLocation relevance = 2
	relevantBoth     relevance = 3
)

func (r relevance) add(other relevance) relevance { return r | other }

// pairStatus is the outcome similarity detection assigns a candidate pair.
type pairStatus int

const (
	statusNone   pairStatus = iota
	statusAdd               // 'A' — only the new side is valid
	statusDelete            // 'D' — only the old side is valid
	statusRename            // 'R' — matched via similarity detection
)

// candidatePair is one (old, new) filespec queued for similarity detection.
type candidatePair struct {
	oldPath string
	newPath string
	oldOid  object.Hash
	oldMode FileMode
	newOid  object.Hash
	newMode FileMode
	status  pairStatus
	score   int // similarity score, meaningful when status == statusRename
}

// renameCache is the part of RENAME STATE the caller may keep alive across
// sequential merges (§4.2.4, §5 "partial clear").
type renameCache struct {
	pairs     map[string]string // old -> new ("" encodes a cached delete)
	hasPair   map[string]bool   // old -> true iff present in pairs (delete or rename)
	irrelevant map[string]bool
	validSide int // 1 or 2 names the valid side; 0 (never declared) or -1 (invalidated) means none
}

func newRenameCache() *renameCache {
	return &renameCache{
		pairs:      make(map[string]string),
		hasPair:    make(map[string]bool),
		irrelevant: make(map[string]bool),
	}
}

func (c *renameCache) clear() {
	c.pairs = make(map[string]string)
	c.hasPair = make(map[string]bool)
	c.irrelevant = make(map[string]bool)
	c.validSide = 0
}

// invalidate marks the cache as not valid for any side. Used when the
// collector redoes its walk (§4.1 "Redo trigger"): the first pass's
// deferral decisions may have been too aggressive, so the retry must not
// let a stale valid side short-circuit rename detection a second time.
func (c *renameCache) invalidate() {
	c.validSide = -1
}

// deferredSubtree records what tryDeferTrivialDirectory needs to either
// bulk-adopt a directory later or, if DEFERRED HANDLING decides the
// deferral isn't safe, requeue it for a full walk.
type deferredSubtree struct {
	trees [3]object.Hash
	mask  int // dirRenameMask in effect when it was parked
}

// renameState is RENAME STATE for one side (§3).
type renameState struct {
	side Role

	candidates []candidatePair
	relevant   map[string]relevance

	// dirsRemoved[dir] is true when dir's rename-source reconstruction
	// requires every child, not just the ones that survived trivial
	// elision (I5: dirmask 3 or 5 only).
	dirsRemoved map[string]bool

	// dirRenameCount[old][new] tallies how many individual file renames
	// went from old/* to new/*.
	dirRenameCount map[string]map[string]int

	// possibleTrivialMerges[dir] records a trivially-mergeable subtree
	// deferred during the main walk (§4.1.1): its three tree ids (in case
	// DEFERRED HANDLING decides to expand it after all) and the
	// dirRenameMask in effect when it was parked.
	possibleTrivialMerges map[string]deferredSubtree

	// targetDirs[dir] is set once some add candidate on this side lands at
	// dir or any path below it, i.e. dir is a plausible directory-rename
	// destination. DEFERRED HANDLING consults the *other* side's targetDirs
	// before bulk-adopting a deferred directory: if the opposite side has
	// already placed (or might place, via its own directory rename) new
	// content under this exact directory name, the deferral is unsafe and
	// the subtree must be expanded instead.
	targetDirs map[string]bool

	dirRenames map[string]string // old dir -> new dir, after collapse+invalidation

	// trivialMergeOkay disables tryDeferTrivialDirectory outright when
	// false. Cleared for the single redo pass the collector runs after a
	// Redo trigger (§4.1 last paragraph), so the retry walks every
	// directory in full instead of repeating the same deferrals.
	trivialMergeOkay bool

	dirRenameMask int // propagated collector state, see §4.1

	cache *renameCache
}

func newRenameState(side Role, cache *renameCache) *renameState {
	return &renameState{
		side:                  side,
		relevant:              make(map[string]relevance),
		dirsRemoved:           make(map[string]bool),
		dirRenameCount:        make(map[string]map[string]int),
		possibleTrivialMerges: make(map[string]deferredSubtree),
		targetDirs:            make(map[string]bool),
		dirRenames:            make(map[string]string),
		trivialMergeOkay:      true,
		cache:                 cache,
	}
}

func (rs *renameState) markRelevant(path string, r relevance) {
	rs.relevant[path] = rs.relevant[path].add(r)
}

func (rs *renameState) bumpDirRenameCount(oldDir, newDir string) {
	m, ok := rs.dirRenameCount[oldDir]
	if !ok {
		m = make(map[string]int)
		rs.dirRenameCount[oldDir] = m
	}
	m[newDir]++
}

// markTargetDir records dir and every ancestor of dir as a plausible
// directory-rename destination on this side (§4.1.1's target_dirs).
func (rs *renameState) markTargetDir(dir string) {
	for dir != "" {
		if rs.targetDirs[dir] {
			return // ancestors already recorded by a previous call
		}
		rs.targetDirs[dir] = true
		idx := -1
		for i := len(dir) - 1; i >= 0; i-- {
			if dir[i] == '/' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		dir = dir[:idx]
	}
}

// resetForRedo clears everything the main walk populates, keeping only the
// side identity and the Engine-level cache pointer, so the collector's
// single retry pass (§4.1 Redo trigger) starts from a clean slate.
func (rs *renameState) resetForRedo() {
	rs.candidates = nil
	rs.relevant = make(map[string]relevance)
	rs.dirsRemoved = make(map[string]bool)
	rs.dirRenameCount = make(map[string]map[string]int)
	rs.possibleTrivialMerges = make(map[string]deferredSubtree)
	rs.targetDirs = make(map[string]bool)
	rs.dirRenames = make(map[string]string)
	rs.trivialMergeOkay = false
	rs.dirRenameMask = 0
}
