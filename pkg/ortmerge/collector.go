package ortmerge

import (
	"fmt"
	"sort"

	"github.com/odvcencio/ort/pkg/object"
)

// collector implements §4.1: the joint three-tree walk.
type collector struct {
	store   Store
	pathMap *PathMap
	rename  [3]*renameState // indexed by Role; rename[0] unused

	// workQueue holds directories still to be joined and walked (N5).
	workQueue []workItem

	prePathCount int
	redone       bool

	// bulkAdoptedCount and bulkAdoptedChildEstimate let shouldRedo compare
	// the actual (collapsed) path count against what the tree would have
	// looked like if every bulk-adopted directory had at least been walked
	// one level deep, without paying for a full recursive read of any of
	// them (§4.1's Redo trigger).
	bulkAdoptedCount         int
	bulkAdoptedChildEstimate int
}

// redoShrinkFactor (K in §4.1's Redo trigger) is how far the post-deferral
// path count must fall below the pre-deferral count to trigger a redo: a
// shrink past 1/K means a large share of the tree was bulk-adopted without
// ever being inspected for rename sources.
const redoShrinkFactor = 10

type workItem struct {
	path  string // "" at the root
	trees [3]object.Hash
}

func newCollector(store Store, pathMap *PathMap, renameSide1, renameSide2 *renameState) *collector {
	return &collector{
		store:   store,
		pathMap: pathMap,
		rename:  [3]*renameState{nil, renameSide1, renameSide2},
	}
}

// run walks the three root trees and populates the PATH MAP / RENAME STATE
// candidate lists. When bulk-adopting deferred trivial directories (§4.1.1)
// turns out to have skipped a large fraction of the tree, it redoes the
// entire collection once with deferral disabled (the Redo trigger, §4.1
// last paragraph).
func (c *collector) run(baseTree, side1Tree, side2Tree object.Hash) error {
	trees := [3]object.Hash{baseTree, side1Tree, side2Tree}

	if err := c.drain(&trees); err != nil {
		return err
	}
	c.prePathCount = c.pathMap.len()
	if err := c.handleDeferred(); err != nil {
		return err
	}
	// handleDeferred may have requeued expanded subtrees; walk those too.
	if err := c.drain(nil); err != nil {
		return err
	}

	if !c.redone && c.shouldRedo() {
		c.redone = true
		c.pathMap.reset()
		c.bulkAdoptedCount = 0
		c.bulkAdoptedChildEstimate = 0
		for _, side := range [2]Role{RoleSide1, RoleSide2} {
			c.rename[side].resetForRedo()
			if c.rename[side].cache != nil {
				c.rename[side].cache.invalidate()
			}
		}
		if err := c.drain(&trees); err != nil {
			return err
		}
		c.prePathCount = c.pathMap.len()
		// trivialMergeOkay is false on every side now, so handleDeferred
		// finds nothing parked; called anyway for symmetry/clarity.
		if err := c.handleDeferred(); err != nil {
			return err
		}
	}
	return nil
}

// drain processes queued work items, enqueuing a fresh root item first when
// roots is non-nil; used both for the initial walk (roots set) and to
// finish any subtrees handleDeferred decided to expand (roots nil, just
// drain whatever handleDeferred already pushed).
func (c *collector) drain(roots *[3]object.Hash) error {
	if roots != nil {
		c.workQueue = append(c.workQueue, workItem{trees: *roots})
	}
	for len(c.workQueue) > 0 {
		item := c.workQueue[0]
		c.workQueue = c.workQueue[1:]
		if err := c.processDir(item); err != nil {
			return err
		}
	}
	return nil
}

// shouldRedo implements the Redo trigger: compares the actual (collapsed)
// path count against a cheap estimate of what it would have been had every
// bulk-adopted directory been walked one level deep instead of adopted
// whole — a shrink past 1/redoShrinkFactor means deferral likely hid
// enough of the tree that rename detection could be missing sources.
func (c *collector) shouldRedo() bool {
	virtual := c.prePathCount - c.bulkAdoptedCount + c.bulkAdoptedChildEstimate
	if virtual == 0 {
		return false
	}
	return c.pathMap.len()*redoShrinkFactor < virtual
}

// joinedEntry is one name present under at least one of the three trees at
// this level.
type joinedEntry struct {
	name                string
	entries             [3]*object.TreeEntry
}

func (c *collector) readEntries(oid object.Hash) (map[string]*object.TreeEntry, []string, error) {
	if oid == "" {
		return nil, nil, nil
	}
	tr, err := c.store.ReadTree(oid)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	m := make(map[string]*object.TreeEntry, len(tr.Entries))
	names := make([]string, 0, len(tr.Entries))
	for i := range tr.Entries {
		e := &tr.Entries[i]
		m[e.Name] = e
		names = append(names, e.Name)
	}
	return m, names, nil
}

// processDir performs the lexical-order simultaneous join of the three
// trees at item.path and dispatches each joined entry.
func (c *collector) processDir(item workItem) error {
	baseMap, baseNames, err := c.readEntries(item.trees[0])
	if err != nil {
		return err
	}
	side1Map, side1Names, err := c.readEntries(item.trees[1])
	if err != nil {
		return err
	}
	side2Map, side2Names, err := c.readEntries(item.trees[2])
	if err != nil {
		return err
	}

	nameSet := make(map[string]bool)
	for _, n := range baseNames {
		nameSet[n] = true
	}
	for _, n := range side1Names {
		nameSet[n] = true
	}
	for _, n := range side2Names {
		nameSet[n] = true
	}
	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sort.Strings(names)

	prevMask1 := c.rename[1].dirRenameMask
	prevMask2 := c.rename[2].dirRenameMask

	for _, name := range names {
		je := joinedEntry{
			name: name,
			entries: [3]*object.TreeEntry{
				baseMap[name], side1Map[name], side2Map[name],
			},
		}
		if err := c.dispatch(item.path, je); err != nil {
			return err
		}
	}

	c.rename[1].dirRenameMask = prevMask1
	c.rename[2].dirRenameMask = prevMask2
	return nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// dispatch classifies one joined entry, applying the early-resolution
// rules R1-R4 and enqueuing rename candidates / recursion as needed.
func (c *collector) dispatch(dir string, je joinedEntry) error {
	path := joinPath(dir, je.name)

	var versions [3]VersionInfo
	var present [3]bool
	filemask, dirmask := 0, 0
	for i := 0; i < 3; i++ {
		e := je.entries[i]
		if e == nil {
			continue
		}
		present[i] = true
		mode := treeEntryMode(*e)
		oid := e.BlobHash
		if e.IsDir {
			oid = e.SubtreeHash
		}
		versions[i] = VersionInfo{Oid: oid, Mode: mode}
		if mode.IsDir() {
			dirmask |= roleBit(Role(i))
		} else {
			filemask |= roleBit(Role(i))
		}
	}

	matchMask := computeMatchMask(present, versions)
	dfConflict := filemask != 0 && dirmask != 0

	// R1: all three equal (file or dir) and no type conflict.
	if !dfConflict && matchMask == 7 {
		rec := c.pathMap.getOrCreate(path)
		rec.Clean = true
		rec.Result = versions[0]
		rec.IsNull = versions[0].isNull()
		if dirmask == 7 {
			return nil // nothing changed anywhere; skip recursion entirely
		}
		return nil
	}

	// R2/R3 only apply when the entry is a file on all three sides.
	if !dfConflict && filemask == 7 {
		if versions[1] == versions[2] {
			rec := c.pathMap.getOrCreate(path)
			rec.Clean = true
			rec.Result = versions[1]
			rec.IsNull = versions[1].isNull()
			c.enqueueCandidates(dir, path, present, versions, filemask)
			return nil
		}
		if versions[1] == versions[0] {
			rec := c.pathMap.getOrCreate(path)
			rec.Clean = true
			rec.Result = versions[2]
			rec.IsNull = versions[2].isNull()
			return nil
		}
		if versions[2] == versions[0] {
			rec := c.pathMap.getOrCreate(path)
			rec.Clean = true
			rec.Result = versions[1]
			rec.IsNull = versions[1].isNull()
			return nil
		}
	}

	// R4: pending conflict record.
	rec := c.pathMap.getOrCreate(path)
	rec.Clean = false
	rec.FileMask = filemask
	rec.DirMask = dirmask
	rec.MatchMask = matchMask
	rec.DFConflict = dfConflict
	rec.Stage.Versions = versions
	for i := 0; i < 3; i++ {
		if present[i] {
			rec.Stage.Paths[i] = path
		}
	}

	c.enqueueCandidates(dir, path, present, versions, filemask)
	c.updateDirRenameMask(matchMask, filemask, dirmask)

	if dirmask == 0 {
		return nil
	}
	if !dfConflict && c.tryDeferTrivialDirectory(dir, path, je, dirmask, versions) {
		return nil
	}

	child := workItem{path: path}
	for i := 0; i < 3; i++ {
		if je.entries[i] != nil && je.entries[i].IsDir {
			child.trees[i] = je.entries[i].SubtreeHash
		}
	}
	c.workQueue = append(c.workQueue, child)
	return nil
}

// computeMatchMask encodes pairwise equality exactly as §3 specifies:
// bit pairs (0,1)->3, (0,2)->5, (1,2)->6, OR'd together.
func computeMatchMask(present [3]bool, versions [3]VersionInfo) int {
	mask := 0
	if present[0] && present[1] && versionsEqual(versions[0], versions[1]) {
		mask |= 3
	}
	if present[0] && present[2] && versionsEqual(versions[0], versions[2]) {
		mask |= 5
	}
	if present[1] && present[2] && versionsEqual(versions[1], versions[2]) {
		mask |= 6
	}
	return mask
}

// enqueueCandidates implements §4.1's per-file candidate enqueue rule.
func (c *collector) enqueueCandidates(dir, path string, present [3]bool, versions [3]VersionInfo, filemask int) {
	for _, s := range [2]Role{RoleSide1, RoleSide2} {
		baseHasFile := present[0] && versions[0].Mode.IsFile()
		sideHasFile := present[s] && versions[s].Mode.IsFile()
		rs := c.rename[s]

		switch {
		case baseHasFile && !sideHasFile:
			// Delete candidate on this side.
			rel := relevantContent
			if rs.dirRenameMask != 0 {
				rel = rel.add(relevantLocation)
			}
			rs.markRelevant(path, rel)
			rs.candidates = append(rs.candidates, candidatePair{
				oldPath: path,
				oldOid:  versions[0].Oid,
				oldMode: versions[0].Mode,
				status:  statusDelete,
			})
		case !baseHasFile && sideHasFile:
			rs.candidates = append(rs.candidates, candidatePair{
				newPath: path,
				newOid:  versions[s].Oid,
				newMode: versions[s].Mode,
				status:  statusAdd,
			})
			rs.markTargetDir(dir)
		}
	}
}

// updateDirRenameMask applies §4.1's dir_rename_mask propagation: once a
// side newly lacks a directory that is still present on the opposite side
// (dirmask 3 or 5), further siblings/children are marked 2 or 4 for the
// corresponding rename side; a file whose content still matches its
// pre-existing base state on the side that lacks the directory raises the
// mask to 7 (unsafe to elide rename sources anywhere further down).
func (c *collector) updateDirRenameMask(matchMask, filemask, dirmask int) {
	if dirmask == 3 { // base+side1 have the dir, side2 lacks it
		if c.rename[2].dirRenameMask != 7 {
			c.rename[2].dirRenameMask = 2
		}
	}
	if dirmask == 5 { // base+side2 have the dir, side1 lacks it
		if c.rename[1].dirRenameMask != 7 {
			c.rename[1].dirRenameMask = 4
		}
	}

	if filemask == 0 {
		return
	}
	// A file matching base on the side that lacks a directory here means
	// that side's removal can't be trusted for rename-source elision.
	if c.rename[1].dirRenameMask == 4 && matchMask&3 == 3 {
		c.rename[1].dirRenameMask = 7
	}
	if c.rename[2].dirRenameMask == 2 && matchMask&5 == 5 {
		c.rename[2].dirRenameMask = 7
	}
}

// tryDeferTrivialDirectory implements the §4.1 deferral: a directory
// present on all three sides where one side is untouched from base can be
// bulk-adopted from the side that changed, without walking its children,
// unless a rename might still need to land something inside it (decided
// later in handleDeferred). Disabled outright on the collector's redo pass
// (trivialMergeOkay == false) so a retry never repeats the same deferral.
func (c *collector) tryDeferTrivialDirectory(dir, path string, je joinedEntry, dirmask int, versions [3]VersionInfo) bool {
	if dirmask != 7 {
		return false
	}
	var changedSide Role
	switch {
	case versionsEqual(versions[0], versions[1]) && !versionsEqual(versions[0], versions[2]):
		changedSide = RoleSide2
	case versionsEqual(versions[0], versions[2]) && !versionsEqual(versions[0], versions[1]):
		changedSide = RoleSide1
	default:
		return false
	}
	if !c.rename[changedSide].trivialMergeOkay {
		return false
	}

	var subtreeTrees [3]object.Hash
	for i := 0; i < 3; i++ {
		if je.entries[i] != nil && je.entries[i].IsDir {
			subtreeTrees[i] = je.entries[i].SubtreeHash
		}
	}
	c.rename[changedSide].possibleTrivialMerges[path] = deferredSubtree{
		trees: subtreeTrees,
		mask:  c.rename[changedSide].dirRenameMask,
	}
	_ = dir
	return true
}

// handleDeferred implements DEFERRED HANDLING (§4.1.1): for each directory
// tryDeferTrivialDirectory parked, check whether the opposite side (the one
// that matched base here) has already placed — or, via its own adds, might
// still place via a directory rename — new content under this exact
// directory name (opposite.targetDirs). If so the deferral isn't safe and
// the subtree is requeued for a full walk; otherwise it's resolved by
// bulk-adopting the side that actually changed, without ever reading the
// objects inside it.
func (c *collector) handleDeferred() error {
	others := map[Role]Role{RoleSide1: RoleSide2, RoleSide2: RoleSide1}
	for _, side := range [2]Role{RoleSide1, RoleSide2} {
		other := c.rename[others[side]]
		for path, deferred := range c.rename[side].possibleTrivialMerges {
			if other.targetDirs[path] {
				c.workQueue = append(c.workQueue, workItem{path: path, trees: deferred.trees})
				continue
			}
			rec, ok := c.pathMap.get(path)
			if !ok {
				continue
			}
			rec.Clean = true
			rec.Result = rec.Stage.Versions[side]
			rec.IsNull = rec.Result.isNull()

			c.bulkAdoptedCount++
			if adopted := deferred.trees[side]; adopted != "" {
				if tr, err := c.store.ReadTree(adopted); err == nil {
					c.bulkAdoptedChildEstimate += len(tr.Entries)
				}
			}
		}
	}
	return nil
}
