package ortmerge

import (
	"sort"

	"github.com/odvcencio/ort/pkg/diff3"
)

// similarity scores how much of oldContent survives unchanged in newContent,
// on git's 0-100 scale: equal lines over the number of lines in the line
// diff (equal, deleted and inserted lines together). Binary content
// (detected by a NUL byte) never matches anything but an identical blob.
func similarity(oldContent, newContent []byte) int {
	if len(oldContent) == 0 && len(newContent) == 0 {
		return MaxRenameScore
	}
	if string(oldContent) == string(newContent) {
		return MaxRenameScore
	}
	if isBinary(oldContent) || isBinary(newContent) {
		return 0
	}

	lines := diff3.LineDiff(oldContent, newContent)
	equal, total := 0, 0
	for _, l := range lines {
		if l.Type == diff3.Equal {
			equal++
		}
		total++
	}
	if total == 0 {
		return MaxRenameScore
	}
	return equal * MaxRenameScore / total
}

func isBinary(b []byte) bool {
	limit := len(b)
	if limit > 8192 {
		limit = 8192
	}
	for i := 0; i < limit; i++ {
		if b[i] == 0 {
			return true
		}
	}
	return false
}

// renameDetector performs §4.2.1's regular rename detection for one side.
type renameDetector struct {
	store    Store
	state    *renameState
	minScore int
	limit    int
}

func newRenameDetector(store Store, state *renameState, minScore, limit int) *renameDetector {
	return &renameDetector{store: store, state: state, minScore: minScore, limit: limit}
}

// detect takes the add candidates in order and pairs each with the
// still-unused delete candidate that scores highest against it, recording a
// rename when that score is at least minScore. The renames are returned by
// descending score, followed by the leftover deletes and adds as plain
// statusDelete/statusAdd. When the cache's valid side matches this side
// (§4.2.4), a delete with a cached entry from a prior merge is only
// considered for the add at its cached new path (a cached delete is never
// paired); those pairs are still scored.
func (d *renameDetector) detect() ([]candidatePair, bool, error) {
	var adds, deletes []candidatePair
	for _, c := range d.state.candidates {
		switch c.status {
		case statusAdd:
			adds = append(adds, c)
		case statusDelete:
			deletes = append(deletes, c)
		}
	}

	limitHit := false
	if d.limit > 0 && len(adds)*len(deletes) > d.limit*d.limit {
		limitHit = true
		// Past the limit, similarity detection is skipped entirely and
		// every candidate degrades to a plain add/delete (§7
		// SIMILARITY_LIMIT_HIT).
		return append(append([]candidatePair{}, adds...), deletes...), true, nil
	}

	usedOld := make(map[int]bool)
	usedNew := make(map[int]bool)
	var scored []candidatePair

	cacheValid := d.state.cache != nil && d.state.cache.validSide == int(d.state.side)

	for ni, a := range adds {
		bestScore := -1
		bestOi := -1
		for oi, del := range deletes {
			if usedOld[oi] {
				continue
			}
			if cacheValid {
				if cached, ok := d.state.cache.pairs[del.oldPath]; ok {
					if cached != a.newPath {
						continue
					}
				}
			}
			sc, err := d.score(del, a)
			if err != nil {
				return nil, false, err
			}
			if sc > bestScore {
				bestScore = sc
				bestOi = oi
			}
		}
		if bestOi >= 0 && bestScore >= d.minScore {
			pair := candidatePair{
				oldPath: deletes[bestOi].oldPath,
				newPath: a.newPath,
				oldOid:  deletes[bestOi].oldOid,
				oldMode: deletes[bestOi].oldMode,
				newOid:  a.newOid,
				newMode: a.newMode,
				status:  statusRename,
				score:   bestScore,
			}
			scored = append(scored, pair)
			usedOld[bestOi] = true
			usedNew[ni] = true
			if d.state.cache != nil {
				d.state.cache.pairs[pair.oldPath] = pair.newPath
				d.state.cache.hasPair[pair.oldPath] = true
			}
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := append([]candidatePair{}, scored...)
	for oi, del := range deletes {
		if !usedOld[oi] {
			out = append(out, del)
			if d.state.cache != nil {
				d.state.cache.pairs[del.oldPath] = ""
				d.state.cache.hasPair[del.oldPath] = true
			}
		}
	}
	for ni, a := range adds {
		if !usedNew[ni] {
			out = append(out, a)
		}
	}
	return out, false, nil
}

func (d *renameDetector) score(del, add candidatePair) (int, error) {
	if !del.oldMode.IsFile() || !add.newMode.IsFile() {
		return 0, nil
	}
	oldBlob, err := d.store.ReadBlob(del.oldOid)
	if err != nil {
		return 0, err
	}
	newBlob, err := d.store.ReadBlob(add.newOid)
	if err != nil {
		return 0, err
	}
	return similarity(oldBlob.Data, newBlob.Data), nil
}
