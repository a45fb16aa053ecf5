package ortmerge

import (
	"sort"
	"strconv"
	"strings"
)

// collapseDirRenames implements §4.2.2: for each old directory, find the new
// directory that absorbed the most individual file renames out of it. A tie
// for the top count is a "directory rename split" — the directory is left
// unmapped and the merge becomes unclean for anything that would have used
// it (P8).
func (rs *renameState) collapseDirRenames() (splits []string) {
	for oldDir, counts := range rs.dirRenameCount {
		best, bestCount, tie := "", -1, false
		// Deterministic order over destinations for reproducible output
		// when counts tie and none of them wins outright.
		dests := make([]string, 0, len(counts))
		for d := range counts {
			dests = append(dests, d)
		}
		sort.Strings(dests)
		for _, d := range dests {
			n := counts[d]
			switch {
			case n > bestCount:
				best, bestCount, tie = d, n, false
			case n == bestCount:
				tie = true
			}
		}
		if tie {
			splits = append(splits, oldDir)
			continue
		}
		rs.dirRenames[oldDir] = best
	}
	return splits
}

// invalidateDirRename drops a previously collapsed directory rename (used
// for the two invalidation passes described in §4.2.2: a directory both
// sides renamed, and a directory whose PATH MAP record is clean or still a
// directory, never gets a directory rename applied).
func (rs *renameState) invalidateDirRename(oldDir string) {
	delete(rs.dirRenames, oldDir)
}

// directoryDestination resolves the new location for a path whose immediate
// or ancestor directory was renamed, applying the longest matching prefix so
// nested renames compose (e.g. a/b -> a/c implies a/b/x -> a/c/x).
func directoryDestination(dirRenames map[string]string, dir string) (string, bool) {
	for {
		if target, ok := dirRenames[dir]; ok {
			return target, true
		}
		idx := strings.LastIndexByte(dir, '/')
		if idx < 0 {
			return "", false
		}
		dir = dir[:idx]
	}
}

// applyImplicitRename computes the path a file lands at once directory
// rename inference is folded in: for a path whose OWN filename wasn't a
// detected rename target, check whether any ancestor directory was renamed
// and, if so, relocate it underneath the new directory name, preserving the
// remainder of the path below the renamed prefix.
func applyImplicitRename(dirRenames map[string]string, path string) (string, bool) {
	idx := strings.LastIndexByte(path, '/')
	dir := ""
	if idx >= 0 {
		dir = path[:idx]
	}
	if dir == "" {
		return path, false
	}
	target, ok := directoryDestination(dirRenames, dir)
	if !ok {
		return path, false
	}
	// Replace exactly the matched ancestor prefix, keep everything below it.
	matched := dir
	for {
		if _, ok := dirRenames[matched]; ok {
			break
		}
		idx := strings.LastIndexByte(matched, '/')
		if idx < 0 {
			break
		}
		matched = matched[:idx]
	}
	rest := strings.TrimPrefix(path, matched)
	return target + rest, true
}

// collision is one destination path multiple renames (or a rename and a
// pre-existing entry) want to land on simultaneously (§4.2.3).
type collision struct {
	path    string
	sources []string
}

// detectCollisions finds every destination path targeted by more than one
// source once both regular and directory renames are applied, mirroring
// compute_collisions.
func detectCollisions(destinations map[string][]string) []collision {
	var out []collision
	dests := make([]string, 0, len(destinations))
	for d := range destinations {
		dests = append(dests, d)
	}
	sort.Strings(dests)
	for _, d := range dests {
		srcs := destinations[d]
		if len(srcs) > 1 {
			sorted := append([]string{}, srcs...)
			sort.Strings(sorted)
			out = append(out, collision{path: d, sources: sorted})
		}
	}
	return out
}

// uniquePath implements git's unique_path(): "<path>~<branch>", flattening
// any '/' in branch to '_', then probing "_0", "_1", ... until the result is
// absent from existing.
func uniquePath(existing map[string]bool, path, branch string) string {
	flat := strings.ReplaceAll(branch, "/", "_")
	base := path + "~" + flat
	if !existing[base] {
		return base
	}
	for suffix := 0; ; suffix++ {
		candidate := base + "_" + strconv.Itoa(suffix)
		if !existing[candidate] {
			return candidate
		}
	}
}
