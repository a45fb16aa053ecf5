package ortmerge

import "sort"

// compareDirAdjacent implements N6: compare two paths byte-wise, but treat
// the end of each string as a virtual '/'. This is exactly git's tree entry
// ordering (a directory sorts as if its name ended in '/'), so a directory's
// placeholder record always sorts immediately before every path nested under
// it, never among file siblings whose name merely shares the same prefix
// (e.g. "foo.txt" sorts before the directory "foo", since '.' < '/').
func compareDirAdjacent(a, b string) int {
	i := 0
	for {
		aEnd := i > len(a)
		bEnd := i > len(b)
		if aEnd && bEnd {
			return 0
		}
		if aEnd {
			return -1
		}
		if bEnd {
			return 1
		}
		var ca, cb byte
		if i == len(a) {
			ca = '/'
		} else {
			ca = a[i]
		}
		if i == len(b) {
			cb = '/'
		} else {
			cb = b[i]
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
	}
}

// sortedPathsDescending returns paths ordered by compareDirAdjacent,
// descending. This is the "directories next to their children, walked in
// reverse" order §4.3 requires: every path nested under a directory is
// visited before the directory's own placeholder record, which is exactly
// what the TREE BUILDER (§4.6) needs to close a directory only once all of
// its children have been emitted.
func sortedPathsDescending(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Slice(out, func(i, j int) bool {
		return compareDirAdjacent(out[i], out[j]) > 0
	})
	return out
}
