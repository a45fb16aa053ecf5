package ortmerge

import (
	"sort"
	"strings"

	"github.com/odvcencio/ort/pkg/object"
)

// treeBuilder implements §4.6: bottom-up reconstruction of tree objects from
// the resolved PATH MAP, using two parallel stacks so every directory is
// serialized exactly once, after all of its children.
type treeBuilder struct {
	store Store

	versions []object.TreeEntry // flat buffer of not-yet-written entries
	offsets  []int              // offsets[i] is versions' start index for the i'th open directory
	dirs     []string           // dirs[i] is the directory path open at offsets[i]
}

func newTreeBuilder(store Store) *treeBuilder {
	tb := &treeBuilder{}
	tb.store = store
	tb.offsets = []int{0}
	tb.dirs = []string{""}
	return tb
}

// build consumes every non-null, non-directory record from pathMap, in
// RESOLVER's order (children before their parent directory), and returns
// the root tree's object id. Directory entries are never placed directly;
// closeInnermost synthesizes each one from its accumulated children.
func (tb *treeBuilder) build(pathMap *PathMap) (object.Hash, error) {
	order := sortedPathsDescending(pathMap.paths())

	for _, path := range order {
		rec, ok := pathMap.get(path)
		if !ok || rec.IsNull || rec.Result.Mode.IsDir() {
			continue
		}

		dir := rec.DirectoryName
		if err := tb.gotoDirectory(dir); err != nil {
			return "", err
		}

		name := path[rec.NameOffset:]
		tb.versions = append(tb.versions, object.TreeEntry{
			Name:        name,
			IsDir:       rec.Result.Mode.IsDir(),
			Mode:        storeMode(rec.Result.Mode),
			BlobHash:    blobHashOrEmpty(rec.Result),
			SubtreeHash: subtreeHashOrEmpty(rec.Result),
		})
	}

	// Close every directory still open, root last.
	for len(tb.offsets) > 1 {
		if err := tb.closeInnermost(); err != nil {
			return "", err
		}
	}

	return tb.flushRoot()
}

func blobHashOrEmpty(v VersionInfo) object.Hash {
	if v.Mode.IsDir() {
		return ""
	}
	return v.Oid
}

func subtreeHashOrEmpty(v VersionInfo) object.Hash {
	if v.Mode.IsDir() {
		return v.Oid
	}
	return ""
}

// gotoDirectory closes directories until the top of the stack is an
// ancestor-or-equal of dir, then opens whatever additional levels are
// needed to reach dir exactly.
func (tb *treeBuilder) gotoDirectory(dir string) error {
	for len(tb.dirs) > 1 && !isAncestorOrSelf(tb.dirs[len(tb.dirs)-1], dir) {
		if err := tb.closeInnermost(); err != nil {
			return err
		}
	}
	current := tb.dirs[len(tb.dirs)-1]
	for current != dir {
		next := nextComponent(current, dir)
		tb.dirs = append(tb.dirs, next)
		tb.offsets = append(tb.offsets, len(tb.versions))
		current = next
	}
	return nil
}

// closeInnermost serializes the innermost open directory's accumulated
// entries into a tree object, pops it, and (unless it turned out empty)
// pushes a directory entry for it onto its parent's still-open frame.
func (tb *treeBuilder) closeInnermost() error {
	n := len(tb.offsets)
	off := tb.offsets[n-1]
	dir := tb.dirs[n-1]
	entries := tb.versions[off:]

	tb.offsets = tb.offsets[:n-1]
	tb.dirs = tb.dirs[:n-1]

	if len(entries) == 0 {
		tb.versions = tb.versions[:off]
		return nil
	}

	sorted := append([]object.TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	oid, err := tb.store.WriteTree(&object.TreeObj{Entries: sorted})
	if err != nil {
		return err
	}
	tb.versions = tb.versions[:off]

	parent := tb.dirs[len(tb.dirs)-1]
	name := basename(dir, parent)
	tb.versions = append(tb.versions, object.TreeEntry{
		Name:        name,
		IsDir:       true,
		Mode:        object.TreeModeDir,
		SubtreeHash: oid,
	})
	return nil
}

// flushRoot writes the root tree from whatever remains at offset 0.
func (tb *treeBuilder) flushRoot() (object.Hash, error) {
	sorted := append([]object.TreeEntry(nil), tb.versions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return tb.store.WriteTree(&object.TreeObj{Entries: sorted})
}

func basename(path, parent string) string {
	if parent == "" {
		return path
	}
	return path[len(parent)+1:]
}

// isAncestorOrSelf reports whether ancestor is a path-prefix of dir (or
// equal to it) at a component boundary.
func isAncestorOrSelf(ancestor, dir string) bool {
	if ancestor == "" {
		return true
	}
	if ancestor == dir {
		return true
	}
	return strings.HasPrefix(dir, ancestor+"/")
}

// nextComponent returns ancestor extended by exactly one more path
// component on the way to dir.
func nextComponent(ancestor, dir string) string {
	rest := dir
	if ancestor != "" {
		rest = dir[len(ancestor)+1:]
	}
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return dir
	}
	if ancestor == "" {
		return rest[:idx]
	}
	return ancestor + "/" + rest[:idx]
}

