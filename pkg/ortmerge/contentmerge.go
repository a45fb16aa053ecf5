package ortmerge

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/odvcencio/ort/pkg/diff3"
	"github.com/odvcencio/ort/pkg/merge"
)

// defaultContentMerger is the ContentMerger installed when Engine is built
// without an explicit override. For recognized source languages it delegates
// to the structural entity merge; everything else gets a line-level diff3
// merge rendered with the caller's conflict-marker size, labels, and
// recursive variant (§4.5, §6).
type defaultContentMerger struct{}

// NewDefaultContentMerger returns the ContentMerger the package uses unless
// the caller supplies its own.
func NewDefaultContentMerger() ContentMerger { return defaultContentMerger{} }

func (defaultContentMerger) Merge(base, side1, side2 []byte, paths [3]string, markerSize int, variant RecursiveVariant, renormalize bool) ([]byte, bool) {
	if renormalize {
		base = renormalizeText(base)
		side1 = renormalizeText(side1)
		side2 = renormalizeText(side2)
	}

	switch variant {
	case VariantOurs:
		return side1, true
	case VariantTheirs:
		return side2, true
	}

	if isStructurallyMergeable(paths[1], paths[2]) && markerSize == 7 {
		res, err := merge.MergeFiles(representativePath(paths), base, side1, side2)
		if err == nil {
			return res.Merged, !res.HasConflicts
		}
	}

	return lineMerge(base, side1, side2, paths, markerSize)
}

func representativePath(paths [3]string) string {
	for _, p := range paths {
		if p != "" {
			return p
		}
	}
	return ""
}

func isStructurallyMergeable(path1, path2 string) bool {
	p := path1
	if p == "" {
		p = path2
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".go", ".py", ".rs", ".ts", ".tsx", ".js", ".jsx", ".c", ".h", ".cpp", ".cc", ".cxx", ".hpp", ".java":
		return true
	default:
		return false
	}
}

// renormalizeText collapses CRLF to LF before comparison, matching the
// normalize-both-sides handling modify/delete conflicts use to avoid
// reporting a conflict over a pure line-ending change (§4.4 C4).
func renormalizeText(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}

// lineMerge renders diff3's hunk list with caller-controlled marker width
// and per-side labels instead of diff3.Merge's fixed "ours"/"theirs" markers.
func lineMerge(base, side1, side2 []byte, paths [3]string, markerSize int) ([]byte, bool) {
	result := diff3.Merge(base, side1, side2)
	if !result.HasConflicts {
		return result.Merged, true
	}

	markers := strings.Repeat("<", markerSize)
	mid := strings.Repeat("=", markerSize)
	closers := strings.Repeat(">", markerSize)

	label1 := paths[1]
	if label1 == "" {
		label1 = "ours"
	}
	label2 := paths[2]
	if label2 == "" {
		label2 = "theirs"
	}

	var buf bytes.Buffer
	for _, h := range result.Hunks {
		if h.Type == diff3.HunkClean {
			buf.Write(h.Merged)
			continue
		}
		buf.WriteString(markers)
		buf.WriteByte(' ')
		buf.WriteString(label1)
		buf.WriteByte('\n')
		buf.Write(h.Ours)
		buf.WriteString(mid)
		buf.WriteByte('\n')
		buf.Write(h.Theirs)
		buf.WriteString(closers)
		buf.WriteByte(' ')
		buf.WriteString(label2)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), false
}
