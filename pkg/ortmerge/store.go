package ortmerge

import "github.com/odvcencio/ort/pkg/object"

// Store is everything the core needs from the object store (§6). It is
// satisfied directly by *object.Store, no adapter required.
type Store interface {
	ReadTree(h object.Hash) (*object.TreeObj, error)
	ReadBlob(h object.Hash) (*object.Blob, error)
	WriteBlob(b *object.Blob) (object.Hash, error)
	WriteTree(tr *object.TreeObj) (object.Hash, error)
	ReadCommit(h object.Hash) (*object.CommitObj, error)
}

// MergeBaseFinder is the collaborator submodule merges (§4.5) use to locate
// candidate ancestry-path merge bases. *repo.Repo already implements this.
type MergeBaseFinder interface {
	FindMergeBase(a, b object.Hash) (object.Hash, error)
}

// AncestorChecker reports whether a is an ancestor of (or equal to) b.
// Optional: submodule merges fall back to MergeBaseFinder alone when this
// is nil.
type AncestorChecker interface {
	IsAncestor(a, b object.Hash) (bool, error)
}

// ContentMerger performs the three-way text merge of blob contents (§4.5,
// §6). The core treats it as a pure function; base may be nil to indicate
// "absent in the common ancestor".
type ContentMerger interface {
	Merge(base, side1, side2 []byte, paths [3]string, markerSize int, variant RecursiveVariant, renormalize bool) (result []byte, clean bool)
}
