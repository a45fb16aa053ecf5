// Package ortmerge implements an in-memory three-way tree merge engine.
//
// Given a common-ancestor tree and two side trees from a content-addressed
// object store, MergeNonRecursive and MergeRecursive produce a merged tree
// plus the set of paths that could not be resolved automatically. Neither
// function touches a working directory; callers are responsible for
// checking out the result.
package ortmerge

import "github.com/odvcencio/ort/pkg/object"

// Role indexes the three inputs to a merge.
type Role int

const (
	RoleBase  Role = 0
	RoleSide1 Role = 1
	RoleSide2 Role = 2
)

// roleBit returns the bit used for this role in filemask/dirmask/matchMask.
func roleBit(r Role) int { return 1 << uint(r) }

// FileMode is a small integer encoding entry type plus permission bits,
// using the same numeric space git trees use so existing object-store
// serialization round-trips unchanged.
type FileMode uint32

const (
	ModeNone       FileMode = 0
	ModeRegular    FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeSubmodule  FileMode = 0o160000
	ModeDir        FileMode = 0o040000
)

// IsFile reports whether the mode denotes a regular/executable/symlink blob.
func (m FileMode) IsFile() bool {
	switch m {
	case ModeRegular, ModeExecutable, ModeSymlink:
		return true
	default:
		return false
	}
}

// IsDir reports whether the mode denotes a tree.
func (m FileMode) IsDir() bool { return m == ModeDir }

// IsSubmodule reports whether the mode denotes a gitlink/submodule entry.
func (m FileMode) IsSubmodule() bool { return m == ModeSubmodule }

// treeEntryMode maps the object-store's string mode to a FileMode.
func treeEntryMode(e object.TreeEntry) FileMode {
	if e.IsDir {
		return ModeDir
	}
	switch e.Mode {
	case object.TreeModeExecutable:
		return ModeExecutable
	case object.TreeModeSymlink:
		return ModeSymlink
	case object.TreeModeSubmodule:
		return ModeSubmodule
	default:
		return ModeRegular
	}
}

// storeMode renders a FileMode back to the object store's string mode.
func storeMode(m FileMode) string {
	switch m {
	case ModeExecutable:
		return object.TreeModeExecutable
	case ModeSymlink:
		return object.TreeModeSymlink
	case ModeSubmodule:
		return object.TreeModeSubmodule
	case ModeDir:
		return object.TreeModeDir
	default:
		return object.TreeModeFile
	}
}

// VersionInfo names one (object id, mode) pair.
type VersionInfo struct {
	Oid  object.Hash
	Mode FileMode
}

func (v VersionInfo) isNull() bool { return v.Mode == ModeNone }

func versionsEqual(a, b VersionInfo) bool {
	return a.Mode == b.Mode && a.Oid == b.Oid
}

// StageTriple carries the three roles' VersionInfo plus each role's own
// pathname (renames can make these differ from the record's map key).
type StageTriple struct {
	Versions [3]VersionInfo
	Paths    [3]string
}

// DirRenameMode selects how directory-rename inference behaves.
type DirRenameMode int

const (
	DirRenameNone     DirRenameMode = iota // don't infer directory renames
	DirRenameConflict                      // infer, but always leave as conflicted if ambiguous
	DirRenameTrue                          // infer and apply when unambiguous
)

// RecursiveVariant controls how otherwise-conflicting content is resolved
// during a recursive-ancestor merge.
type RecursiveVariant int

const (
	VariantNormal RecursiveVariant = iota
	VariantOurs
	VariantTheirs
)

// defaultRenameLimit is used whenever Options.RenameLimit is <= 0.
const defaultRenameLimit = 1000

// MaxRenameScore bounds Options.RenameScore.
const MaxRenameScore = 100
