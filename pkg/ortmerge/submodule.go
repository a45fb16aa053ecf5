package ortmerge

import "github.com/odvcencio/ort/pkg/object"

// SubmoduleResolution is the outcome of merging a gitlink entry (§4.5).
type SubmoduleResolution struct {
	Resolved   bool
	Result     object.Hash
	Candidates []object.Hash // the one merge base found, when Resolved is false and both sides diverged from it
	Message    string
}

// mergeSubmodule implements §4.5's submodule merge: attempt a fast-forward
// in either direction before falling back to an ancestry-path search.
func mergeSubmodule(finder MergeBaseFinder, checker AncestorChecker, base, side1, side2 object.Hash) (SubmoduleResolution, error) {
	if side1 == side2 {
		return SubmoduleResolution{Resolved: true, Result: side1}, nil
	}
	if side1 == base {
		return SubmoduleResolution{Resolved: true, Result: side2}, nil
	}
	if side2 == base {
		return SubmoduleResolution{Resolved: true, Result: side1}, nil
	}

	if checker != nil {
		ff2, err := checker.IsAncestor(side1, side2)
		if err != nil {
			return SubmoduleResolution{}, err
		}
		if ff2 {
			return SubmoduleResolution{Resolved: true, Result: side2}, nil
		}
		ff1, err := checker.IsAncestor(side2, side1)
		if err != nil {
			return SubmoduleResolution{}, err
		}
		if ff1 {
			return SubmoduleResolution{Resolved: true, Result: side1}, nil
		}
	}

	if finder == nil {
		return SubmoduleResolution{
			Resolved: false,
			Message:  "no merge-base finder available",
		}, nil
	}
	mb, err := finder.FindMergeBase(side1, side2)
	if err != nil || mb == "" {
		return SubmoduleResolution{
			Resolved: false,
			Message:  "submodule commits share no common history",
		}, nil
	}

	switch mb {
	case side1:
		return SubmoduleResolution{Resolved: true, Result: side2}, nil
	case side2:
		return SubmoduleResolution{Resolved: true, Result: side1}, nil
	default:
		// Both sides are forward of the merge base but incomparable to
		// each other; report the one ancestry-path candidate this
		// collaborator can discover without a dedicated "all merge
		// bases" traversal (§9 open question: the full N-candidate case
		// is approximated as {0, 1} rather than enumerated exhaustively).
		return SubmoduleResolution{
			Resolved:   false,
			Candidates: []object.Hash{mb},
			Message:    "submodule diverged on both sides; manual resolution required",
		}, nil
	}
}
