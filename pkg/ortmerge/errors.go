package ortmerge

import "errors"

// Fatal error kinds (§7). These abort the merge; everything else is
// recorded per-path and does not interrupt processing of other paths.
var (
	ErrObjectMissing = errors.New("ortmerge: object missing from store")
	ErrMalformedTree = errors.New("ortmerge: tree object could not be parsed")
	ErrIOFailure     = errors.New("ortmerge: object write failed")
)

// nonFatal error kinds are never returned to the caller; they are recorded
// as per-path messages and/or PathConflict/DFConflict flags (§7):
//   - SIMILARITY_LIMIT_HIT — recorded in Engine.Messages[""] once detection
//     skips sources past Options.RenameLimit.
//   - SUBMODULE_UNAVAILABLE — recorded at the submodule's path.
//   - CONTENT_MERGE_FAILED — folded into that path's unclean result.
