package ortmerge

// Options is the surface enumerated in §6.
type Options struct {
	AncestorLabel string
	Side1Label    string
	Side2Label    string

	DetectDirectoryRenames DirRenameMode
	RenameLimit            int // <=0 means default (1000); see SPEC_FULL.md open-question decision
	RenameScore            int // [0, MaxRenameScore]

	RecursiveVariant RecursiveVariant
	Renormalize      bool

	// callDepth counts nesting for recursive-ancestor construction and
	// rename/rename(2to1) virtual merges; it widens conflict-marker size
	// (§4.5) and, at depth>0, disables C3's mode-conflict check (see
	// resolver.go's resolveC3) so a virtual-ancestor merge silently keeps
	// the winning mode instead of reporting a conflict (§9 open question
	// 1, mirrored as-is).
	callDepth int
}

// DefaultOptions returns the engine's defaults.
func DefaultOptions() Options {
	return Options{
		AncestorLabel:          "merged common ancestors",
		Side1Label:             "ours",
		Side2Label:             "theirs",
		DetectDirectoryRenames: DirRenameTrue,
		RenameLimit:            defaultRenameLimit,
		RenameScore:            50,
	}
}

func (o Options) renameLimit() int {
	if o.RenameLimit <= 0 {
		return defaultRenameLimit
	}
	return o.RenameLimit
}

func (o Options) markerSize() int {
	// git widens conflict markers by 2 for every level of merge nesting so
	// nested conflict markers remain visually distinguishable.
	return 7 + 2*o.callDepth
}
