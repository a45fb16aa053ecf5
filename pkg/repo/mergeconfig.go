package repo

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/ort/pkg/ortmerge"
)

// MergeConfig holds the subset of ortmerge.Options a repository can override
// from .got/merge.toml.
type MergeConfig struct {
	RenameScore            int    `toml:"rename_score"`
	RenameLimit            int    `toml:"rename_limit"`
	DetectDirectoryRenames string `toml:"detect_directory_renames"` // "none", "conflict", "true"
	Side1Label             string `toml:"side1_label"`
	Side2Label             string `toml:"side2_label"`
}

// LoadMergeConfig reads .got/merge.toml, if present, and applies it on top
// of ortmerge.DefaultOptions. A missing file is not an error.
func (r *Repo) LoadMergeConfig() (ortmerge.Options, error) {
	opts := ortmerge.DefaultOptions()

	path := filepath.Join(r.GotDir, "merge.toml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return opts, err
	}

	var cfg MergeConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return opts, err
	}

	if cfg.RenameScore > 0 {
		opts.RenameScore = cfg.RenameScore
	}
	if cfg.RenameLimit > 0 {
		opts.RenameLimit = cfg.RenameLimit
	}
	switch cfg.DetectDirectoryRenames {
	case "none":
		opts.DetectDirectoryRenames = ortmerge.DirRenameNone
	case "conflict":
		opts.DetectDirectoryRenames = ortmerge.DirRenameConflict
	case "true", "":
		// keep the default
	}
	if cfg.Side1Label != "" {
		opts.Side1Label = cfg.Side1Label
	}
	if cfg.Side2Label != "" {
		opts.Side2Label = cfg.Side2Label
	}
	return opts, nil
}
