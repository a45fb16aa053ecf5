package repo

import (
	"fmt"

	"github.com/odvcencio/ort/pkg/object"
	"github.com/odvcencio/ort/pkg/ortmerge"
)

// ortEngine builds an ortmerge.Engine wired to this repository's object
// store and merge-base machinery. *object.Store already satisfies
// ortmerge.Store directly; *Repo satisfies ortmerge.MergeBaseFinder and
// ortmerge.AncestorChecker via FindMergeBase and IsAncestor.
func (r *Repo) ortEngine(opts ortmerge.Options) *ortmerge.Engine {
	e := ortmerge.NewEngine(r.Store, r, opts)
	e.Checker = r
	return e
}

// MergeTreesORT runs the core tree-merge engine directly against three tree
// objects, bypassing commit lookups entirely. Exposed for callers (tests,
// recursive-ancestor construction) that already have tree ids in hand.
func (r *Repo) MergeTreesORT(baseTree, side1Tree, side2Tree object.Hash, opts ortmerge.Options) (*ortmerge.MergeResult, error) {
	return r.ortEngine(opts).MergeNonRecursive(baseTree, side1Tree, side2Tree)
}

// MergeCommitsORT merges two commits using the ort tree-walking engine.
// It makes one FindMergeBase call and passes that single merge base's tree
// (or no base when none is found) to MergeRecursive; it does not look for
// further merge bases, so no virtual ancestor is built here.
func (r *Repo) MergeCommitsORT(side1Commit, side2Commit object.Hash, opts ortmerge.Options) (*ortmerge.MergeResult, error) {
	base, err := r.FindMergeBase(side1Commit, side2Commit)
	if err != nil {
		return nil, fmt.Errorf("merge commits: find merge base: %w", err)
	}

	side1Tree, err := r.commitTree(side1Commit)
	if err != nil {
		return nil, err
	}
	side2Tree, err := r.commitTree(side2Commit)
	if err != nil {
		return nil, err
	}

	var baseTree object.Hash
	if base != "" {
		baseTree, err = r.commitTree(base)
		if err != nil {
			return nil, err
		}
	}

	var bases []object.Hash
	if baseTree != "" {
		bases = []object.Hash{baseTree}
	}
	return r.ortEngine(opts).MergeRecursive(bases, side1Tree, side2Tree)
}

func (r *Repo) commitTree(h object.Hash) (object.Hash, error) {
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", h, err)
	}
	return c.TreeHash, nil
}

// CherryPickSequence replays a sequence of commits' tree-level changes onto
// a base tree using one shared Engine. Each step's side1 ("ours") tree is
// the previous step's result; the side1 rename cache is declared valid for
// a step whose base equals the previous step's side2 (commit) tree.
type CherryPickSequence struct {
	repo      *Repo
	engine    *ortmerge.Engine
	tree      object.Hash
	prevSide2 object.Hash
	first     bool
}

// NewCherryPickSequence starts a cherry-pick/rebase run from ontoTree,
// reusing opts for every step.
func (r *Repo) NewCherryPickSequence(ontoTree object.Hash, opts ortmerge.Options) *CherryPickSequence {
	return &CherryPickSequence{
		repo:   r,
		engine: r.ortEngine(opts),
		tree:   ontoTree,
		first:  true,
	}
}

// Tree returns the sequence's current result tree.
func (s *CherryPickSequence) Tree() object.Hash { return s.tree }

// Pick applies commit's own change (parentTree..commitTree) onto the
// sequence's running tree, advancing it on success. From the second pick
// onward the side1 cache is declared valid when parentTree equals the
// previous pick's commitTree, as in a rebase of contiguous history; side1
// always equals the previous result. Otherwise the cache is not declared.
func (s *CherryPickSequence) Pick(parentTree, commitTree object.Hash) (*ortmerge.MergeResult, error) {
	if !s.first && parentTree == s.prevSide2 {
		s.engine.DeclareCacheValidSide(ortmerge.RoleSide1)
	}
	s.first = false

	res, err := s.engine.MergeNonRecursive(parentTree, s.tree, commitTree)
	if err != nil {
		return nil, fmt.Errorf("cherry-pick: merge step: %w", err)
	}
	s.tree = res.Tree
	s.prevSide2 = commitTree
	return res, nil
}
