package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/ort/pkg/object"
	"github.com/odvcencio/ort/pkg/ortmerge"
	"github.com/odvcencio/ort/pkg/repo"
	"github.com/spf13/cobra"
)

// newRebaseOntoCmd replays the commits unique to the current branch (those
// not reachable from <upstream>) on top of <upstream>'s tree, one at a time,
// through a single repo.CherryPickSequence. Each step's "ours" tree is
// exactly the prior step's result, so from the second commit onward the
// sequence declares the side1 rename cache valid per §4.2.4 instead of
// rebuilding it from scratch.
func newRebaseOntoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebase-onto <upstream>",
		Short: "Replay the current branch's commits onto <upstream> using the ort engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			upstreamHash, err := resolveCherryPickTarget(r, args[0])
			if err != nil {
				return err
			}

			branch, err := r.CurrentBranch()
			if err != nil {
				return fmt.Errorf("rebase-onto: %w", err)
			}
			if branch == "" {
				return fmt.Errorf("rebase-onto: HEAD is detached, checkout a branch first")
			}
			tipHash, err := r.ResolveRef("HEAD")
			if err != nil {
				return fmt.Errorf("rebase-onto: resolve HEAD: %w", err)
			}

			commits, hashes, err := commitsSince(r, tipHash, upstreamHash)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(commits) == 0 {
				fmt.Fprintln(out, "nothing to rebase, branch is already up to date")
				return nil
			}

			upstreamCommit, err := r.Store.ReadCommit(upstreamHash)
			if err != nil {
				return fmt.Errorf("rebase-onto: read upstream commit: %w", err)
			}

			opts := ortmerge.DefaultOptions()
			seq := r.NewCherryPickSequence(upstreamCommit.TreeHash, opts)

			newParent := upstreamHash
			for i := len(commits) - 1; i >= 0; i-- {
				c := commits[i]
				var parentTree object.Hash
				if len(c.Parents) > 0 {
					p, err := r.Store.ReadCommit(c.Parents[0])
					if err != nil {
						return fmt.Errorf("rebase-onto: read parent of %s: %w", hashes[i], err)
					}
					parentTree = p.TreeHash
				}

				res, err := seq.Pick(parentTree, c.TreeHash)
				if err != nil {
					return fmt.Errorf("rebase-onto: replay %s: %w", short(hashes[i]), err)
				}
				if !res.Clean {
					fmt.Fprintf(out, "conflict replaying %s (%s): %d unmerged path", short(hashes[i]), c.Message, len(res.Unmerged))
					if len(res.Unmerged) != 1 {
						fmt.Fprint(out, "s")
					}
					fmt.Fprintln(out)
					for path := range res.Unmerged {
						fmt.Fprintf(out, "  %s\n", path)
					}
					return fmt.Errorf("rebase-onto: stopped at %s", short(hashes[i]))
				}

				commitObj := &object.CommitObj{
					TreeHash:  res.Tree,
					Parents:   []object.Hash{newParent},
					Author:    c.Author,
					Timestamp: time.Now().Unix(),
					Message:   c.Message,
				}
				newHash, err := r.Store.WriteCommit(commitObj)
				if err != nil {
					return fmt.Errorf("rebase-onto: write commit: %w", err)
				}
				fmt.Fprintf(out, "  %s -> %s %s\n", short(hashes[i]), short(newHash), c.Message)
				newParent = newHash
			}

			if err := r.UpdateRefCAS("refs/heads/"+branch, newParent, tipHash); err != nil {
				return fmt.Errorf("rebase-onto: update %s: %w", branch, err)
			}
			fmt.Fprintf(out, "rebased %d commit", len(commits))
			if len(commits) != 1 {
				fmt.Fprint(out, "s")
			}
			fmt.Fprintf(out, " onto %s\n", short(upstreamHash))
			return nil
		},
	}
}

// commitsSince walks tip's first-parent chain, collecting commits (and their
// hashes, in the same newest-first order) until it reaches upstream or the
// root. The caller replays the result oldest-first.
func commitsSince(r *repo.Repo, tip, upstream object.Hash) ([]*object.CommitObj, []object.Hash, error) {
	var commits []*object.CommitObj
	var hashes []object.Hash

	current := tip
	for current != "" && current != upstream {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, nil, fmt.Errorf("rebase-onto: walk history: %w", err)
		}
		commits = append(commits, c)
		hashes = append(hashes, current)
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return commits, hashes, nil
}

func short(h object.Hash) string {
	s := string(h)
	if len(s) > 8 {
		return s[:8]
	}
	return strings.TrimSpace(s)
}
