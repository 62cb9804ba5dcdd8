package collector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/reqsite/internal/logfields"
)

// syncGitSource clones the export repository into the checkout directory, or
// pulls when a checkout already exists. Returns the local checkout path.
func (c *Collector) syncGitSource(ctx context.Context) (string, error) {
	src := c.source.Git
	checkoutPath := filepath.Join(c.checkoutDir, "exports")

	if _, err := os.Stat(filepath.Join(checkoutPath, ".git")); err == nil {
		return checkoutPath, c.pullExisting(ctx, checkoutPath)
	}

	slog.Info("Cloning export repository", slog.String("url", src.URL), slog.String("branch", src.Branch), logfields.Path(checkoutPath))
	if err := os.RemoveAll(checkoutPath); err != nil {
		return "", fmt.Errorf("failed to remove stale checkout: %w", err)
	}

	opts := &git.CloneOptions{URL: src.URL}
	if src.Branch != "" {
		opts.ReferenceName = plumbing.ReferenceName("refs/heads/" + src.Branch)
		opts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, checkoutPath, false, opts)
	if err != nil {
		return "", fmt.Errorf("failed to clone export repository %s: %w", src.URL, err)
	}
	if ref, herr := repo.Head(); herr == nil {
		slog.Info("Export repository cloned", slog.String("commit", ref.Hash().String()[:8]))
	}
	return checkoutPath, nil
}

// pullExisting fast-forwards an existing checkout to the remote branch head.
func (c *Collector) pullExisting(ctx context.Context, checkoutPath string) error {
	repo, err := git.PlainOpen(checkoutPath)
	if err != nil {
		return fmt.Errorf("failed to open checkout: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	pullOpts := &git.PullOptions{SingleBranch: true}
	if c.source.Git.Branch != "" {
		pullOpts.ReferenceName = plumbing.ReferenceName("refs/heads/" + c.source.Git.Branch)
	}
	err = wt.PullContext(ctx, pullOpts)
	if err == git.NoErrAlreadyUpToDate {
		slog.Debug("Export checkout already up to date", logfields.Path(checkoutPath))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pull export repository: %w", err)
	}
	slog.Info("Export checkout updated", logfields.Path(checkoutPath))
	return nil
}
