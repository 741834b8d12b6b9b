package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"
)

// GitCommitter snapshots the workspace repository after approved runs.
// It stages everything and commits; a clean tree is not an error.
type GitCommitter struct {
	root   string
	author string
	email  string
	logger zerolog.Logger
}

// NewGitCommitter creates a committer for the repository at root.
func NewGitCommitter(root, author, email string, logger zerolog.Logger) *GitCommitter {
	if author == "" {
		author = "kestrel"
	}
	if email == "" {
		email = "kestrel@localhost"
	}
	return &GitCommitter{root: root, author: author, email: email, logger: logger}
}

// Commit stages all changes and commits them with the given message.
func (c *GitCommitter) Commit(_ context.Context, message string) error {
	repo, err := git.PlainOpen(c.root)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("computing status: %w", err)
	}
	if status.IsClean() {
		c.logger.Debug().Msg("working tree clean, nothing to commit")
		return nil
	}

	if _, err := wt.Add("."); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.author,
			Email: c.email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	c.logger.Info().Str("hash", hash.String()).Msg("auto-committed workspace")
	return nil
}
