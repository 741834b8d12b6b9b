package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/rs/zerolog"
)

// Git works against the repository at the workspace root through go-git.
// Every action opens the repository fresh so external changes are seen.
type Git struct {
	root     string
	author   string
	email    string
	logLimit int
	logger   zerolog.Logger
}

// GitConfig configures the git invoker.
type GitConfig struct {
	Root     string
	Author   string
	Email    string
	LogLimit int
	Logger   zerolog.Logger
}

// NewGit creates the git invoker.
func NewGit(cfg GitConfig) *Git {
	author := cfg.Author
	if author == "" {
		author = "kestrel"
	}
	email := cfg.Email
	if email == "" {
		email = "kestrel@localhost"
	}
	limit := cfg.LogLimit
	if limit <= 0 {
		limit = 10
	}
	return &Git{
		root:     cfg.Root,
		author:   author,
		email:    email,
		logLimit: limit,
		logger:   cfg.Logger,
	}
}

func (g *Git) Capability() Capability { return CapabilityGit }

func (g *Git) Actions() []string {
	return []string{"status", "diff", "commit", "log", "push"}
}

func (g *Git) Invoke(ctx context.Context, action string, args map[string]interface{}) (string, error) {
	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return "", fmt.Errorf("opening repository at %s: %w", g.root, err)
	}

	switch action {
	case "status":
		return g.status(repo)
	case "diff":
		return g.diff(repo)
	case "commit":
		return g.commit(repo, args)
	case "log":
		return g.log(repo)
	case "push":
		return g.push(ctx, repo)
	default:
		return "", &UnsupportedActionError{Capability: CapabilityGit, Action: action}
	}
}

func (g *Git) status(repo *git.Repository) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("computing status: %w", err)
	}
	if status.IsClean() {
		return "working tree clean", nil
	}
	return formatStatus(status), nil
}

// diff summarizes changed paths from the worktree status. go-git has no
// worktree text diff, so the summary names each path with its state.
func (g *Git) diff(repo *git.Repository) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("computing status: %w", err)
	}
	if status.IsClean() {
		return "no changes", nil
	}
	return formatStatus(status), nil
}

func (g *Git) commit(repo *git.Repository, args map[string]interface{}) (string, error) {
	message, err := requiredStringArg(args, "message")
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	if _, err := wt.Add("."); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.author,
			Email: g.email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}

	g.logger.Info().Str("hash", hash.String()).Msg("created commit")
	return fmt.Sprintf("committed %s: %s", hash.String()[:8], message), nil
}

func (g *Git) log(repo *git.Repository) (string, error) {
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var b strings.Builder
	count := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if count >= g.logLimit {
			return storer.ErrStop
		}
		subject := strings.SplitN(c.Message, "\n", 2)[0]
		fmt.Fprintf(&b, "%s %s (%s)\n", c.Hash.String()[:8], subject, c.Author.Name)
		count++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (g *Git) push(ctx context.Context, repo *git.Repository) (string, error) {
	err := repo.PushContext(ctx, &git.PushOptions{})
	if err == git.NoErrAlreadyUpToDate {
		return "already up to date", nil
	}
	if err != nil {
		return "", fmt.Errorf("pushing: %w", err)
	}
	return "pushed to origin", nil
}

func formatStatus(status git.Status) string {
	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, path := range paths {
		fs := status[path]
		code := fs.Worktree
		if code == git.Unmodified {
			code = fs.Staging
		}
		fmt.Fprintf(&b, "%c %s\n", byte(code), path)
	}
	return strings.TrimRight(b.String(), "\n")
}
