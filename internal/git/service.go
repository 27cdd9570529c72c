// Package git runs version control operations against a working copy by
// shelling out to the git binary.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Credentials authenticate http(s) remotes. They are passed on the URL of a
// single command and never written to the repository config.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Credentials) usable() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// Status lists changed paths in the order git reports them.
type Status struct {
	// Modified are tracked files changed in the working tree.
	Modified []string `json:"modified"`
	// Added are new files staged in the index.
	Added []string `json:"added"`
	// Changed are tracked files with staged modifications.
	Changed []string `json:"changed"`
	// Deleted are files removed from the index or the working tree.
	Deleted   []string `json:"deleted"`
	Untracked []string `json:"untracked"`
	// Conflicted are unmerged paths of an unfinished merge.
	Conflicted []string `json:"conflicted"`
}

// Branch is a local or remote-tracking branch, named by its full ref.
type Branch struct {
	Name     string `json:"name"`
	IsRemote bool   `json:"isRemote"`
}

type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

type RepositoryInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	CurrentBranch string  `json:"currentBranch"`
	RemoteURL     string  `json:"remoteUrl,omitempty"`
	LastCommit    *Commit `json:"lastCommit,omitempty"`
}

// Service is the version control surface used by the API layer.
type Service interface {
	Init(ctx context.Context, path string) (string, error)
	Clone(ctx context.Context, url, path string, creds *Credentials) (string, error)
	Status(ctx context.Context, path string) (Status, error)
	Add(ctx context.Context, path string, files []string) (string, error)
	Commit(ctx context.Context, path, message string) (string, error)
	Push(ctx context.Context, path, remote, branch string, creds *Credentials) (string, error)
	Pull(ctx context.Context, path, remote, branch string, creds *Credentials) (string, error)
	Fetch(ctx context.Context, path string) (string, error)
	ListBranches(ctx context.Context, path string) ([]Branch, error)
	CurrentBranch(ctx context.Context, path string) (string, error)
	Checkout(ctx context.Context, path, branch string) (string, error)
	CreateBranch(ctx context.Context, path, branch string) (string, error)
	DeleteBranch(ctx context.Context, path, branch string) (string, error)
	CreateWorktree(ctx context.Context, repoPath, worktreePath, branch string) (string, error)
	RemoveWorktree(ctx context.Context, repoPath, worktreePath string) (string, error)
	RepositoryInfo(ctx context.Context, path string) (RepositoryInfo, error)
	Diff(ctx context.Context, path, file string) (string, error)
}

// CLI implements Service with the git binary.
type CLI struct {
	binary string
	logger *zap.Logger

	// Observe, when set, is called after every operation.
	Observe func(op string, err error, elapsed time.Duration)
}

var _ Service = (*CLI)(nil)

func New(logger *zap.Logger) *CLI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLI{binary: "git", logger: logger}
}

// run executes git in dir and returns stdout. The error message carries
// stderr with every secret redacted.
func (c *CLI) run(ctx context.Context, dir string, secrets []string, args ...string) (string, error) {
	full := args
	if dir != "" {
		full = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, c.binary, full...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		for _, secret := range secrets {
			if secret != "" {
				msg = strings.ReplaceAll(msg, secret, "***")
			}
		}
		return stdout.String(), fmt.Errorf("git %s: %s: %w", args[0], msg, err)
	}
	return stdout.String(), nil
}

// track wraps an operation with error typing, logging and observation.
func track[T any](c *CLI, op string, code Code, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	err = wrap(op, code, err)
	elapsed := time.Since(start)
	if c.Observe != nil {
		c.Observe(op, err, elapsed)
	}
	if err != nil {
		c.logger.Debug("git operation failed",
			zap.String("op", op),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	return v, err
}
