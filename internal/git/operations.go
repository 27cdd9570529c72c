package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (c *CLI) Init(ctx context.Context, path string) (string, error) {
	return track(c, "init", CodeInit, func() (string, error) {
		if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
			return "", &Error{Op: "init", Code: CodeAlreadyInitialized, Message: "Repository already initialized"}
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return "", fmt.Errorf("create directory: %w", err)
		}
		if _, err := c.run(ctx, path, nil, "init"); err != nil {
			return "", err
		}
		return "Initialized empty Git repository in " + path, nil
	})
}

func (c *CLI) Clone(ctx context.Context, rawURL, path string, creds *Credentials) (string, error) {
	return track(c, "clone", CodeClone, func() (string, error) {
		entries, err := os.ReadDir(path)
		if err == nil && len(entries) > 0 {
			return "", &Error{Op: "clone", Code: CodeDirectoryNotEmpty, Message: "Target directory is not empty"}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create parent directory: %w", err)
		}

		cloneURL, err := authURL(rawURL, creds)
		if err != nil {
			return "", err
		}
		if _, err := c.run(ctx, "", secretsOf(creds), "clone", cloneURL, path); err != nil {
			return "", err
		}
		// Keep credentials out of .git/config.
		if creds.usable() {
			if _, err := c.run(ctx, path, secretsOf(creds), "remote", "set-url", "origin", rawURL); err != nil {
				return "", err
			}
		}
		return "Repository cloned successfully", nil
	})
}

func (c *CLI) Status(ctx context.Context, path string) (Status, error) {
	return track(c, "status", CodeStatus, func() (Status, error) {
		out, err := c.run(ctx, path, nil, "status", "--porcelain=v1", "-z", "--no-renames", "--untracked-files=all")
		if err != nil {
			return Status{}, err
		}
		return parseStatus(out), nil
	})
}

// parseStatus reads `git status --porcelain=v1 -z` output. X is the index
// column, Y the working tree column.
func parseStatus(out string) Status {
	st := Status{
		Modified:   []string{},
		Added:      []string{},
		Changed:    []string{},
		Deleted:    []string{},
		Untracked:  []string{},
		Conflicted: []string{},
	}
	for _, entry := range strings.Split(out, "\x00") {
		if len(entry) < 4 {
			continue
		}
		x, y, file := entry[0], entry[1], entry[3:]
		if x == '?' && y == '?' {
			st.Untracked = append(st.Untracked, file)
			continue
		}
		if unmerged(x, y) {
			st.Conflicted = append(st.Conflicted, file)
			continue
		}
		switch x {
		case 'A':
			st.Added = append(st.Added, file)
		case 'M', 'T':
			st.Changed = append(st.Changed, file)
		case 'D':
			st.Deleted = append(st.Deleted, file)
		}
		switch y {
		case 'M', 'T':
			st.Modified = append(st.Modified, file)
		case 'D':
			if x != 'D' {
				st.Deleted = append(st.Deleted, file)
			}
		}
	}
	return st
}

// unmerged matches the porcelain XY pairs git uses for conflicts: DD, AU,
// UD, UA, DU, AA and UU.
func unmerged(x, y byte) bool {
	return x == 'U' || y == 'U' || (x == 'A' && y == 'A') || (x == 'D' && y == 'D')
}

func (c *CLI) Add(ctx context.Context, path string, files []string) (string, error) {
	return track(c, "add", CodeAdd, func() (string, error) {
		if len(files) == 0 {
			return "", errors.New("no files given")
		}
		args := append([]string{"add", "--"}, files...)
		if _, err := c.run(ctx, path, nil, args...); err != nil {
			return "", err
		}
		return "Files added successfully", nil
	})
}

// Commit records the index and returns the new commit id.
func (c *CLI) Commit(ctx context.Context, path, message string) (string, error) {
	return track(c, "commit", CodeCommit, func() (string, error) {
		if strings.TrimSpace(message) == "" {
			return "", errors.New("commit message is required")
		}
		if _, err := c.run(ctx, path, nil, "commit", "-m", message); err != nil {
			return "", err
		}
		out, err := c.run(ctx, path, nil, "rev-parse", "HEAD")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(out), nil
	})
}

func (c *CLI) Push(ctx context.Context, path, remote, branch string, creds *Credentials) (string, error) {
	return track(c, "push", CodePush, func() (string, error) {
		target, err := c.remoteTarget(ctx, path, remote, creds)
		if err != nil {
			return "", err
		}
		args := []string{"push", target}
		if branch != "" {
			args = append(args, branch)
		}
		if _, err := c.run(ctx, path, secretsOf(creds), args...); err != nil {
			return "", err
		}
		return "Push successful", nil
	})
}

func (c *CLI) Pull(ctx context.Context, path, remote, branch string, creds *Credentials) (string, error) {
	return track(c, "pull", CodePull, func() (string, error) {
		target, err := c.remoteTarget(ctx, path, remote, creds)
		if err != nil {
			return "", err
		}
		args := []string{"pull", "--no-rebase", target}
		if branch != "" {
			args = append(args, branch)
		}
		if _, err := c.run(ctx, path, secretsOf(creds), args...); err != nil {
			return "", err
		}
		return "Pull successful", nil
	})
}

// Fetch updates every remote and prunes deleted branches.
func (c *CLI) Fetch(ctx context.Context, path string) (string, error) {
	return track(c, "fetch", CodeFetch, func() (string, error) {
		if _, err := c.run(ctx, path, nil, "fetch", "--all", "--prune"); err != nil {
			return "", err
		}
		return "Fetch successful", nil
	})
}

// remoteTarget returns the remote name, or its URL with credentials when
// credentials are given.
func (c *CLI) remoteTarget(ctx context.Context, path, remote string, creds *Credentials) (string, error) {
	if remote == "" {
		remote = "origin"
	}
	if !creds.usable() {
		return remote, nil
	}
	out, err := c.run(ctx, path, nil, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	return authURL(strings.TrimSpace(out), creds)
}

func (c *CLI) ListBranches(ctx context.Context, path string) ([]Branch, error) {
	return track(c, "branches", CodeBranches, func() ([]Branch, error) {
		out, err := c.run(ctx, path, nil, "for-each-ref", "--format=%(refname)%00%(symref)", "refs/heads", "refs/remotes")
		if err != nil {
			return nil, err
		}
		branches := []Branch{}
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			name, symref, _ := strings.Cut(line, "\x00")
			if name == "" || symref != "" {
				continue
			}
			branches = append(branches, Branch{
				Name:     name,
				IsRemote: strings.HasPrefix(name, "refs/remotes/"),
			})
		}
		return branches, nil
	})
}

// CurrentBranch returns the short branch name, or the commit id when HEAD is
// detached.
func (c *CLI) CurrentBranch(ctx context.Context, path string) (string, error) {
	return track(c, "current_branch", CodeCurrentBranch, func() (string, error) {
		return c.currentBranch(ctx, path)
	})
}

func (c *CLI) currentBranch(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, path, nil, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err == nil {
		return strings.TrimSpace(out), nil
	}
	out, revErr := c.run(ctx, path, nil, "rev-parse", "HEAD")
	if revErr != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *CLI) Checkout(ctx context.Context, path, branch string) (string, error) {
	return track(c, "checkout", CodeCheckout, func() (string, error) {
		if _, err := c.run(ctx, path, nil, "checkout", branch); err != nil {
			return "", err
		}
		return "Checked out to " + branch, nil
	})
}

// CreateBranch creates branch at HEAD and checks it out.
func (c *CLI) CreateBranch(ctx context.Context, path, branch string) (string, error) {
	return track(c, "create_branch", CodeCreateBranch, func() (string, error) {
		if _, err := c.run(ctx, path, nil, "checkout", "-b", branch); err != nil {
			return "", err
		}
		return "Branch " + branch + " created and checked out", nil
	})
}

func (c *CLI) DeleteBranch(ctx context.Context, path, branch string) (string, error) {
	return track(c, "delete_branch", CodeDeleteBranch, func() (string, error) {
		if _, err := c.run(ctx, path, nil, "branch", "-D", branch); err != nil {
			return "", err
		}
		return "Branch " + branch + " deleted", nil
	})
}

// CreateWorktree adds a worktree at worktreePath on a new branch based on
// HEAD.
func (c *CLI) CreateWorktree(ctx context.Context, repoPath, worktreePath, branch string) (string, error) {
	return track(c, "worktree_add", CodeWorktree, func() (string, error) {
		if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
			return "", fmt.Errorf("create worktree parent: %w", err)
		}
		if _, err := c.run(ctx, repoPath, nil, "worktree", "add", "-b", branch, worktreePath); err != nil {
			return "", err
		}
		return "Worktree created at " + worktreePath, nil
	})
}

func (c *CLI) RemoveWorktree(ctx context.Context, repoPath, worktreePath string) (string, error) {
	return track(c, "worktree_remove", CodeWorktree, func() (string, error) {
		if _, err := c.run(ctx, repoPath, nil, "worktree", "remove", "--force", worktreePath); err != nil {
			return "", err
		}
		return "Worktree removed from " + worktreePath, nil
	})
}

func (c *CLI) RepositoryInfo(ctx context.Context, path string) (RepositoryInfo, error) {
	return track(c, "info", CodeInfo, func() (RepositoryInfo, error) {
		out, err := c.run(ctx, path, nil, "rev-parse", "--show-toplevel")
		if err != nil {
			return RepositoryInfo{}, err
		}
		top := strings.TrimSpace(out)
		info := RepositoryInfo{Name: filepath.Base(top), Path: top}

		if info.CurrentBranch, err = c.currentBranch(ctx, path); err != nil {
			return RepositoryInfo{}, err
		}
		// A missing remote makes git config exit 1.
		if out, err := c.run(ctx, path, nil, "config", "--get", "remote.origin.url"); err == nil {
			info.RemoteURL = strings.TrimSpace(out)
		}
		// No commits yet is not an error.
		if out, err := c.run(ctx, path, nil, "log", "-1", "--format=%H%x00%an%x00%aI%x00%B"); err == nil {
			info.LastCommit = parseCommit(out)
		}
		return info, nil
	})
}

func parseCommit(out string) *Commit {
	parts := strings.SplitN(out, "\x00", 4)
	if len(parts) != 4 {
		return nil
	}
	commit := &Commit{
		Hash:    parts[0],
		Author:  parts[1],
		Message: strings.TrimRight(parts[3], "\n"),
	}
	if date, err := time.Parse(time.RFC3339, parts[2]); err == nil {
		commit.Date = date
	}
	return commit
}

// Diff returns the patch between the index and the working tree, limited to
// file when it is not empty.
func (c *CLI) Diff(ctx context.Context, path, file string) (string, error) {
	return track(c, "diff", CodeDiff, func() (string, error) {
		args := []string{"diff", "--no-color"}
		if file != "" {
			args = append(args, "--", file)
		}
		return c.run(ctx, path, nil, args...)
	})
}

// authURL embeds credentials in an http(s) remote URL. Other URLs are
// returned unchanged.
func authURL(rawURL string, creds *Credentials) (string, error) {
	if !creds.usable() {
		return rawURL, nil
	}
	if !strings.HasPrefix(rawURL, "https://") && !strings.HasPrefix(rawURL, "http://") {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse remote url: %w", err)
	}
	u.User = url.UserPassword(creds.Username, creds.Password)
	return u.String(), nil
}

func secretsOf(creds *Credentials) []string {
	if !creds.usable() {
		return nil
	}
	encoded := strings.TrimPrefix(url.UserPassword("", creds.Password).String(), ":")
	return []string{creds.Password, encoded}
}
