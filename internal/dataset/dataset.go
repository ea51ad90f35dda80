// Package dataset locates datasets on disk and records state in them by
// shelling out to git.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// ConfigDir holds dataset level state.
	ConfigDir = ".datalad"
	// ConfigFile is the dataset configuration, in git-config syntax.
	ConfigFile = ".datalad/config"
	// IDKey is the configuration key holding the dataset id.
	IDKey = "datalad.dataset.id"
)

// ErrNotFound is returned when no dataset encloses a path.
var ErrNotFound = errors.New("no dataset found")

// FindRoot returns the closest directory at or above path that contains a
// .git or .datalad entry.
func FindRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if fi, err := os.Stat(abs); err == nil && !fi.IsDir() {
		abs = filepath.Dir(abs)
	}
	for dir := abs; ; {
		for _, marker := range []string{".git", ConfigDir} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w at or above %s", ErrNotFound, abs)
		}
		dir = parent
	}
}

// IsRepo reports whether root is the top of a git repository.
func IsRepo(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".git"))
	return err == nil
}

// HasGit reports whether a git binary is available.
func HasGit() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Git runs git with args in dir and returns its trimmed standard output.
func Git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Init creates a git repository at path unless one already exists.
func Init(ctx context.Context, path string) (created bool, err error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, err
	}
	if IsRepo(path) {
		return false, nil
	}
	if _, err := Git(ctx, path, "init", "--quiet"); err != nil {
		return false, err
	}
	return true, nil
}

// Clone clones source into dest.
func Clone(ctx context.Context, source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	_, err := Git(ctx, filepath.Dir(dest), "clone", "--quiet", source, dest)
	return err
}

// RefCommit returns the HEAD commit of the repository at root, or "" when
// root is not a repository or has no commits yet.
func RefCommit(ctx context.Context, root string) string {
	if !IsRepo(root) {
		return ""
	}
	sha, err := Git(ctx, root, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		return ""
	}
	return sha
}

// Commit stages paths (relative to root) and records them with message.
// It reports false when there was nothing to commit.
func Commit(ctx context.Context, root, message string, paths ...string) (bool, error) {
	add := append([]string{"add", "--"}, paths...)
	if len(paths) == 0 {
		add = []string{"add", "--all"}
	}
	if _, err := Git(ctx, root, add...); err != nil {
		return false, err
	}
	// diff --cached --quiet exits 1 when something is staged.
	if _, err := Git(ctx, root, "diff", "--cached", "--quiet"); err == nil {
		return false, nil
	}
	if _, err := Git(ctx, root, "commit", "--quiet", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}
