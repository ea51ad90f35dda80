package dataset

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ConfigGet returns the value of key for the dataset at root. The
// repository's own git configuration takes precedence over the committed
// .datalad/config. ok is false when the key is set nowhere.
func ConfigGet(ctx context.Context, root, key string) (value string, ok bool, err error) {
	if IsRepo(root) {
		v, found, err := gitConfigGet(ctx, root, "--local", key)
		if err != nil || found {
			return v, found, err
		}
	}
	file := filepath.Join(root, ConfigFile)
	if _, err := os.Stat(file); err != nil {
		return "", false, nil
	}
	return gitConfigGet(ctx, root, "--file", file, key)
}

// ConfigSet writes key=value into the dataset's .datalad/config.
func ConfigSet(ctx context.Context, root, key, value string) error {
	if err := os.MkdirAll(filepath.Join(root, ConfigDir), 0o755); err != nil {
		return err
	}
	_, err := Git(ctx, root, "config", "--file", filepath.Join(root, ConfigFile), key, value)
	return err
}

// ID returns the dataset id recorded in .datalad/config, or "".
func ID(ctx context.Context, root string) string {
	id, _, err := ConfigGet(ctx, root, IDKey)
	if err != nil {
		return ""
	}
	return id
}

func gitConfigGet(ctx context.Context, root string, args ...string) (string, bool, error) {
	out, err := Git(ctx, root, append([]string{"config", "--get"}, args...)...)
	if err != nil {
		// git config --get exits 1 for a missing key.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// ConfigGetAll returns every value of a multi-valued key from the
// dataset's .datalad/config.
func ConfigGetAll(ctx context.Context, root, key string) ([]string, error) {
	file := filepath.Join(root, ConfigFile)
	if _, err := os.Stat(file); err != nil {
		return nil, nil
	}
	out, err := Git(ctx, root, "config", "--file", file, "--get-all", key)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	return strings.Split(out, "\n"), nil
}

// ConfigAdd appends a value to a multi-valued key in .datalad/config.
func ConfigAdd(ctx context.Context, root, key, value string) error {
	if err := os.MkdirAll(filepath.Join(root, ConfigDir), 0o755); err != nil {
		return err
	}
	_, err := Git(ctx, root, "config", "--file", filepath.Join(root, ConfigFile), "--add", key, value)
	return err
}
