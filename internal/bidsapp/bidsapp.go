// Package bidsapp runs preconfigured BIDS-App containers on a dataset.
package bidsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
)

// Action names the results produced by Run.
const Action = "bidsapp"

const (
	keyPrefix    = "datalad.neuroimaging.bidsapp."
	containerKey = keyPrefix + "container"
	execKey      = keyPrefix + "exec"
)

// ErrMissingConfig is matched by every MissingConfigError.
var ErrMissingConfig = errors.New("missing configuration")

// MissingConfigError names a configuration key that must be set.
type MissingConfigError struct {
	Key string
	In  string
}

func (e *MissingConfigError) Error() string {
	if e.In != "" {
		return fmt.Sprintf("Missing configuration for %s in %s", e.Key, e.In)
	}
	return "Missing configuration for " + e.Key
}

// Is makes errors.Is(err, ErrMissingConfig) hold.
func (e *MissingConfigError) Is(target error) bool { return target == ErrMissingConfig }

// Options configures Run.
type Options struct {
	Dataset string
	// Cmd selects the datalad.neuroimaging.bidsapp.<Cmd>.* configuration.
	Cmd      string
	Stdout   io.Writer
	Stderr   io.Writer
	NoCommit bool
	Logger   *zap.Logger
}

// ContainerPath is where the container dataset of name is installed.
func ContainerPath(root, name string) string {
	return filepath.Join(root, ".git", "environment", name)
}

// Run installs the configured container if needed, runs the app call in the
// dataset root and records the outcome.
func Run(ctx context.Context, opts Options) ([]dataset.Result, error) {
	logger := logging.OrNop(opts.Logger)
	root, err := filepath.Abs(opts.Dataset)
	if err != nil {
		return nil, err
	}
	if opts.Cmd == "" {
		return nil, errors.New("insufficient arguments for bidsapp: a command is required")
	}
	cmdKey := func(k string) string { return keyPrefix + opts.Cmd + "." + k }

	var results []dataset.Result
	name, err := require(ctx, root, cmdKey("container-name"), "")
	if err != nil {
		return nil, err
	}
	container := ContainerPath(root, name)
	if !installed(container) {
		source, err := require(ctx, root, cmdKey("container-url"), "")
		if err != nil {
			return nil, err
		}
		logger.Info("Installing BIDSApp", zap.String("container", name), zap.String("source", source))
		if err := dataset.Clone(ctx, source, container); err != nil {
			return nil, fmt.Errorf("install %s: %w", name, err)
		}
		results = append(results, dataset.Result{Action: "install", Status: dataset.StatusOK, Path: container, Type: "dataset"})
	}

	image, _, err := dataset.ConfigGet(ctx, container, containerKey)
	if err != nil {
		return nil, err
	}
	if image != "" {
		image = filepath.Join(container, image)
		if _, err := os.Stat(image); err != nil {
			return nil, fmt.Errorf("container image: %w", err)
		}
	}
	execCmd, err := require(ctx, container, execKey, container)
	if err != nil {
		return nil, err
	}
	call, err := require(ctx, root, cmdKey("call"), "")
	if err != nil {
		return nil, err
	}

	line := strings.Join(nonEmpty(execCmd, image, call), " ")
	logger.Info("Running BIDSApp", zap.String("cmd", opts.Cmd), zap.String("call", line))
	c := exec.CommandContext(ctx, "sh", "-c", line)
	c.Dir = root
	c.Stdout = opts.Stdout
	c.Stderr = opts.Stderr
	if err := c.Run(); err != nil {
		return append(results, dataset.Result{
			Action: Action, Status: dataset.StatusError, Path: root, Type: "dataset",
			Message: fmt.Sprintf("%s: %v", line, err),
		}), nil
	}

	res := dataset.Result{Action: Action, Status: dataset.StatusOK, Path: root, Type: "dataset"}
	if !opts.NoCommit && dataset.IsRepo(root) {
		committed, err := dataset.Commit(ctx, root, "Run of bidsapp "+opts.Cmd)
		if err != nil {
			return nil, err
		}
		if !committed {
			res.Message = "nothing to save"
		}
	}
	return append(results, res), nil
}

func require(ctx context.Context, root, key, in string) (string, error) {
	v, ok, err := dataset.ConfigGet(ctx, root, key)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return "", &MissingConfigError{Key: key, In: in}
	}
	return v, nil
}

func installed(path string) bool {
	for _, marker := range []string{".git", dataset.ConfigDir} {
		if _, err := os.Stat(filepath.Join(path, marker)); err == nil {
			return true
		}
	}
	return false
}

func nonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
