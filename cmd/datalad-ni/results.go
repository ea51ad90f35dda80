package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
)

// errFailed is wrapped by the error returned when any result failed.
var errFailed = errors.New("operation failed")

// printResults writes one status line per result and fails when any result
// is impossible or an error.
func printResults(w io.Writer, results ...dataset.Result) error {
	failed := 0
	for _, r := range results {
		fmt.Fprintln(w, r.String())
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d results: %w", failed, len(results), errFailed)
	}
	return nil
}
