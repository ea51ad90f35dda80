package dataset

import "fmt"

// Status of an operation outcome.
type Status string

const (
	StatusOK         Status = "ok"
	StatusNotNeeded  Status = "notneeded"
	StatusImpossible Status = "impossible"
	StatusError      Status = "error"
)

// Result reports the outcome of one action on one path.
type Result struct {
	Action  string `json:"action"`
	Status  Status `json:"status"`
	Path    string `json:"path"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// Failed reports whether the result should make a command fail.
func (r Result) Failed() bool {
	return r.Status == StatusImpossible || r.Status == StatusError
}

func (r Result) String() string {
	s := fmt.Sprintf("%s(%s): %s", r.Action, r.Status, r.Path)
	if r.Message != "" {
		s += " [" + r.Message + "]"
	}
	return s
}
