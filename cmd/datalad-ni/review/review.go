// Package review is the interactive approval of study specification
// entries.
package review

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/datalad/datalad-neuroimaging/cmd/datalad-ni/review/screens"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

// Phase is the screen the review is on.
type Phase int

const (
	PhaseList Phase = iota
	PhaseEntry
	PhaseSummary
)

// Reviewer walks the user through the entries of one specification.
type Reviewer struct {
	path    string
	entries []studyspec.Entry
	edited  map[int]bool

	phase         Phase
	listScreen    *screens.ListScreen
	entryScreen   *screens.EntryScreen
	summaryScreen *screens.SummaryScreen
	current       int

	width  int
	height int

	cancelled bool
	save      bool
}

// NewReviewer creates a reviewer over entries loaded from path.
func NewReviewer(path string, entries []studyspec.Entry) *Reviewer {
	r := &Reviewer{path: path, entries: entries, edited: make(map[int]bool)}
	r.listScreen = screens.NewListScreen(path, r.entries, 0)
	return r
}

// Init implements tea.Model.
func (r *Reviewer) Init() tea.Cmd {
	return r.listScreen.Init()
}

// Update implements tea.Model.
func (r *Reviewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		r.width = wsm.Width
		r.height = wsm.Height
	}

	switch r.phase {
	case PhaseList:
		return r.updateList(msg)
	case PhaseEntry:
		return r.updateEntry(msg)
	case PhaseSummary:
		return r.updateSummary(msg)
	}
	return r, nil
}

// View implements tea.Model.
func (r *Reviewer) View() string {
	switch r.phase {
	case PhaseList:
		return r.listScreen.View()
	case PhaseEntry:
		return r.entryScreen.View()
	case PhaseSummary:
		return r.summaryScreen.View()
	}
	return ""
}

func (r *Reviewer) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := r.listScreen.Update(msg)
	if ls, ok := model.(*screens.ListScreen); ok {
		r.listScreen = ls
	}

	if r.listScreen.Finished() {
		if len(r.edited) == 0 {
			return r, tea.Quit
		}
		r.phase = PhaseSummary
		r.summaryScreen = screens.NewSummaryScreen(len(r.edited))
		return r, r.summaryScreen.Init()
	}

	if i := r.listScreen.Selected(); i >= 0 {
		r.current = i
		r.phase = PhaseEntry
		r.entryScreen = screens.NewEntryScreen(&r.entries[i], i, len(r.entries))
		cmds := []tea.Cmd{r.entryScreen.Init()}
		if r.width > 0 {
			cmds = append(cmds, func() tea.Msg { return tea.WindowSizeMsg{Width: r.width, Height: r.height} })
		}
		return r, tea.Batch(cmds...)
	}
	return r, cmd
}

func (r *Reviewer) backToList() (tea.Model, tea.Cmd) {
	r.phase = PhaseList
	r.listScreen = screens.NewListScreen(r.path, r.entries, r.current)
	return r, r.listScreen.Init()
}

func (r *Reviewer) updateEntry(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := r.entryScreen.Update(msg)
	if es, ok := model.(*screens.EntryScreen); ok {
		r.entryScreen = es
	}

	if r.entryScreen.Cancelled() {
		return r.backToList()
	}
	if r.entryScreen.Done() {
		r.edited[r.current] = true
		return r.backToList()
	}
	return r, cmd
}

func (r *Reviewer) updateSummary(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := r.summaryScreen.Update(msg)
	if ss, ok := model.(*screens.SummaryScreen); ok {
		r.summaryScreen = ss
	}

	if r.summaryScreen.Cancelled() {
		r.cancelled = true
		return r, tea.Quit
	}
	if r.summaryScreen.Done() {
		switch r.summaryScreen.Action() {
		case screens.SummaryActionSave:
			r.save = true
			return r, tea.Quit
		case screens.SummaryActionDiscard:
			return r, tea.Quit
		default:
			return r.backToList()
		}
	}
	return r, cmd
}

// Entries returns the reviewed entries.
func (r *Reviewer) Entries() []studyspec.Entry { return r.entries }

// ShouldSave reports whether the user chose to write the specification.
func (r *Reviewer) ShouldSave() bool { return r.save && !r.cancelled }

// Run loads the specification at path, lets the user review it and saves it
// when asked to. It reports whether the file was written.
func Run(path string) (bool, error) {
	entries, err := studyspec.Load(path)
	if err != nil {
		return false, fmt.Errorf("loading specification: %w", err)
	}
	if len(entries) == 0 {
		return false, fmt.Errorf("%s: no entries to review", path)
	}

	reviewer := NewReviewer(path, entries)
	p := tea.NewProgram(reviewer, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("running review: %w", err)
	}

	r, ok := finalModel.(*Reviewer)
	if !ok || !r.ShouldSave() {
		return false, nil
	}
	for i := range r.entries {
		if err := studyspec.Validate(r.entries[i]); err != nil {
			return false, err
		}
	}
	if err := studyspec.Save(path, r.Entries()); err != nil {
		return false, fmt.Errorf("saving specification: %w", err)
	}
	return true, nil
}
