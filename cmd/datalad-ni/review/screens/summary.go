package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/datalad/datalad-neuroimaging/cmd/datalad-ni/review/components"
)

// SummaryAction is the choice made when leaving the review.
type SummaryAction int

const (
	// SummaryActionBack returns to the entry list
	SummaryActionBack SummaryAction = iota
	// SummaryActionSave writes the specification
	SummaryActionSave
	// SummaryActionDiscard exits without writing
	SummaryActionDiscard
)

const (
	actionBack    = "back"
	actionSave    = "save"
	actionDiscard = "discard"
)

// SummaryScreen asks what to do with the reviewed specification.
type SummaryScreen struct {
	form      *huh.Form
	action    string
	changed   int
	done      bool
	cancelled bool
}

// NewSummaryScreen creates the summary for a review that edited changed
// entries.
func NewSummaryScreen(changed int) *SummaryScreen {
	s := &SummaryScreen{action: actionSave, changed: changed}
	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("action").
				Title("Select an action").
				Options(
					huh.NewOption("Save specification", actionSave),
					huh.NewOption("Back to the series list", actionBack),
					huh.NewOption("Discard changes and exit", actionDiscard),
				).
				Value(&s.action),
		),
	).WithShowHelp(false)
	return s
}

// Init implements tea.Model
func (s *SummaryScreen) Init() tea.Cmd {
	return s.form.Init()
}

// Update implements tea.Model
func (s *SummaryScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c":
			s.cancelled = true
			return s, tea.Quit
		case "esc":
			s.action = actionBack
			s.done = true
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}
	if s.form.State == huh.StateCompleted {
		s.done = true
	}
	return s, cmd
}

// View implements tea.Model
func (s *SummaryScreen) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		components.TitleStyle.Render("SUMMARY"),
		components.SubtitleStyle.Render(fmt.Sprintf("%d series edited", s.changed)),
		s.form.View(),
		"",
		components.KeyHintStyle.Render("Enter: Select action | Esc: Back"),
	)
}

// Done reports whether an action was chosen.
func (s *SummaryScreen) Done() bool { return s.done }

// Cancelled reports whether the user aborted.
func (s *SummaryScreen) Cancelled() bool { return s.cancelled }

// Action returns the chosen action.
func (s *SummaryScreen) Action() SummaryAction {
	switch s.action {
	case actionSave:
		return SummaryActionSave
	case actionDiscard:
		return SummaryActionDiscard
	default:
		return SummaryActionBack
	}
}
