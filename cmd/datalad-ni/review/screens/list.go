package screens

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/datalad/datalad-neuroimaging/cmd/datalad-ni/review/components"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

// ListScreen shows all entries of a specification and lets the user pick
// one to edit.
type ListScreen struct {
	entries  []studyspec.Entry
	path     string
	cursor   int
	selected int
	finished bool
	width    int
	height   int
}

// NewListScreen creates the list with the cursor on entry cursor.
func NewListScreen(path string, entries []studyspec.Entry, cursor int) *ListScreen {
	if cursor >= len(entries) {
		cursor = len(entries) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	return &ListScreen{entries: entries, path: path, cursor: cursor, selected: -1}
}

// Init implements tea.Model
func (s *ListScreen) Init() tea.Cmd { return nil }

// Update implements tea.Model
func (s *ListScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < len(s.entries)-1 {
				s.cursor++
			}
		case "enter":
			if len(s.entries) > 0 {
				s.selected = s.cursor
			}
		case "q", "esc", "ctrl+c":
			s.finished = true
		}
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
	}
	return s, nil
}

// Approval counts the approved fields of e.
func Approval(e *studyspec.Entry) (approved, total int) {
	for _, f := range e.Fields {
		total++
		if f.Approved {
			approved++
		}
	}
	return approved, total
}

// View implements tea.Model
func (s *ListScreen) View() string {
	title := components.TitleStyle.Render("STUDY SPECIFICATION")
	subtitle := components.SubtitleStyle.Render(fmt.Sprintf("%s (%d series)", s.path, len(s.entries)))

	var sb strings.Builder
	if len(s.entries) == 0 {
		sb.WriteString("No series in this specification.\n")
	}
	for i := range s.entries {
		e := &s.entries[i]
		approved, total := Approval(e)
		status := components.PendingStyle.Render(fmt.Sprintf("%d/%d", approved, total))
		if approved == total && total > 0 {
			status = components.ApprovedStyle.Render(fmt.Sprintf("%d/%d", approved, total))
		}
		line := fmt.Sprintf("%-24s sub-%-8s ses-%-10s task-%-12s run-%-3s %s",
			truncate(e.Location, 24), e.Value("subject"), e.Value("session"),
			e.Value("task"), e.Value("run"), e.Value("description"))
		if i == s.cursor {
			line = components.SelectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line + "  " + status + "\n")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		subtitle,
		sb.String(),
		components.KeyHintStyle.Render("↑/↓: Move | Enter: Edit | q: Finish"),
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Selected returns the index chosen for editing, or -1.
func (s *ListScreen) Selected() int { return s.selected }

// Cursor returns the highlighted index.
func (s *ListScreen) Cursor() int { return s.cursor }

// Finished reports whether the user is done with the list.
func (s *ListScreen) Finished() bool { return s.finished }
