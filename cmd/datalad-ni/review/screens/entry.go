package screens

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/datalad/datalad-neuroimaging/cmd/datalad-ni/review/components"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec/rules"
)

// Draft holds the editable text of one entry's fields.
type Draft struct {
	Names    []string
	Values   map[string]*string
	Approved []string
}

// NewDraft copies the fields of e into a draft.
func NewDraft(e *studyspec.Entry) *Draft {
	d := &Draft{Names: e.FieldNames(), Values: make(map[string]*string)}
	for _, name := range d.Names {
		f, _ := e.Get(name)
		text := rules.Text(f.Value)
		d.Values[name] = &text
		if f.Approved {
			d.Approved = append(d.Approved, name)
		}
	}
	return d
}

// Apply writes the draft back into e. Unchanged values keep their type;
// edited values of numeric fields stay numeric when they parse as numbers.
func (d *Draft) Apply(e *studyspec.Entry) {
	for _, name := range d.Names {
		orig, _ := e.Get(name)
		text := *d.Values[name]
		value := orig.Value
		if rules.Text(orig.Value) != text {
			value = convert(text, orig.Value)
		}
		if slices.Contains(d.Approved, name) {
			e.Approve(name, value)
		} else {
			e.Set(name, value)
		}
	}
}

func convert(text string, like any) any {
	switch like.(type) {
	case int, int64, float64, json.Number:
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return int(n)
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	}
	return text
}

// EntryScreen edits and approves the fields of one entry.
type EntryScreen struct {
	form      *huh.Form
	panel     *components.FieldPanel
	entry     *studyspec.Entry
	draft     *Draft
	index     int
	total     int
	done      bool
	cancelled bool
	width     int
	height    int
}

// NewEntryScreen creates the form for entry index of total.
func NewEntryScreen(entry *studyspec.Entry, index, total int) *EntryScreen {
	s := &EntryScreen{
		panel:     components.NewFieldPanel(entry),
		entry:     entry,
		draft:     NewDraft(entry),
		index:     index,
		total:     total,
	}

	var fields []huh.Field
	options := make([]huh.Option[string], 0, len(s.draft.Names))
	for _, name := range s.draft.Names {
		if name == "converter" {
			fields = append(fields, huh.NewSelect[string]().
				Key("field:converter").
				Title("converter").
				Options(huh.NewOptions(studyspec.Converters...)...).
				Value(s.draft.Values[name]))
		} else {
			fields = append(fields, huh.NewInput().
				Key("field:"+name).
				Title(name).
				Value(s.draft.Values[name]).
				Validate(validatorFor(name)))
		}
		options = append(options, huh.NewOption(name, name))
	}

	groups := []*huh.Group{}
	if len(fields) > 0 {
		groups = append(groups, huh.NewGroup(fields...))
	}
	groups = append(groups, huh.NewGroup(
		huh.NewMultiSelect[string]().
			Key(components.ApproveKey).
			Title("Approved fields").
			Options(options...).
			Value(&s.draft.Approved),
	))
	s.form = huh.NewForm(groups...).WithShowHelp(false).WithShowErrors(true)
	return s
}

func validatorFor(name string) func(string) error {
	switch name {
	case "subject", "session", "task":
		return func(s string) error {
			if rules.Sanitize(s) != s {
				return fmt.Errorf("%s may only contain letters and digits", name)
			}
			return nil
		}
	case "run":
		return func(s string) error {
			if s == "" {
				return nil
			}
			if n, err := strconv.Atoi(s); err != nil || n < 0 {
				return fmt.Errorf("run must be a non-negative number")
			}
			return nil
		}
	}
	return func(string) error { return nil }
}

// Init implements tea.Model
func (s *EntryScreen) Init() tea.Cmd {
	return s.form.Init()
}

// Update implements tea.Model
func (s *EntryScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			s.cancelled = true
			return s, nil
		}
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.panel.SetWidth(msg.Width / 2)
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if focused := s.form.GetFocusedField(); focused != nil {
		s.panel.Focus(focused.GetKey())
	}

	if s.form.State == huh.StateCompleted {
		s.draft.Apply(s.entry)
		s.done = true
	}

	return s, cmd
}

// View implements tea.Model
func (s *EntryScreen) View() string {
	title := components.TitleStyle.Render(fmt.Sprintf("SERIES %d/%d", s.index+1, s.total))
	subtitle := components.SubtitleStyle.Render(fmt.Sprintf("%s  %s", s.entry.Location, s.entry.UID))

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		subtitle,
		s.form.View(),
		"",
		s.panel.View(),
		"",
		components.KeyHintStyle.Render(s.panel.Hints()),
	)
}

// Done reports whether the form was submitted.
func (s *EntryScreen) Done() bool { return s.done }

// FocusedField names the field the cursor is on, "" before the first update.
func (s *EntryScreen) FocusedField() string { return s.panel.Field() }

// Cancelled reports whether the edit was abandoned.
func (s *EntryScreen) Cancelled() bool { return s.cancelled }
