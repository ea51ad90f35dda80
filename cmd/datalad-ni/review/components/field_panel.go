package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/datalad/datalad-neuroimaging/cmd/datalad-ni/review/help"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec/rules"
)

// ApproveKey is the form key of the approval step.
const ApproveKey = "approve"

var (
	fieldPanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1)

	fieldTitleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("63")).
		Bold(true)

	fieldDescStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	fieldDetailStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))
)

// FieldPanel explains the focused field of a spec entry next to what the
// spec currently stores for it.
type FieldPanel struct {
	entry *studyspec.Entry
	field string
	width int
}

// NewFieldPanel creates a panel over entry.
func NewFieldPanel(entry *studyspec.Entry) *FieldPanel {
	return &FieldPanel{entry: entry, width: 60}
}

// Focus selects the field behind a form key. Field inputs are keyed
// "field:<name>", the approval step ApproveKey.
func (p *FieldPanel) Focus(formKey string) {
	p.field = strings.TrimPrefix(formKey, "field:")
}

// Field returns the focused field name.
func (p *FieldPanel) Field() string { return p.field }

// SetWidth updates the panel width.
func (p *FieldPanel) SetWidth(width int) {
	p.width = width
}

// Hints lists the keys that work on the focused field.
func (p *FieldPanel) Hints() string {
	var keys []string
	switch p.field {
	case "":
	case ApproveKey:
		keys = []string{"Space: Toggle approval", "Enter: Save entry"}
	case "converter":
		keys = []string{"Up/Down: Choose converter", "Tab: Next field"}
	default:
		keys = []string{"Type to edit", "Tab: Next field"}
	}
	return strings.Join(append(keys, "Esc: Back without saving"), " | ")
}

// Stored describes the spec value of the focused field, or the approval
// count on the approval step.
func (p *FieldPanel) Stored() string {
	if p.field == ApproveKey {
		approved := 0
		for _, f := range p.entry.Fields {
			if f.Approved {
				approved++
			}
		}
		return fmt.Sprintf("%d of %d fields approved", approved, len(p.entry.Fields))
	}
	f, ok := p.entry.Get(p.field)
	if !ok {
		return "not in spec"
	}
	value := rules.Text(f.Value)
	if value == "" {
		value = "(empty)"
	}
	if f.Approved {
		return "stored: " + value + " " + ApprovedStyle.Render("approved")
	}
	return "stored: " + value + " " + PendingStyle.Render("pending")
}

// View renders the panel.
func (p *FieldPanel) View() string {
	style := fieldPanelStyle.Width(max(p.width-4, 20))
	if p.field == "" {
		return style.Render("Select a field to see help")
	}

	var sb strings.Builder
	text, ok := help.Texts[p.field]
	if ok {
		sb.WriteString(fieldTitleStyle.Render(text.Title))
		sb.WriteString("\n")
		sb.WriteString(fieldDescStyle.Render(text.Description))
	} else {
		sb.WriteString(fieldTitleStyle.Render(strings.ToUpper(p.field)))
		sb.WriteString("\n")
		sb.WriteString(fieldDescStyle.Render("Custom field."))
	}
	if text.Details != "" {
		sb.WriteString("\n")
		sb.WriteString(fieldDetailStyle.Render(text.Details))
	}
	sb.WriteString("\n\n")
	sb.WriteString(p.Stored())
	return style.Render(sb.String())
}
