package components

import (
	"strings"
	"testing"

	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

func TestFieldPanel(t *testing.T) {
	e := &studyspec.Entry{Type: studyspec.TypeDICOMSeries, UID: "1.2.3"}
	e.Approve("subject", "02")
	e.Set("run", 0)
	e.Set("converter", studyspec.ConverterHeudiconv)
	p := NewFieldPanel(e)

	if got := p.View(); !strings.Contains(got, "Select a field") {
		t.Errorf("View() before focus = %q", got)
	}

	tests := []struct {
		key        string
		field      string
		view       []string
		hint       string
		wantStored string
	}{
		{"field:subject", "subject", []string{"SUBJECT", "sub- prefix"}, "Type to edit", "stored: 02"},
		{"field:run", "run", []string{"RUN"}, "Type to edit", "stored: 0"},
		{"field:converter", "converter", []string{"CONVERTER", "ignore"}, "Choose converter", "stored: heudiconv"},
		{"field:custom", "custom", []string{"CUSTOM", "Custom field."}, "Type to edit", "not in spec"},
		{ApproveKey, ApproveKey, []string{"APPROVAL"}, "Toggle approval", "1 of 3 fields approved"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			p.Focus(tt.key)
			if p.Field() != tt.field {
				t.Errorf("Field() = %q, want %q", p.Field(), tt.field)
			}
			view := p.View()
			for _, want := range append(tt.view, tt.wantStored) {
				if !strings.Contains(view, want) {
					t.Errorf("View() = %q, want it to contain %q", view, want)
				}
			}
			if hints := p.Hints(); !strings.Contains(hints, tt.hint) || !strings.Contains(hints, "Esc") {
				t.Errorf("Hints() = %q, want %q and Esc", hints, tt.hint)
			}
		})
	}
}

func TestFieldPanelApprovalState(t *testing.T) {
	e := &studyspec.Entry{Type: studyspec.TypeDICOMSeries, UID: "1.2.3"}
	e.Approve("subject", "02")
	e.Set("task", "")
	p := NewFieldPanel(e)

	p.Focus("field:subject")
	if got := p.Stored(); !strings.Contains(got, "approved") {
		t.Errorf("Stored() = %q, want approved", got)
	}
	p.Focus("field:task")
	if got := p.Stored(); !strings.Contains(got, "(empty)") || !strings.Contains(got, "pending") {
		t.Errorf("Stored() = %q, want empty and pending", got)
	}
}
