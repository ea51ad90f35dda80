package review

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/datalad/datalad-neuroimaging/cmd/datalad-ni/review/screens"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

func testEntries() []studyspec.Entry {
	a := studyspec.Entry{Type: "dicomseries", UID: "1.2.3", Location: "acq1"}
	a.Set("subject", "02")
	a.Set("run", 1)
	b := studyspec.Entry{Type: "dicomseries", UID: "1.2.4", Location: "acq1"}
	b.Approve("subject", "02")
	return []studyspec.Entry{a, b}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestReviewerQuitWithoutEdits(t *testing.T) {
	r := NewReviewer("spec.json", testEntries())
	_, cmd := r.Update(key("q"))
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("Expected tea.QuitMsg")
	}
	if r.ShouldSave() {
		t.Error("Nothing was edited, should not save")
	}
}

func TestReviewerOpensSelectedEntry(t *testing.T) {
	r := NewReviewer("spec.json", testEntries())
	r.Update(key("down"))
	r.Update(key("enter"))
	if r.phase != PhaseEntry {
		t.Fatalf("Expected PhaseEntry, got %v", r.phase)
	}
	if r.current != 1 {
		t.Errorf("Expected entry 1, got %d", r.current)
	}

	// Esc returns to the list without marking the entry edited
	r.Update(key("esc"))
	if r.phase != PhaseList {
		t.Fatalf("Expected PhaseList after esc, got %v", r.phase)
	}
	if len(r.edited) != 0 {
		t.Errorf("Cancelled edit should not count, got %v", r.edited)
	}
	if r.listScreen.Cursor() != 1 {
		t.Errorf("Cursor should stay on the edited entry, got %d", r.listScreen.Cursor())
	}
}

func TestReviewerSummaryAfterEdit(t *testing.T) {
	r := NewReviewer("spec.json", testEntries())
	r.edited[0] = true
	r.Update(key("q"))
	if r.phase != PhaseSummary {
		t.Fatalf("Expected PhaseSummary, got %v", r.phase)
	}
	// Esc on the summary goes back to the list
	r.Update(key("esc"))
	if r.phase != PhaseList {
		t.Errorf("Expected PhaseList, got %v", r.phase)
	}
}

func TestListScreenApproval(t *testing.T) {
	entries := testEntries()
	approved, total := screens.Approval(&entries[0])
	if approved != 0 || total != 2 {
		t.Errorf("Approval = %d/%d, want 0/2", approved, total)
	}
	approved, total = screens.Approval(&entries[1])
	if approved != 1 || total != 1 {
		t.Errorf("Approval = %d/%d, want 1/1", approved, total)
	}
}
