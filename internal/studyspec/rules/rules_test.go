package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Doe^John", "DoeJohn"},
		{"t1_mprage 1mm", "t1mprage1mm"},
		{"already01", "already01"},
		{"__", ""},
		{"Müller^Zoë", "MüllerZoë"},
		{"Müller-Schmidt^Jean-Pierre", "MüllerSchmidtJeanPierre"},
		{"Škvorecký^Łukasz", "ŠkvoreckýŁukasz"},
		{"O'Connor^Siân", "OConnorSiân"},
		{"Østergaard^Søren", "ØstergaardSøren"},
		{"山田^太郎", "山田太郎"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultRulesNonASCIINames(t *testing.T) {
	series := []Series{
		{"ProtocolName": "anat-T1w", "SeriesDescription": "T1", "PatientName": "Çelik^Éléonore", "SeriesNumber": 1},
		{"ProtocolName": "anat-T1w", "SeriesDescription": "T1", "PatientName": "García-López^José", "SeriesNumber": 2},
	}
	got := DefaultRules{}.Apply(series)
	if s := got[0]["subject"]; s != "ÇelikÉléonore" {
		t.Errorf("subject = %q, want %q", s, "ÇelikÉléonore")
	}
	if s := got[1]["subject"]; s != "GarcíaLópezJosé" {
		t.Errorf("subject = %q, want %q", s, "GarcíaLópezJosé")
	}
}

func TestDefaultRules(t *testing.T) {
	series := []Series{
		{"ProtocolName": "func_task", "SeriesDescription": "bold A", "PatientName": "02^X", "SeriesNumber": 3},
		{"ProtocolName": "anat-T1w", "SeriesDescription": "T1", "PatientName": "02^X", "SeriesNumber": 4},
		{"ProtocolName": "func_task", "SeriesDescription": "bold B", "PatientName": "02^X", "SeriesNumber": 5},
	}
	got := DefaultRules{}.Apply(series)
	want := []map[string]any{
		{"description": "bold A", "comment": "", "subject": "02X", "session": "functask", "task": "functask", "run": 1, "modality": "", "id": 3},
		{"description": "T1", "comment": "", "subject": "02X", "session": "anatT1w", "task": "anatT1w", "run": 1, "modality": "", "id": 4},
		{"description": "bold B", "comment": "", "subject": "02X", "session": "functask", "task": "functask", "run": 2, "modality": "", "id": 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}
}

func TestSeriesIsValid(t *testing.T) {
	full := Series{"SeriesInstanceUID": "1.2.3", "PatientName": "p", "ProtocolName": "x"}
	if !SeriesIsValid(full) {
		t.Error("SeriesIsValid(full) = false")
	}
	for _, k := range []string{"SeriesInstanceUID", "PatientName", "ProtocolName"} {
		s := Series{}
		for kk, v := range full {
			if kk != k {
				s[kk] = v
			}
		}
		if SeriesIsValid(s) {
			t.Errorf("SeriesIsValid(without %s) = true", k)
		}
	}
}

func TestForDefaults(t *testing.T) {
	got := For(nil)
	if len(got) != 1 {
		t.Fatalf("For() returned %d rules, want 1", len(got))
	}
	if _, ok := got[0].(DefaultRules); !ok {
		t.Errorf("For()[0] = %T, want DefaultRules", got[0])
	}
}
