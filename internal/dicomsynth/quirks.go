package dicomsynth

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Quirk is a kind of header irregularity seen in real scanner exports.
type Quirk string

const (
	// QuirkSpecialChars uses non-ASCII patient names (with a UTF-8
	// SpecificCharacterSet).
	QuirkSpecialChars Quirk = "special-chars"
	// QuirkLongNames fills PatientName and PatientID to the 64 character
	// LO limit.
	QuirkLongNames Quirk = "long-names"
	// QuirkMissingTags drops descriptive attributes from a series.
	QuirkMissingTags Quirk = "missing-tags"
	// QuirkPartialDates truncates PatientBirthDate to YYYY or YYYYMM.
	QuirkPartialDates Quirk = "partial-dates"
)

// AllQuirks lists every known quirk.
func AllQuirks() []Quirk {
	return []Quirk{QuirkSpecialChars, QuirkLongNames, QuirkMissingTags, QuirkPartialDates}
}

// ParseQuirks parses a comma separated list of quirk names.
func ParseQuirks(input string) ([]Quirk, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	valid := make(map[Quirk]bool)
	for _, q := range AllQuirks() {
		valid[q] = true
	}
	var out []Quirk
	for _, p := range strings.Split(input, ",") {
		q := Quirk(strings.TrimSpace(p))
		if !valid[q] {
			return nil, fmt.Errorf("unknown quirk %q, valid quirks: %v", q, AllQuirks())
		}
		out = append(out, q)
	}
	return out, nil
}

// loMaxLength is the maximum length of an LO value.
const loMaxLength = 64

var (
	specialMaleFirst   = []string{"Jean-Pierre", "François", "José", "Søren", "Łukasz", "Jürgen"}
	specialFemaleFirst = []string{"Marie-Claire", "Éléonore", "María", "Siân", "Zoë", "Hélène"}
	specialLast        = []string{"Müller-Schmidt", "O'Connor", "García-López", "Østergaard", "Çelik", "Škvorecký"}

	longLast  = []string{"ALEXANDROPOULOSWILLIAMSONBERG", "VANDENBERGHEMONTGOMERYSMITH", "CHRISTODOULOPOULOSSMITHBAUER"}
	longFirst = []string{"ALEXANDERMAXIMILIANWILLIAM", "ELIZABETHCATHERINEANNAMARIE", "BENJAMINFREDERICKNATHANJOHN"}

	// ProtocolName stays, the series layout is keyed on it
	omittable = []tag.Tag{tag.StudyDescription, tag.SeriesDescription, tag.PatientAge, tag.ImageType}
)

func hasQuirk(quirks []Quirk, q Quirk) bool {
	for _, have := range quirks {
		if have == q {
			return true
		}
	}
	return false
}

func specialCharName(sex string, rng *rand.Rand) string {
	first := specialFemaleFirst
	if sex == "M" {
		first = specialMaleFirst
	}
	return specialLast[rng.IntN(len(specialLast))] + "^" + first[rng.IntN(len(first))]
}

func longPatientName(rng *rand.Rand) string {
	name := longLast[rng.IntN(len(longLast))] + "^" + longFirst[rng.IntN(len(longFirst))]
	if len(name) > loMaxLength {
		name = name[:loMaxLength]
	}
	return name
}

func longPatientID(rng *rand.Rand) string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	var sb strings.Builder
	for i := 0; i < loMaxLength; i++ {
		sb.WriteByte(chars[rng.IntN(len(chars))])
	}
	return sb.String()
}

func partialDate(rng *rand.Rand) string {
	year := 1940 + rng.IntN(60)
	if rng.IntN(2) == 0 {
		return fmt.Sprintf("%04d", year)
	}
	return fmt.Sprintf("%04d%02d", year, 1+rng.IntN(12))
}

// omittedTags picks one or two attributes to leave out of a series.
func omittedTags(rng *rand.Rand) map[tag.Tag]bool {
	idx := rng.Perm(len(omittable))
	out := make(map[tag.Tag]bool)
	for _, i := range idx[:1+rng.IntN(2)] {
		out[omittable[i]] = true
	}
	return out
}

// applyQuirks rewrites the patient level values of a series spec.
// Patients keep their quirky identity across their series.
func applyQuirks(spec *SeriesSpec, quirks []Quirk, patients map[string]SeriesSpec, rng *rand.Rand) {
	if prev, ok := patients[spec.PatientName]; ok {
		spec.PatientName, spec.PatientID, spec.PatientBirthDate = prev.PatientName, prev.PatientID, prev.PatientBirthDate
		return
	}
	orig := spec.PatientName
	if hasQuirk(quirks, QuirkSpecialChars) {
		spec.PatientName = specialCharName(spec.PatientSex, rng)
	}
	if hasQuirk(quirks, QuirkLongNames) {
		spec.PatientName = longPatientName(rng)
		spec.PatientID = longPatientID(rng)
	}
	if hasQuirk(quirks, QuirkPartialDates) {
		spec.PatientBirthDate = partialDate(rng)
	}
	patients[orig] = *spec
}
