package dicomsynth

import (
	"fmt"
	"math/rand/v2"
)

var (
	maleFirstNames   = []string{"James", "John", "Robert", "Michael", "David", "Pierre", "Thomas", "Lucas", "Hugo", "Daniel"}
	femaleFirstNames = []string{"Mary", "Linda", "Sarah", "Emma", "Claire", "Julie", "Alice", "Laura", "Anna", "Chloe"}
	lastNames        = []string{"Smith", "Johnson", "Brown", "Miller", "Davis", "Martin", "Dubois", "Moreau", "Wilson", "Taylor"}
)

// PatientName returns a random name in DICOM person-name format
// (LASTNAME^FIRSTNAME). Sex "M" picks a male first name, anything else a
// female one.
func PatientName(sex string, rng *rand.Rand) string {
	first := femaleFirstNames
	if sex == "M" {
		first = maleFirstNames
	}
	return lastNames[rng.IntN(len(lastNames))] + "^" + first[rng.IntN(len(first))]
}

// DemoProtocols are the protocols acquired per subject in a demo study.
var DemoProtocols = []struct {
	Protocol    string
	Description string
	Images      int
}{
	{"anat-T1w", "T1w MPRAGE", 4},
	{"func-task_rest", "resting state", 3},
}

// DemoStudy returns series specs for a study with the given number of
// subjects, each acquiring DemoProtocols in one session.
func DemoStudy(subjects int, seed int64) []SeriesSpec {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)+1))
	var out []SeriesSpec
	for s := 1; s <= subjects; s++ {
		sex := "F"
		if rng.IntN(2) == 0 {
			sex = "M"
		}
		name := PatientName(sex, rng)
		for i, p := range DemoProtocols {
			out = append(out, SeriesSpec{
				PatientName:       name,
				PatientID:         fmt.Sprintf("sub%02d", s),
				PatientSex:        sex,
				PatientAge:        fmt.Sprintf("%03dY", 20+rng.IntN(40)),
				StudyID:           fmt.Sprintf("%d", s),
				StudyDescription:  "demo",
				ProtocolName:      p.Protocol,
				SeriesDescription: p.Description,
				SeriesNumber:      i + 1,
				Images:            p.Images,
			})
		}
	}
	return out
}
