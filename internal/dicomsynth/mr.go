package dicomsynth

import (
	"math/rand/v2"
)

// mrSOPClassUID is MR Image Storage.
const mrSOPClassUID = "1.2.840.10008.5.1.4.1.1.4"

type scanner struct {
	Manufacturer  string
	Model         string
	FieldStrength float64
}

var scanners = []scanner{
	{Manufacturer: "SIEMENS", Model: "Prisma", FieldStrength: 3.0},
	{Manufacturer: "SIEMENS", Model: "Skyra", FieldStrength: 3.0},
	{Manufacturer: "GE MEDICAL SYSTEMS", Model: "Discovery MR750", FieldStrength: 3.0},
	{Manufacturer: "PHILIPS", Model: "Achieva", FieldStrength: 1.5},
}

// seriesParams holds acquisition parameters shared by all images of a series.
type seriesParams struct {
	Scanner              scanner
	PixelSpacing         float64
	SliceThickness       float64
	SpacingBetweenSlices float64
	EchoTime             float64
	RepetitionTime       float64
	FlipAngle            float64
	ImagingFrequency     float64
	WindowCenter         float64
	WindowWidth          float64
}

func newSeriesParams(rng *rand.Rand) seriesParams {
	sc := scanners[rng.IntN(len(scanners))]
	p := seriesParams{
		Scanner:          sc,
		PixelSpacing:     0.5 + rng.Float64()*1.5,
		SliceThickness:   1.0 + rng.Float64()*4.0,
		EchoTime:         10.0 + rng.Float64()*20.0,
		RepetitionTime:   400.0 + rng.Float64()*1600.0,
		FlipAngle:        60.0 + rng.Float64()*30.0,
		ImagingFrequency: sc.FieldStrength * 42.58,
		WindowCenter:     500.0 + rng.Float64()*1000.0,
		WindowWidth:      1000.0 + rng.Float64()*1000.0,
	}
	p.SpacingBetweenSlices = p.SliceThickness + rng.Float64()*0.5
	return p
}
