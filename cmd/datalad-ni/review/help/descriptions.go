package help

// HelpText describes one study specification field.
type HelpText struct {
	Title       string
	Description string
	Details     string
}

// Texts holds the help for every field the review form shows.
var Texts = map[string]HelpText{
	"description": {
		Title:       "DESCRIPTION",
		Description: "Free text describing the series.",
		Details:     "Derived from the DICOM SeriesDescription.",
	},
	"comment": {
		Title:       "COMMENT",
		Description: "Notes for whoever converts the study.",
	},
	"subject": {
		Title:       "SUBJECT",
		Description: "BIDS subject label, without the sub- prefix.",
		Details:     "Derived from PatientName. Only letters and digits are allowed.",
	},
	"session": {
		Title:       "SESSION",
		Description: "BIDS session label, without the ses- prefix.",
		Details:     "Leave empty for single-session studies.",
	},
	"task": {
		Title:       "TASK",
		Description: "BIDS task label of functional series.",
		Details:     "Derived from ProtocolName.",
	},
	"run": {
		Title:       "RUN",
		Description: "Run index among series of the same protocol.",
		Details:     "0 or empty omits the run entity from the file name.",
	},
	"modality": {
		Title:       "MODALITY",
		Description: "BIDS modality suffix, e.g. T1w or bold.",
	},
	"converter": {
		Title:       "CONVERTER",
		Description: "Conversion tool for the series.",
		Details: `heudiconv - convert with the study heuristic
ignore    - leave the series out of the conversion`,
	},
	"id": {
		Title:       "ID",
		Description: "Series number within the acquisition.",
	},
	"approve": {
		Title:       "APPROVAL",
		Description: "Fields confirmed by a human.",
		Details:     "Approval marks a value as checked. Re-running dicom2spec resets the fields it derives, approved or not.",
	},
}
