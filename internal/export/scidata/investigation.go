package scidata

import (
	"fmt"
	"strings"
)

// investigation renders i_Investigation.txt. Sections follow the ISA-Tab
// 1.0 layout; values of multi-valued rows are tab separated.
func investigation(desc map[string]any, opts Options, assayFiles []string, assays []assay) string {
	var b strings.Builder
	line := func(key string, values ...string) {
		b.WriteString(key)
		for _, v := range values {
			b.WriteByte('\t')
			b.WriteString(v)
		}
		b.WriteByte('\n')
	}
	section := func(name string) { b.WriteString(name + "\n") }

	title := text(desc["Name"])
	description := text(desc["Description"])
	authors := list(desc["Authors"])
	refs := list(desc["ReferencesAndLinks"])

	section("ONTOLOGY SOURCE REFERENCE")
	line("Term Source Name", "OBI", "NCBITAXON", "UBERON", "EFO")
	line("Term Source File", "http://data.bioontology.org/ontologies/OBI", "http://data.bioontology.org/ontologies/NCBITAXON",
		"http://data.bioontology.org/ontologies/UBERON", "http://data.bioontology.org/ontologies/EFO")
	line("Term Source Version")
	line("Term Source Description", "Ontology for Biomedical Investigations", "National Center for Biotechnology Information Taxonomy",
		"Uber Anatomy Ontology", "Experimental Factor Ontology")

	section("INVESTIGATION")
	line("Investigation Identifier", opts.RepoAccession)
	line("Investigation Title", title)
	line("Investigation Description", description)
	line("Investigation Submission Date")
	line("Investigation Public Release Date")
	section("INVESTIGATION PUBLICATIONS")
	line("Investigation PubMed ID")
	line("Investigation Publication DOI")
	line("Investigation Publication Author List")
	line("Investigation Publication Title")
	line("Investigation Publication Status")
	section("INVESTIGATION CONTACTS")
	line("Investigation Person Last Name")
	line("Investigation Person First Name")
	line("Investigation Person Roles")

	section("STUDY")
	line("Study Identifier", opts.RepoAccession)
	line("Study Title", title)
	line("Study Description", description)
	line("Study Submission Date")
	line("Study Public Release Date")
	line("Study File Name", studyFile)
	section("STUDY DESIGN DESCRIPTORS")
	line("Study Design Type")
	line("Study Design Type Term Accession Number")
	line("Study Design Type Term Source REF")
	section("STUDY PUBLICATIONS")
	line("Study Publication DOI", refs...)
	line("Study Publication Author List")
	line("Study Publication Title")
	line("Study Publication Status")
	section("STUDY FACTORS")
	factorNames := usedFactors(assays)
	line("Study Factor Name", factorNames...)
	line("Study Factor Type", factorNames...)
	section("STUDY ASSAYS")
	var measurement, technology, platform []string
	for range assayFiles {
		measurement = append(measurement, "nuclear magnetic resonance assay")
		technology = append(technology, "MRI Scanner")
		platform = append(platform, "")
	}
	line("Study Assay Measurement Type", measurement...)
	line("Study Assay Technology Type", technology...)
	line("Study Assay Technology Platform", platform...)
	line("Study Assay File Name", assayFiles...)
	section("STUDY PROTOCOLS")
	line("Study Protocol Name", recruitment, mriProtocol)
	line("Study Protocol Type", recruitment, mriProtocol)
	line("Study Protocol Parameters Name", "", "modality")
	section("STUDY CONTACTS")
	line("Study Person Last Name", authors...)
	line("Study Person First Name")
	line("Study Person Roles")
	line("Comment[Data Repository]", opts.RepoName)
	line("Comment[Data Record Accession]", opts.RepoAccession)
	line("Comment[Data Record URI]", opts.RepoURL)
	return b.String()
}

func usedFactors(assays []assay) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range assays {
		for _, h := range a.rows[0] {
			if name, ok := strings.CutPrefix(h, "Factor Value["); ok {
				name = strings.TrimSuffix(name, "]")
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
	}
	return out
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return strings.ReplaceAll(fmt.Sprint(v), "\n", " ")
}

func list(v any) []string {
	switch v := v.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, text(x))
		}
		return out
	case nil:
		return nil
	default:
		return []string{text(v)}
	}
}
