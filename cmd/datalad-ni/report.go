package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/datalad/datalad-neuroimaging/internal/store"
)

// maxReportValues bounds the values listed per unique property.
const maxReportValues = 8

func (a *app) reportCmd() *cobra.Command {
	var dsPath, style, lang string
	var raw bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the aggregated metadata store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			st, err := a.openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			infos, err := st.Datasets(cmd.Context())
			if err != nil {
				return err
			}
			tag, err := language.Parse(lang)
			if err != nil {
				return fmt.Errorf("invalid language %q: %w", lang, err)
			}
			md := buildReport(infos, tag)
			if raw {
				_, err := fmt.Fprint(a.out, md)
				return err
			}
			if style == "" {
				style = a.cfg.Report.Style
			}
			out, err := renderMarkdown(md, style, a.cfg.Report.Width)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(a.out, out)
			return err
		},
	}
	cmd.Flags().StringVarP(&dsPath, "dataset", "d", "", "Dataset whose store is summarized (default: current)")
	cmd.Flags().StringVar(&style, "style", "", "Glamour style: auto, dark, light, notty (default: configured)")
	cmd.Flags().StringVar(&lang, "lang", "en", "Language used to format numbers")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without rendering")
	return cmd
}

func renderMarkdown(md, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	return r.Render(md)
}

// buildReport renders the store summary as markdown. Counts are formatted
// for tag.
func buildReport(infos []store.DatasetInfo, tag language.Tag) string {
	p := message.NewPrinter(tag)
	var sb strings.Builder

	totalFiles := 0
	for _, info := range infos {
		totalFiles += info.Files
	}
	sb.WriteString("# Metadata report\n\n")
	sb.WriteString(p.Sprintf("%d datasets, %d files with metadata.\n\n", len(infos), totalFiles))
	if len(infos) == 0 {
		sb.WriteString("Nothing aggregated yet. Run `datalad-ni aggregate` first.\n")
		return sb.String()
	}

	sb.WriteString("| Dataset | ID | Files | Extractors | Aggregated |\n")
	sb.WriteString("|---|---|---:|---|---|\n")
	for _, info := range infos {
		sb.WriteString(p.Sprintf("| %s | %s | %d | %s | %s |\n",
			info.Root, orDash(info.DatasetID), info.Files,
			orDash(strings.Join(info.Extractors, ", ")),
			info.AggregatedAt.UTC().Format("2006-01-02 15:04:05Z")))
	}

	for _, info := range infos {
		if len(info.Unique) == 0 {
			continue
		}
		sb.WriteString("\n## " + info.Root + "\n")
		extractorNames := make([]string, 0, len(info.Unique))
		for name := range info.Unique {
			extractorNames = append(extractorNames, name)
		}
		sort.Strings(extractorNames)
		for _, name := range extractorNames {
			props := info.Unique[name]
			sb.WriteString("\n### " + name + "\n\n")
			keys := make([]string, 0, len(props))
			for k := range props {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sb.WriteString("- **" + k + "**: " + summarizeValues(p, props[k]) + "\n")
			}
		}
	}
	return sb.String()
}

func summarizeValues(p *message.Printer, vals []any) string {
	shown := vals
	if len(shown) > maxReportValues {
		shown = shown[:maxReportValues]
	}
	parts := make([]string, 0, len(shown))
	for _, v := range shown {
		parts = append(parts, "`"+fmt.Sprint(v)+"`")
	}
	s := strings.Join(parts, ", ")
	if rest := len(vals) - len(shown); rest > 0 {
		s += p.Sprintf(" and %d more", rest)
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
