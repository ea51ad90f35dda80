// Package gindatacite generates a GIN datacite.yml template from the
// dataset_description.json of a BIDS dataset.
package gindatacite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/bids"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
)

// Action names the results produced by Export.
const Action = "bids2gindatacite"

// DefaultOutput is the file name written when none is given.
const DefaultOutput = "datacite.yml"

var (
	// ErrExists is returned when the output exists and Force is not set.
	ErrExists = errors.New("datacite file already exists")
	// ErrNoTitle is returned when the description has no Name.
	ErrNoTitle = errors.New("required key Name not found in 'dataset_description.json'")
)

// Options configures Export.
type Options struct {
	Dataset string
	// Output is relative to the dataset. Defaults to DefaultOutput.
	Output string
	Force  bool
	Logger *zap.Logger
}

// Export writes the datacite file of a BIDS dataset.
func Export(opts Options) (dataset.Result, error) {
	logger := logging.OrNop(opts.Logger)
	root, err := filepath.Abs(opts.Dataset)
	if err != nil {
		return dataset.Result{}, err
	}
	descPath := filepath.Join(root, bids.DescriptionFile)
	data, err := os.ReadFile(descPath)
	if errors.Is(err, os.ErrNotExist) {
		return dataset.Result{
			Action: Action, Status: dataset.StatusError, Path: descPath,
			Message: fmt.Sprintf("could not find dataset description file (%s). Is the dataset at %s BIDS-compliant?", descPath, root),
		}, nil
	}
	if err != nil {
		return dataset.Result{}, err
	}
	var desc map[string]any
	if err := json.Unmarshal(data, &desc); err != nil {
		return dataset.Result{}, fmt.Errorf("decode %s: %w", descPath, err)
	}

	output := opts.Output
	if output == "" {
		output = DefaultOutput
	}
	target := filepath.Join(root, output)
	if _, err := os.Stat(target); err == nil && !opts.Force {
		return dataset.Result{
			Action: Action, Status: dataset.StatusError, Path: target,
			Message: fmt.Sprintf("File %s already exists. If you want to override the existing file, specify -f/--force.", target),
		}, ErrExists
	}

	doc, err := Generate(desc, logger)
	if err != nil {
		return dataset.Result{Action: Action, Status: dataset.StatusError, Path: descPath, Message: err.Error()}, nil
	}
	if err := os.WriteFile(target, doc, 0o644); err != nil {
		return dataset.Result{}, err
	}
	return dataset.Result{Action: Action, Status: dataset.StatusOK, Path: target, Type: "file"}, nil
}

// Generate renders the datacite document. Sections the description cannot
// fill are written as commented templates.
func Generate(desc map[string]any, logger *zap.Logger) ([]byte, error) {
	logger = logging.OrNop(logger)
	var sections []string
	for _, gen := range []func(map[string]any, *zap.Logger) (string, error){
		authors, title, description, keywords, license, funding, references, resourceType,
	} {
		s, err := gen(desc, logger)
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return []byte(strings.Join(sections, "\n\n") + "\n"), nil
}

func authors(desc map[string]any, logger *zap.Logger) (string, error) {
	raw, ok := desc["Authors"].([]any)
	if !ok {
		logger.Debug("'Authors' missing in dataset description")
		return authorsMissing, nil
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, a := range raw {
		author, _ := a.(string)
		author = strings.TrimSpace(author)
		if author == "" {
			continue
		}
		first, last := SplitName(author)
		item := mapping(
			"firstname", plain(first),
			"lastname", plain(last),
		)
		item.HeadComment = fmt.Sprintf("GENERATED FROM: Authors-entry: %q", author)
		seq.Content = append(seq.Content, item)
	}
	return encode("authors", seq, authorsHeader)
}

// SplitName splits an author string into first and last name. "Last, First"
// is honored; otherwise the last word is the last name.
func SplitName(author string) (first, last string) {
	if strings.Count(author, ",") == 1 {
		last, first, _ = strings.Cut(author, ",")
		return strings.TrimSpace(first), strings.TrimSpace(last)
	}
	words := strings.Fields(author)
	if len(words) > 1 {
		return strings.Join(words[:len(words)-1], " "), words[len(words)-1]
	}
	return "<unknown>", words[0]
}

func title(desc map[string]any, _ *zap.Logger) (string, error) {
	name, ok := desc["Name"]
	if !ok || name == nil {
		return "", ErrNoTitle
	}
	return encode("title", quoted(fmt.Sprint(name)), "GENERATED from dataset_description.json#Name")
}

func description(map[string]any, *zap.Logger) (string, error) { return descriptionMissing, nil }

func keywords(map[string]any, *zap.Logger) (string, error) { return keywordsMissing, nil }

func license(desc map[string]any, logger *zap.Logger) (string, error) {
	lic, ok := desc["License"]
	if !ok || lic == nil {
		logger.Debug("No License key found in 'dataset_description.json'")
		return licenseMissing, nil
	}
	name := fmt.Sprint(lic)
	value := mapping("name", quoted(name))
	value.Content[1].LineComment = `url: "https://creativecommons.org/publicdomain/zero/1.0/"`
	return encode("license", value, fmt.Sprintf("GENERATED FROM: License: %q\n"+
		"If possible, please provide a link to the license in the url-entry.\n"+
		"Please add also a corresponding LICENSE file to the repository.", name))
}

func funding(desc map[string]any, logger *zap.Logger) (string, error) {
	raw, present := desc["Funding"]
	if !present || raw == nil {
		logger.Debug("No Funding field found in 'dataset_description.json'")
		return fundingMissing, nil
	}
	list, ok := raw.([]any)
	if !ok {
		logger.Warn("Funding field in 'dataset_description.json' does not contain an array, ignoring it")
		return fundingMissing, nil
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, f := range list {
		funder := fmt.Sprint(f)
		n := quoted(funder)
		n.HeadComment = fmt.Sprintf("GENERATED FROM: Funding-entry: %s in 'dataset_description.json'", funder)
		seq.Content = append(seq.Content, n)
	}
	return encode("funding", seq, "")
}

func references(desc map[string]any, logger *zap.Logger) (string, error) {
	raw, present := desc["ReferencesAndLinks"]
	if !present || raw == nil {
		logger.Debug("No ReferencesAndLinks key found in 'dataset_description.json'")
		return referencesMissing, nil
	}
	list, ok := raw.([]any)
	if !ok {
		logger.Warn("ReferencesAndLinks field in 'dataset_description.json' does not contain an array, ignoring it")
		return referencesMissing, nil
	}
	var ignored []string
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range list {
		ref := fmt.Sprint(r)
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			ignored = append(ignored, fmt.Sprintf("# ignoring ReferencesAndLinks-entry %s, because it is a link.", ref))
			continue
		}
		item := mapping(
			"reftype", quoted("IsSupplementTo"),
			"citation", quoted(ref),
		)
		item.HeadComment = fmt.Sprintf("GENERATED FROM: ReferencesAndLinks-entry: %s in 'dataset_description.json'", ref)
		item.Content[3].LineComment = "id: <not set, please provide if possible>"
		seq.Content = append(seq.Content, item)
	}
	comment := strings.Join(ignored, "\n")
	if len(seq.Content) == 0 {
		return comment, nil
	}
	return encode("references", seq, comment)
}

func resourceType(map[string]any, *zap.Logger) (string, error) {
	return encode("resourcetype", plain("Dataset"), "")
}

func plain(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func quoted(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
}

// mapping builds a mapping from alternating keys and value nodes.
func mapping(kv ...any) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(kv); i += 2 {
		m.Content = append(m.Content, plain(kv[i].(string)), kv[i+1].(*yaml.Node))
	}
	return m
}

// encode renders a single-key document with an optional head comment.
func encode(key string, value *yaml.Node, comment string) (string, error) {
	k := plain(key)
	k.HeadComment = comment
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{k, value}}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
