// Package mcpserver exposes metadata extraction, search and study
// specification building as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
	"github.com/datalad/datalad-neuroimaging/internal/store"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

// DefaultSpec is the study specification written when a call names none.
const DefaultSpec = "studyspec.json"

// ErrNoStore is returned by the search tool when no store is configured.
var ErrNoStore = errors.New("no metadata store configured")

// Options configures the server.
type Options struct {
	Name     string
	Version  string
	Registry *metadata.Registry
	// Extractors names the extractors used when a call does not pick any.
	Extractors []string
	// Store backs the search tool. It may be nil.
	Store   *store.Store
	Workers int
	Logger  *zap.Logger
}

// ExtractArgs are the arguments of the extract tool.
type ExtractArgs struct {
	Path       string   `json:"path" jsonschema:"the dataset directory to extract metadata from"`
	Extractors []string `json:"extractors,omitempty" jsonschema:"extractor names, defaults to the configured set"`
	Content    bool     `json:"content,omitempty" jsonschema:"also report per-file metadata"`
}

// ExtractorOutput is the outcome of one extractor.
type ExtractorOutput struct {
	Extractor string                  `json:"extractor"`
	Dataset   map[string]any          `json:"dataset,omitempty"`
	Files     []metadata.FileMetadata `json:"files,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// ExtractResult is the output of the extract tool.
type ExtractResult struct {
	Path    string            `json:"path"`
	Results []ExtractorOutput `json:"results"`
}

// SearchArgs are the arguments of the search tool.
type SearchArgs struct {
	Query []string `json:"query" jsonschema:"search terms, either key:value or plain values, all of which must match"`
}

// SearchResult is the output of the search tool.
type SearchResult struct {
	Hits []store.Hit `json:"hits"`
}

// Dicom2SpecArgs are the arguments of the dicom2spec tool.
type Dicom2SpecArgs struct {
	Dataset  string   `json:"dataset" jsonschema:"the dataset holding DICOM files"`
	Spec     string   `json:"spec,omitempty" jsonschema:"study specification file, defaults to studyspec.json in the dataset"`
	Paths    []string `json:"paths,omitempty" jsonschema:"sub-datasets to read DICOM metadata from"`
	NoCommit bool     `json:"no_commit,omitempty" jsonschema:"do not commit the specification"`
}

// Dicom2SpecResult is the output of the dicom2spec tool.
type Dicom2SpecResult struct {
	Results []dataset.Result `json:"results"`
}

type server struct {
	opts   Options
	logger *zap.Logger
}

// New builds the MCP server with all tools registered.
func New(opts Options) *mcp.Server {
	if opts.Name == "" {
		opts.Name = "datalad-ni"
	}
	s := &server{opts: opts, logger: logging.OrNop(opts.Logger)}

	srv := mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, &mcp.ServerOptions{
		Instructions: "Neuroimaging metadata tools: extract metadata from datasets, search aggregated metadata and build DICOM study specifications.",
	})
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "extract",
		Description: "Run native metadata extractors (dicom, bids, nifti1, ...) over a dataset directory.",
	}, s.extract)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search",
		Description: "Search aggregated metadata. Terms look like bids.subject.sex:female and are combined with AND.",
	}, s.search)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "dicom2spec",
		Description: "Derive or update a study specification from the DICOM metadata of a dataset.",
	}, s.dicom2spec)
	return srv
}

// Serve runs the server over stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, opts Options) error {
	return New(opts).Run(ctx, &mcp.StdioTransport{})
}

func (s *server) extract(ctx context.Context, _ *mcp.CallToolRequest, args ExtractArgs) (*mcp.CallToolResult, ExtractResult, error) {
	if args.Path == "" {
		return nil, ExtractResult{}, fmt.Errorf("path is required")
	}
	if s.opts.Registry == nil {
		return nil, ExtractResult{}, fmt.Errorf("no extractors available")
	}
	names := args.Extractors
	if len(names) == 0 {
		names = s.opts.Extractors
	}
	if len(names) == 0 {
		names = s.opts.Registry.Names()
	}
	exs, err := s.opts.Registry.Select(names)
	if err != nil {
		return nil, ExtractResult{}, err
	}
	root, err := filepath.Abs(args.Path)
	if err != nil {
		return nil, ExtractResult{}, err
	}

	runner := metadata.Runner{Extractors: exs, Workers: s.opts.Workers, Content: args.Content, Logger: s.logger}
	outcomes, err := runner.Run(ctx, root)
	if err != nil {
		return nil, ExtractResult{}, err
	}
	out := ExtractResult{Path: root, Results: make([]ExtractorOutput, 0, len(outcomes))}
	for _, o := range outcomes {
		eo := ExtractorOutput{Extractor: o.Extractor}
		if o.Err != nil {
			eo.Error = o.Err.Error()
		} else if o.Result != nil {
			eo.Dataset = o.Result.Dataset
			eo.Files = o.Result.Files
		}
		out.Results = append(out.Results, eo)
	}
	return textResult(out), out, nil
}

func (s *server) search(ctx context.Context, _ *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, SearchResult, error) {
	if s.opts.Store == nil {
		return nil, SearchResult{}, ErrNoStore
	}
	hits, err := s.opts.Store.Search(ctx, store.ParseQuery(args.Query))
	if err != nil {
		return nil, SearchResult{}, err
	}
	out := SearchResult{Hits: hits}
	return textResult(out), out, nil
}

func (s *server) dicom2spec(ctx context.Context, _ *mcp.CallToolRequest, args Dicom2SpecArgs) (*mcp.CallToolResult, Dicom2SpecResult, error) {
	if args.Dataset == "" {
		return nil, Dicom2SpecResult{}, fmt.Errorf("dataset is required")
	}
	if args.Spec == "" {
		args.Spec = DefaultSpec
	}
	if len(args.Paths) == 0 {
		args.Paths = []string{"."}
	}
	var source studyspec.Source
	if s.opts.Registry != nil {
		if ex, err := s.opts.Registry.Lookup("dicom"); err == nil {
			source = studyspec.ExtractSource{Extractors: []metadata.Extractor{ex}, Workers: s.opts.Workers, Logger: s.logger}
		}
	}
	results, err := studyspec.Dicom2Spec(ctx, studyspec.Options{
		Dataset:  args.Dataset,
		Paths:    args.Paths,
		Spec:     args.Spec,
		Source:   source,
		NoCommit: args.NoCommit,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, Dicom2SpecResult{}, err
	}
	out := Dicom2SpecResult{Results: results}
	return textResult(out), out, nil
}

func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(err.Error())
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}
