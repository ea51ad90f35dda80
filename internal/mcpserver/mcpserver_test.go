package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalad/datalad-neuroimaging/internal/metadata"
	"github.com/datalad/datalad-neuroimaging/internal/store"
)

type staticExtractor struct{}

func (staticExtractor) Name() string { return "bids_dataset" }

func (staticExtractor) Metadata(_ context.Context, req metadata.Request) (*metadata.Result, error) {
	return &metadata.Result{Dataset: map[string]any{"name": "demo", "files": len(req.Paths)}}, nil
}

func connect(t *testing.T, opts Options) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := New(opts).Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		require.NotEmpty(t, res.Content)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(text.Text), out))
	}
	return res
}

func TestListTools(t *testing.T) {
	cs := connect(t, Options{})
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"extract", "search", "dicom2spec"}, names)
}

func TestExtractTool(t *testing.T) {
	cs := connect(t, Options{Registry: metadata.NewRegistry(staticExtractor{})})

	var out ExtractResult
	res := call(t, cs, "extract", map[string]any{"path": t.TempDir()}, &out)
	require.False(t, res.IsError)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "bids_dataset", out.Results[0].Extractor)
	assert.Equal(t, "demo", out.Results[0].Dataset["name"])

	res = call(t, cs, "extract", map[string]any{"path": t.TempDir(), "extractors": []string{"nope"}}, nil)
	assert.True(t, res.IsError)
}

func TestSearchTool(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Put(ctx, store.Record{Root: "/ds"}, []store.Record{
		{Path: "sub-01/func/bold.nii", Metadata: map[string]map[string]any{"bids": {"task": "rest"}}},
	}))

	cs := connect(t, Options{Store: st})
	var out SearchResult
	res := call(t, cs, "search", map[string]any{"query": []string{"bids.task:rest"}}, &out)
	require.False(t, res.IsError)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "sub-01/func/bold.nii", out.Hits[0].Path)

	noStore := connect(t, Options{})
	res = call(t, noStore, "search", map[string]any{"query": []string{"x"}}, nil)
	assert.True(t, res.IsError)
}

func TestDicom2SpecToolRequiresDataset(t *testing.T) {
	cs := connect(t, Options{})
	res := call(t, cs, "dicom2spec", map[string]any{"dataset": ""}, nil)
	assert.True(t, res.IsError)
}
