package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amannotes/internal/async"
	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
	"github.com/Aman-CERP/amannotes/internal/store"
)

// mockIndex implements Index for testing.
type mockIndex struct {
	mu         sync.Mutex
	hits       []index.SearchHit
	status     index.Status
	fullResult bool
	fullNotes  []index.Note
	lastQuery  string
	lastLimit  int
	natural    bool
}

func (m *mockIndex) Search(_ context.Context, q string, limit int) []index.SearchHit {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery, m.lastLimit, m.natural = q, limit, false
	return m.hits
}

func (m *mockIndex) SearchNatural(_ context.Context, q string, limit int) []index.SearchHit {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery, m.lastLimit, m.natural = q, limit, true
	return m.hits
}

func (m *mockIndex) ReindexAll(_ context.Context, notes []index.Note) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullNotes = notes
	return m.fullResult
}

func (m *mockIndex) Status(context.Context) index.Status {
	return m.status
}

type mockLister struct {
	notes []index.Note
	err   error
}

func (l mockLister) List(context.Context) ([]index.Note, error) { return l.notes, l.err }

type mockEmbedder struct{}

func (mockEmbedder) Enabled() bool                { return true }
func (mockEmbedder) ModelName() string            { return "nomic-embed-text" }
func (mockEmbedder) Dimensions() int              { return 768 }
func (mockEmbedder) BreakerState() amerrors.State { return amerrors.StateClosed }

var sampleHits = []index.SearchHit{
	{ID: "a1", NoteID: "ideas/garden.md", ChunkText: "plant tomatoes in may", Score: 2.5, Source: store.SourceLexical},
	{ID: "b1", NoteID: "journal.md", ChunkText: "watered the garden", Score: 0.81, Source: store.SourceVector},
}

func newTestServer(t *testing.T, idx *mockIndex, opts Options) *Server {
	t.Helper()
	s, err := NewServer(idx, opts)
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresIndex(t *testing.T) {
	_, err := NewServer(nil, Options{})
	require.Error(t, err)
}

func TestListTools(t *testing.T) {
	// Given: a server
	s := newTestServer(t, &mockIndex{}, Options{})

	// When: listing tools
	got := s.ListTools()

	// Then: the three note tools are registered with descriptions
	names := make([]string, 0, len(got))
	for _, tool := range got {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"search_notes", "index_status", "reindex_notes"}, names)
}

func TestCallTool_SearchNotes(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]any
		wantLimit   int
		wantNatural bool
	}{
		{"default limit", map[string]any{"query": "garden"}, defaultLimit, false},
		{"explicit limit", map[string]any{"query": "garden", "limit": float64(3)}, 3, false},
		{"limit clamped", map[string]any{"query": "garden", "limit": float64(500)}, maxLimit, false},
		{"natural", map[string]any{"query": "what did I plant?", "natural": true}, defaultLimit, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an index with two hits
			idx := &mockIndex{hits: sampleHits}
			s := newTestServer(t, idx, Options{})

			// When: calling search_notes
			got, err := s.CallTool(context.Background(), "search_notes", tt.args)

			// Then: the index is queried with the clamped limit and markdown returned
			require.NoError(t, err)
			md, ok := got.(string)
			require.True(t, ok)
			assert.Contains(t, md, "ideas/garden.md")
			assert.Contains(t, md, "Found 2 results")
			assert.Equal(t, tt.args["query"], idx.lastQuery)
			assert.Equal(t, tt.wantLimit, idx.lastLimit)
			assert.Equal(t, tt.wantNatural, idx.natural)
		})
	}
}

func TestCallTool_SearchNotes_InvalidQuery(t *testing.T) {
	s := newTestServer(t, &mockIndex{}, Options{})

	for _, args := range []map[string]any{nil, {"query": ""}, {"query": "   "}} {
		_, err := s.CallTool(context.Background(), "search_notes", args)

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
}

func TestCallTool_SearchNotes_WrongArgType(t *testing.T) {
	s := newTestServer(t, &mockIndex{}, Options{})

	_, err := s.CallTool(context.Background(), "search_notes", map[string]any{"query": 42})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallTool_SearchNotes_WarnsWhileIndexing(t *testing.T) {
	// Given: a full reindex in progress
	idx := &mockIndex{hits: sampleHits, status: index.Status{Indexing: true}}
	s := newTestServer(t, idx, Options{})

	// When: searching
	got, err := s.CallTool(context.Background(), "search_notes", map[string]any{"query": "garden"})

	// Then: the markdown carries a notice
	require.NoError(t, err)
	assert.Contains(t, got.(string), "results may be incomplete")
}

func TestCallTool_UnknownTool(t *testing.T) {
	s := newTestServer(t, &mockIndex{}, Options{})

	_, err := s.CallTool(context.Background(), "search_code", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "search_code")
}

func TestCallTool_IndexStatus(t *testing.T) {
	// Given: a coordinator status with progress and an embedder
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	idx := &mockIndex{status: index.Status{
		Indexing:          true,
		LastFullReindexAt: last,
		MergePolicy:       index.MergeRRF,
		Queued:            3,
		Progress: &async.IndexProgressSnapshot{
			Status: "indexing", Stage: "indexing", NotesTotal: 10, NotesProcessed: 4, ProgressPct: 40,
		},
		Backends: map[string]store.Stats{"lexical": {Chunks: 12, Notes: 4}},
	}}
	s := newTestServer(t, idx, Options{Root: "/notes", Embedder: mockEmbedder{}})

	// When: calling index_status
	got, err := s.CallTool(context.Background(), "index_status", nil)

	// Then: the output mirrors the status
	require.NoError(t, err)
	out, ok := got.(*IndexStatusOutput)
	require.True(t, ok)
	assert.Equal(t, "/notes", out.Root)
	assert.Equal(t, "rrf", out.MergePolicy)
	assert.True(t, out.Indexing)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.LastFullReindex)
	assert.Equal(t, 3, out.Queued)
	assert.Equal(t, BackendStats{Notes: 4, Chunks: 12}, out.Backends["lexical"])
	require.NotNil(t, out.Progress)
	assert.Equal(t, 4, out.Progress.NotesProcessed)
	assert.Equal(t, EmbeddingInfo{Enabled: true, Model: "nomic-embed-text", Dimensions: 768, Breaker: "closed"}, out.Embeddings)

	md := FormatStatus(out)
	assert.Contains(t, md, "40.0% (4/10 notes)")
	assert.Contains(t, md, "nomic-embed-text")
}

func TestCallTool_IndexStatus_NoEmbedder(t *testing.T) {
	s := newTestServer(t, &mockIndex{}, Options{})

	got, err := s.CallTool(context.Background(), "index_status", nil)

	require.NoError(t, err)
	out := got.(*IndexStatusOutput)
	assert.False(t, out.Embeddings.Enabled)
	assert.Empty(t, out.LastFullReindex)
	assert.Nil(t, out.Progress)
	assert.Contains(t, FormatStatus(out), "lexical search only")
}

func TestCallTool_ReindexNotes(t *testing.T) {
	notes := []index.Note{{ID: "a.md", Text: "alpha"}, {ID: "b.md", Text: "beta"}}

	t.Run("started", func(t *testing.T) {
		idx := &mockIndex{fullResult: true}
		s := newTestServer(t, idx, Options{Notes: mockLister{notes: notes}})

		got, err := s.CallTool(context.Background(), "reindex_notes", nil)

		require.NoError(t, err)
		assert.Equal(t, ReindexNotesOutput{Started: true, Notes: 2}, got)
		assert.Equal(t, notes, idx.fullNotes)
	})

	t.Run("refused", func(t *testing.T) {
		s := newTestServer(t, &mockIndex{fullResult: false}, Options{Notes: mockLister{notes: notes}})

		got, err := s.CallTool(context.Background(), "reindex_notes", nil)

		require.NoError(t, err)
		out := got.(ReindexNotesOutput)
		assert.False(t, out.Started)
		assert.NotEmpty(t, out.Reason)
	})

	t.Run("no notes directory", func(t *testing.T) {
		s := newTestServer(t, &mockIndex{}, Options{})

		_, err := s.CallTool(context.Background(), "reindex_notes", nil)

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
		assert.Contains(t, mcpErr.Message, "notes.root")
	})

	t.Run("list fails", func(t *testing.T) {
		s := newTestServer(t, &mockIndex{}, Options{Notes: mockLister{err: errors.New("disk gone")}})

		_, err := s.CallTool(context.Background(), "reindex_notes", nil)

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Contains(t, mcpErr.Message, "could not list notes")
	})
}

func TestServer_OverInMemoryTransport(t *testing.T) {
	// Given: a server and a client connected in memory
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idx := &mockIndex{hits: sampleHits}
	s := newTestServer(t, idx, Options{})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	// When: listing tools
	list, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)

	// Then: every tool is advertised
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_notes", "index_status", "reindex_notes"}, names)

	// When: calling search_notes
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_notes",
		Arguments: map[string]any{"query": "garden", "limit": 5},
	})
	require.NoError(t, err)

	// Then: markdown content and the query reach the index
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "journal.md")
	assert.Equal(t, 5, idx.lastLimit)

	// When: calling with a blank query
	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_notes",
		Arguments: map[string]any{"query": " "},
	})

	// Then: the tool reports an error result
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServe_UnknownTransport(t *testing.T) {
	s := newTestServer(t, &mockIndex{}, Options{})

	err := s.Serve(context.Background(), "sse")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
