package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
	"github.com/Aman-CERP/amannotes/pkg/version"
)

const (
	serverName = "amannotes"

	defaultLimit = 10
	maxLimit     = 50
)

// Index is the part of *index.Coordinator the tools drive.
type Index interface {
	Search(ctx context.Context, query string, limit int) []index.SearchHit
	SearchNatural(ctx context.Context, text string, limit int) []index.SearchHit
	ReindexAll(ctx context.Context, notes []index.Note) bool
	Status(ctx context.Context) index.Status
}

// NoteLister supplies notes for reindex_notes. *notes.Dir satisfies it.
type NoteLister interface {
	List(ctx context.Context) ([]index.Note, error)
}

// EmbedderInfo reports the active embedding provider. *embed.Provider
// satisfies it.
type EmbedderInfo interface {
	Enabled() bool
	ModelName() string
	Dimensions() int
	BreakerState() amerrors.State
}

// Options holds optional collaborators. Without Notes the reindex_notes
// tool reports an error.
type Options struct {
	Notes    NoteLister
	Embedder EmbedderInfo
	Root     string
}

// Server is the MCP server. It bridges AI clients with the note index.
type Server struct {
	mcp      *mcp.Server
	index    Index
	notes    NoteLister
	embedder EmbedderInfo
	root     string
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search_notes",
		Description: "Search the note index. Keyword queries support trailing * for prefixes. Set natural=true for free-text questions; punctuation is then ignored. Returns matching chunks with their note IDs.",
	},
	{
		Name:        "index_status",
		Description: "Report index contents, reindex progress and whether semantic (vector) search is available. Use before searching to check the index is complete.",
	},
	{
		Name:        "reindex_notes",
		Description: "Rebuild the whole index from the notes directory. Runs in the background and is refused while another full reindex runs or during the cooldown.",
	},
}

// NewServer creates a new MCP server over idx.
func NewServer(idx Index, opts Options) (*Server, error) {
	if idx == nil {
		return nil, errors.New("index is required")
	}

	s := &Server{
		index:    idx,
		notes:    opts.Notes,
		embedder: opts.Embedder,
		root:     opts.Root,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments. search_notes
// returns markdown, the other tools return their output structs.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_notes":
		var in SearchNotesInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, md, err := s.searchNotes(ctx, in)
		if err != nil {
			return nil, MapError(err)
		}
		return md, nil
	case "index_status":
		return s.indexStatus(ctx), nil
	case "reindex_notes":
		out, err := s.reindexNotes(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		return out, nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if len(args) == 0 {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) searchNotes(ctx context.Context, in SearchNotesInput) (SearchNotesOutput, string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchNotesOutput{}, "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)

	start := time.Now()
	requestID := generateRequestID()

	var hits []index.SearchHit
	if in.Natural {
		hits = s.index.SearchNatural(ctx, in.Query, limit)
	} else {
		hits = s.index.Search(ctx, in.Query, limit)
	}
	if err := ctx.Err(); err != nil {
		return SearchNotesOutput{}, "", err
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Int("limit", limit),
		slog.Bool("natural", in.Natural),
		slog.Int("result_count", len(hits)),
		slog.Duration("duration", time.Since(start)))

	out := SearchNotesOutput{Query: in.Query, Hits: make([]HitOutput, 0, len(hits))}
	for _, h := range hits {
		out.Hits = append(out.Hits, toHitOutput(h))
	}

	md := FormatSearchResults(in.Query, hits)
	if s.index.Status(ctx).Indexing {
		md = "_A full reindex is running; results may be incomplete._\n\n" + md
	}
	return out, md, nil
}

func (s *Server) indexStatus(ctx context.Context) *IndexStatusOutput {
	st := s.index.Status(ctx)

	out := &IndexStatusOutput{
		Root:        s.root,
		MergePolicy: string(st.MergePolicy),
		Indexing:    st.Indexing,
		Queued:      st.Queued,
		Backends:    make(map[string]BackendStats, len(st.Backends)),
	}
	if !st.LastFullReindexAt.IsZero() {
		out.LastFullReindex = st.LastFullReindexAt.UTC().Format(time.RFC3339)
	}
	for name, b := range st.Backends {
		out.Backends[name] = BackendStats{Notes: b.Notes, Chunks: b.Chunks}
	}
	if snap := st.Progress; snap != nil {
		out.Progress = &IndexingProgress{
			Status:         snap.Status,
			Stage:          snap.Stage,
			NotesTotal:     snap.NotesTotal,
			NotesProcessed: snap.NotesProcessed,
			NotesFailed:    snap.NotesFailed,
			ProgressPct:    snap.ProgressPct,
			ElapsedSeconds: snap.ElapsedSeconds,
			ErrorMessage:   snap.ErrorMessage,
		}
	}
	if s.embedder != nil && s.embedder.Enabled() {
		out.Embeddings = EmbeddingInfo{
			Enabled:    true,
			Model:      s.embedder.ModelName(),
			Dimensions: s.embedder.Dimensions(),
			Breaker:    s.embedder.BreakerState().String(),
		}
	}
	return out
}

func (s *Server) reindexNotes(ctx context.Context) (ReindexNotesOutput, error) {
	if s.notes == nil {
		return ReindexNotesOutput{}, amerrors.New(amerrors.ErrCodeConfigInvalid, "no notes directory configured", nil).
			WithSuggestion("Set notes.root in the config file.")
	}
	notes, err := s.notes.List(ctx)
	if err != nil {
		s.logger.Error("mcp_list_notes_failed", slog.String("error", err.Error()))
		return ReindexNotesOutput{}, amerrors.New(amerrors.ErrCodeIndexFailed, "could not list notes", err)
	}
	if !s.index.ReindexAll(ctx, notes) {
		return ReindexNotesOutput{
			Notes:  len(notes),
			Reason: "a full reindex is running or ran within the cooldown",
		}, nil
	}
	s.logger.Info("mcp_reindex_started", slog.Int("notes", len(notes)))
	return ReindexNotesOutput{Started: true, Notes: len(notes)}, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpReindexHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchNotesInput) (
	*mcp.CallToolResult,
	SearchNotesOutput,
	error,
) {
	out, md, err := s.searchNotes(ctx, input)
	if err != nil {
		return nil, SearchNotesOutput{}, MapError(err)
	}
	return textResult(md), out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out := s.indexStatus(ctx)
	return textResult(FormatStatus(out)), out, nil
}

func (s *Server) mcpReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ReindexNotesInput) (
	*mcp.CallToolResult,
	ReindexNotesOutput,
	error,
) {
	out, err := s.reindexNotes(ctx)
	if err != nil {
		return nil, ReindexNotesOutput{}, MapError(err)
	}
	return nil, out, nil
}

func textResult(md string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: md}}}
}

// HTTPHandler serves the tools over the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// Serve runs the server on the named transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
