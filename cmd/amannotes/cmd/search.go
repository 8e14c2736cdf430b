package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
	"github.com/Aman-CERP/amannotes/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit   int
	natural bool
	format  string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed notes",
		Long: `Search the indexed notes.

The query is split into words on anything that is not a letter or digit.
A note matches if it contains any of the words, and words of three or
more letters also match as prefixes ("tomat" finds "tomatoes"). Hits are
ranked by relevance.

With --natural the text is treated as a question: it is reduced to the
same words before searching, so the lexical results are identical and
only the text sent to the embedding model changes.

Examples:
  amannotes search "tomato seedlings"
  amannotes search budget 2026 --limit 5
  amannotes search --natural "what did I plant last spring"
  amannotes search garden --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0,
		fmt.Sprintf("Maximum number of results, 1-%d (default from index.default_limit)", index.MaxSearchLimit))
	cmd.Flags().BoolVar(&opts.natural, "natural", false, "Treat the query as natural language")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

// searchResultJSON is one hit in --format json output.
type searchResultJSON struct {
	NoteID string  `json:"note_id"`
	Chunk  string  `json:"chunk_id"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return amerrors.New(amerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if opts.limit < 0 || opts.limit > index.MaxSearchLimit {
		return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("limit %d out of range", opts.limit), nil).
			WithSuggestion(fmt.Sprintf("Use --limit between 1 and %d", index.MaxSearchLimit))
	}
	if opts.format != "text" && opts.format != "json" {
		return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown format %q", opts.format), nil).
			WithSuggestion("Use --format text or --format json")
	}

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var hits []index.SearchHit
	if opts.natural {
		hits = a.coord.SearchNatural(ctx, query, opts.limit)
	} else {
		hits = a.coord.Search(ctx, query, opts.limit)
	}

	if opts.format == "json" {
		results := make([]searchResultJSON, 0, len(hits))
		for _, h := range hits {
			results = append(results, searchResultJSON{
				NoteID: h.NoteID,
				Chunk:  h.ID,
				Text:   h.ChunkText,
				Score:  h.Score,
				Source: string(h.Source),
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	output.New(cmd.OutOrStdout()).SearchResults(query, hits)
	return nil
}
