package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amannotes/internal/index"
)

// maxSnippetChars bounds the chunk text shown per hit in markdown.
const maxSnippetChars = 600

// FormatSearchResults formats note hits as markdown.
func FormatSearchResults(query string, hits []index.SearchHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No notes found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

func formatHit(sb *strings.Builder, num int, h index.SearchHit) {
	fmt.Fprintf(sb, "### %d. %s (%s, score: %.3f)\n\n", num, h.NoteID, h.Source, h.Score)
	sb.WriteString(snippet(h.ChunkText))
	sb.WriteString("\n\n---\n\n")
}

// snippet trims text to maxSnippetChars on a rune boundary.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxSnippetChars {
		return text
	}
	return string(runes[:maxSnippetChars]) + "..."
}

// FormatStatus renders an index status as markdown.
func FormatStatus(out *IndexStatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	if out.Root != "" {
		fmt.Fprintf(&sb, "**Notes root:** %s\n", out.Root)
	}
	fmt.Fprintf(&sb, "**Merge policy:** %s\n", out.MergePolicy)
	if out.Indexing && out.Progress != nil {
		fmt.Fprintf(&sb, "**Reindexing:** %.1f%% (%d/%d notes)\n",
			out.Progress.ProgressPct, out.Progress.NotesProcessed, out.Progress.NotesTotal)
	} else if out.LastFullReindex != "" {
		fmt.Fprintf(&sb, "**Last full reindex:** %s\n", out.LastFullReindex)
	}
	if out.Queued > 0 {
		fmt.Fprintf(&sb, "**Queued changes:** %d\n", out.Queued)
	}
	for _, name := range []string{"lexical", "vector"} {
		if st, ok := out.Backends[name]; ok {
			fmt.Fprintf(&sb, "**%s:** %d notes, %d chunks\n", name, st.Notes, st.Chunks)
		}
	}
	if out.Embeddings.Enabled {
		fmt.Fprintf(&sb, "**Embeddings:** %s (%d dims, breaker %s)\n",
			out.Embeddings.Model, out.Embeddings.Dimensions, out.Embeddings.Breaker)
	} else {
		sb.WriteString("**Embeddings:** disabled, lexical search only\n")
	}
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// toHitOutput converts a search hit to the structured output form.
func toHitOutput(h index.SearchHit) HitOutput {
	return HitOutput{
		NoteID:  h.NoteID,
		ChunkID: h.ID,
		Text:    h.ChunkText,
		Score:   h.Score,
		Source:  string(h.Source),
	}
}
