package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
)

type handlers struct {
	deps Deps
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Query string            `json:"query"`
	Limit int               `json:"limit"`
	Hits  []index.SearchHit `json:"hits"`
}

// NoteResponse acknowledges a queued note mutation.
type NoteResponse struct {
	NoteID string `json:"note_id"`
	Status string `json:"status"`
}

// ReindexRequest is the optional body of POST /reindex.
type ReindexRequest struct {
	Notes []index.Note `json:"notes"`
}

// ReindexResponse reports whether a full reindex was started.
type ReindexResponse struct {
	Started bool   `json:"started"`
	Notes   int    `json:"notes"`
	Reason  string `json:"reason,omitempty"`
}

type noteBody struct {
	Text string `json:"text"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   h.deps.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Index.Status(r.Context()))
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest,
			amerrors.New(amerrors.ErrCodeQueryEmpty, "query parameter q is required", nil))
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > index.MaxSearchLimit {
			writeError(w, http.StatusBadRequest,
				amerrors.New(amerrors.ErrCodeInvalidInput,
					fmt.Sprintf("limit must be an integer between 1 and %d", index.MaxSearchLimit), err))
			return
		}
		limit = n
	}

	natural, _ := strconv.ParseBool(q.Get("natural"))
	var hits []index.SearchHit
	if natural {
		hits = h.deps.Index.SearchNatural(r.Context(), query, limit)
	} else {
		hits = h.deps.Index.Search(r.Context(), query, limit)
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Limit: limit, Hits: hits})
}

func (h *handlers) putNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	text, err := readNoteText(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.deps.Index.Reindex(id, text)
	writeJSON(w, http.StatusAccepted, NoteResponse{NoteID: id, Status: "queued"})
}

func (h *handlers) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	h.deps.Index.Delete(id)
	writeJSON(w, http.StatusAccepted, NoteResponse{NoteID: id, Status: "queued"})
}

func (h *handlers) reindexAll(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge,
			amerrors.New(amerrors.ErrCodeInvalidInput, "request body too large", err))
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest,
				amerrors.New(amerrors.ErrCodeInvalidInput, "invalid JSON body", err))
			return
		}
	}

	notes := req.Notes
	if notes == nil {
		if h.deps.Notes == nil {
			writeError(w, http.StatusBadRequest,
				amerrors.New(amerrors.ErrCodeInvalidInput, "no note source configured", nil).
					WithSuggestion(`Send the notes as {"notes": [{"id": "...", "text": "..."}]}`))
			return
		}
		notes, err = h.deps.Notes.List(r.Context())
		if err != nil {
			slog.Error("list_notes_failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError,
				amerrors.New(amerrors.ErrCodeIndexFailed, "could not list notes", err))
			return
		}
	}

	if !h.deps.Index.ReindexAll(r.Context(), notes) {
		writeJSON(w, http.StatusConflict, ReindexResponse{
			Started: false,
			Notes:   len(notes),
			Reason:  "a full reindex is running or ran within the cooldown",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, ReindexResponse{Started: true, Notes: len(notes)})
}

func (h *handlers) dropAll(w http.ResponseWriter, r *http.Request) {
	h.deps.Index.DropAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
}

// noteID extracts and validates the wildcard note ID.
func noteID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "*")
	if err := index.ValidateNoteID(id); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

// readNoteText accepts a JSON {"text": ...} body or the raw text itself.
func readNoteText(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", amerrors.New(amerrors.ErrCodeInvalidInput, "note exceeds the size limit", err)
		}
		return "", amerrors.New(amerrors.ErrCodeInvalidInput, "could not read body", err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return string(body), nil
	}
	var nb noteBody
	if err := json.Unmarshal(body, &nb); err != nil {
		return "", amerrors.New(amerrors.ErrCodeInvalidInput, "invalid JSON body", err)
	}
	return nb.Text, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode_response_failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error(), Code: amerrors.GetCode(err)}
	var ce *amerrors.CodedError
	if errors.As(err, &ce) {
		resp.Error = ce.Message
		resp.Suggestion = ce.Suggestion
	}
	writeJSON(w, status, resp)
}
