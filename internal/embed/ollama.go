package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a small general-purpose text embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaPoolSize is the HTTP connection pool size.
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string `yaml:"host"`

	Model string `yaml:"model"`

	// Dimensions is passed to models that support output truncation and
	// checked by Provider. 0 selects DefaultDimensions.
	Dimensions int `yaml:"-"`

	// BatchSize is the number of texts per request (default: 32).
	BatchSize int `yaml:"batch_size"`

	// Timeout bounds each request attempt (default: 60s).
	Timeout time.Duration `yaml:"timeout"`

	Retry amerrors.RetryConfig `yaml:"-"`
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
	Truncate   bool     `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaEmbedder creates the embedder. It does not contact Ollama;
// an unreachable server surfaces as failed embeddings, not a startup error.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = amerrors.DefaultRetryConfig()
	}

	// Per-request deadlines come from context.WithTimeout, so the client
	// itself has no Timeout.
	transport := &http.Transport{
		MaxIdleConns:        OllamaPoolSize,
		MaxIdleConnsPerHost: OllamaPoolSize,
		MaxConnsPerHost:     OllamaPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch splits texts into BatchSize requests, each retried with
// backoff on network errors and 5xx responses.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[start:end]
		vecs, err := amerrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
			return e.doEmbed(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{
		Model:      e.config.Model,
		Input:      texts,
		Dimensions: e.config.Dimensions,
		Truncate:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeEmbedderUnavailable, "failed to reach Ollama", err).
			WithSuggestion("Start Ollama with 'ollama serve' or switch embeddings.provider to static")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "ollama server error", err)
		}
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "ollama rejected the request", err).
			WithDetail("model", e.config.Model).
			WithSuggestion(fmt.Sprintf("Pull the model with 'ollama pull %s'", e.config.Model))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "failed to decode ollama response", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(out.Embeddings), len(texts)), nil)
	}

	slog.Debug("ollama_embed_complete",
		slog.String("model", e.config.Model),
		slog.Int("texts", len(texts)))
	return out.Embeddings, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Available reports whether Ollama answers and lists the configured model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return true
		}
	}
	return false
}

func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
