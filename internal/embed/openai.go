package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
)

// DefaultOpenAIModel is the default OpenAI embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	// BaseURL points at any OpenAI-compatible API. Empty uses api.openai.com.
	BaseURL string `yaml:"base_url"`

	// APIKey is usually supplied through OPENAI_API_KEY.
	APIKey string `yaml:"-"`

	Model      string `yaml:"model"`
	Dimensions int    `yaml:"-"`
	BatchSize  int    `yaml:"batch_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// OpenAIEmbedder calls the /embeddings endpoint through openai-go.
type OpenAIEmbedder struct {
	client openai.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates the embedder. openai-go retries transient
// failures itself, up to MaxRetries times.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
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
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	opts := []option.RequestOption{
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(DefaultTimeout),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		config: cfg,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
		vecs, err := e.doEmbed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: openai.Int(int64(e.config.Dimensions)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "embedding request rejected", err).
				WithDetail("model", e.config.Model)
		}
		return nil, amerrors.New(amerrors.ErrCodeEmbedderUnavailable, "embedding request failed", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }

// Available does not probe the API; it only reports whether the embedder
// is open.
func (e *OpenAIEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
