package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType names an Embedder implementation.
type ProviderType string

const (
	// ProviderStatic is the hash embedder (default, no external service).
	ProviderStatic ProviderType = "static"
	// ProviderOllama calls a local Ollama server.
	ProviderOllama ProviderType = "ollama"
	// ProviderOpenAI calls an OpenAI-compatible API.
	ProviderOpenAI ProviderType = "openai"
	// ProviderNone disables embeddings; search is lexical only.
	ProviderNone ProviderType = "none"
)

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Dimensions int

	// CacheSize is the LRU size; 0 uses the default, negative disables
	// caching.
	CacheSize int

	// FallbackToStatic swaps an unreachable ollama embedder for the static
	// one at startup.
	FallbackToStatic bool

	Ollama OllamaConfig
	OpenAI OpenAIConfig
}

// ParseProvider converts a string to a ProviderType. Unknown values map to
// ProviderStatic.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return ProviderOllama
	case "openai":
		return ProviderOpenAI
	case "none", "off", "disabled":
		return ProviderNone
	default:
		return ProviderStatic
	}
}

// ValidProviders lists accepted provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama), string(ProviderOpenAI), string(ProviderNone)}
}

// IsValidProvider reports whether s names a provider.
func IsValidProvider(s string) bool {
	for _, p := range ValidProviders() {
		if strings.EqualFold(strings.TrimSpace(s), p) {
			return true
		}
	}
	return false
}

// NewEmbedder builds the configured embedder wrapped in an LRU cache.
// ProviderNone returns (nil, nil).
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultDimensions
	}

	var inner Embedder
	switch opts.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderStatic, "":
		inner = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		cfg := opts.Ollama
		cfg.Dimensions = opts.Dimensions
		ollama := NewOllamaEmbedder(cfg)
		if opts.FallbackToStatic && !ollama.Available(ctx) {
			slog.Warn("embedder_fallback",
				slog.String("from", string(ProviderOllama)),
				slog.String("to", string(ProviderStatic)),
				slog.String("model", ollama.ModelName()))
			_ = ollama.Close()
			inner = NewStaticEmbedder(opts.Dimensions)
		} else {
			inner = ollama
		}
	case ProviderOpenAI:
		cfg := opts.OpenAI
		cfg.Dimensions = opts.Dimensions
		inner = NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: %s)",
			opts.Provider, strings.Join(ValidProviders(), ", "))
	}

	if opts.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, opts.CacheSize), nil
}
