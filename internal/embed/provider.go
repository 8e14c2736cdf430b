package embed

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
)

// normEpsilon keeps normalization finite for zero vectors.
const normEpsilon = 1e-12

// Provider produces unit-length embeddings of a fixed size from an
// Embedder, and reports "no embedding" instead of failing. A circuit
// breaker stops calling an embedder that keeps failing until its reset
// interval passes. Safe for concurrent use.
type Provider struct {
	embedder Embedder
	dims     int
	breaker  *amerrors.CircuitBreaker
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	breakerOpts []amerrors.CircuitBreakerOption
}

// WithBreakerOptions tunes the provider's circuit breaker.
func WithBreakerOptions(opts ...amerrors.CircuitBreakerOption) ProviderOption {
	return func(o *providerOptions) {
		o.breakerOpts = append(o.breakerOpts, opts...)
	}
}

// NewProvider wraps e. Vectors whose length is not dims are rejected.
// A nil embedder gives a provider that never produces embeddings.
func NewProvider(e Embedder, dims int, opts ...ProviderOption) *Provider {
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}
	breakerOpts := append([]amerrors.CircuitBreakerOption{
		amerrors.WithMaxFailures(5),
		amerrors.WithResetTimeout(30 * time.Second),
	}, o.breakerOpts...)

	return &Provider{
		embedder: e,
		dims:     dims,
		breaker:  amerrors.NewCircuitBreaker("embedder", breakerOpts...),
	}
}

// Dimensions returns the vector size the provider produces.
func (p *Provider) Dimensions() int { return p.dims }

// ModelName returns the embedder's model, or "" without one.
func (p *Provider) ModelName() string {
	if p.embedder == nil {
		return ""
	}
	return p.embedder.ModelName()
}

// Enabled reports whether an embedder is configured at all.
func (p *Provider) Enabled() bool { return p.embedder != nil && p.dims > 0 }

// BreakerState exposes the circuit state for status reporting.
func (p *Provider) BreakerState() amerrors.State { return p.breaker.State() }

// Embed returns the normalized embedding of text. ok is false when the
// embedder is missing, failing, returns nothing, or returns a vector of
// the wrong size.
func (p *Provider) Embed(ctx context.Context, text string) (vec []float32, ok bool) {
	if !p.Enabled() {
		return nil, false
	}

	raw, err := amerrors.CircuitExecute(p.breaker, func() ([]float32, error) {
		return p.embedder.Embed(ctx, text)
	})
	if err != nil {
		p.logFailure(err, 1)
		return nil, false
	}
	return p.finish(raw)
}

// EmbedBatch returns one entry per text; nil entries have no embedding.
// If the batch call fails each text is retried on its own.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if !p.Enabled() || len(texts) == 0 {
		return out
	}

	raws, err := amerrors.CircuitExecute(p.breaker, func() ([][]float32, error) {
		return p.embedder.EmbedBatch(ctx, texts)
	})
	if err == nil && len(raws) == len(texts) {
		for i, raw := range raws {
			out[i], _ = p.finish(raw)
		}
		return out
	}
	if err != nil {
		p.logFailure(err, len(texts))
		if errors.Is(err, amerrors.ErrCircuitOpen) {
			return out
		}
	}

	for i, text := range texts {
		if ctx.Err() != nil {
			break
		}
		out[i], _ = p.Embed(ctx, text)
	}
	return out
}

func (p *Provider) finish(raw []float32) ([]float32, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if len(raw) != p.dims {
		slog.Warn("embedding_dimension_mismatch",
			slog.String("model", p.embedder.ModelName()),
			slog.Int("expected", p.dims),
			slog.Int("got", len(raw)))
		return nil, false
	}
	return Normalize(raw), true
}

func (p *Provider) logFailure(err error, texts int) {
	if errors.Is(err, amerrors.ErrCircuitOpen) {
		slog.Debug("embedding_skipped_circuit_open", slog.Int("texts", texts))
		return
	}
	attrs := []any{slog.Int("texts", texts), slog.String("model", p.embedder.ModelName())}
	for _, a := range amerrors.LogAttrs(err) {
		attrs = append(attrs, a)
	}
	slog.Warn("embedding_failed", attrs...)
}

// Normalize returns v scaled to unit length. The norm is taken as
// sqrt(max(1e-12, sum of squares)), so a zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(math.Max(normEpsilon, sumSquares))

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Close closes the embedder.
func (p *Provider) Close() error {
	if p.embedder == nil {
		return nil
	}
	return p.embedder.Close()
}
