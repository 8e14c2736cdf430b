package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	na, nb := Normalize(a), Normalize(b)
	var sum float64
	for i := range na {
		sum += float64(na[i]) * float64(nb[i])
	}
	return sum
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Quarterly budget review")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Quarterly budget review")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
}

func TestStaticEmbedder_SimilarTextIsCloser(t *testing.T) {
	e := NewStaticEmbedder(256)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "buy milk")
	related, _ := e.Embed(ctx, "remember to buy milk and eggs")
	unrelated, _ := e.Embed(ctx, "quarterly budget review meeting")

	assert.Greater(t, cosine(query, related), cosine(query, unrelated))
}

func TestStaticEmbedder_BlankTextIsZero(t *testing.T) {
	e := NewStaticEmbedder(0)
	vec, err := e.Embed(context.Background(), "   \n")
	require.NoError(t, err)
	assert.Len(t, vec, DefaultDimensions)
	for _, x := range vec {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder(16)
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestTrigrams_CountsRunes(t *testing.T) {
	assert.Equal(t, []string{"caf", "afé"}, trigrams("Café"))
	assert.Empty(t, trigrams("ab"))
}
