package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbedTexts_Deterministic(t *testing.T) {
	e := &LocalEmbedder{}
	a, err := e.EmbedTexts(context.Background(), []string{"postgres index tuning"})
	require.NoError(t, err)
	b, err := e.EmbedTexts(context.Background(), []string{"postgres index tuning"})
	require.NoError(t, err)
	require.Equal(t, a[0], b[0])
}

func TestEmbedTexts_DimensionAndNorm(t *testing.T) {
	e := &LocalEmbedder{}
	out, err := e.EmbedTexts(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], e.Dimension())

	var norm float64
	for _, v := range out[0] {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedTexts_SimilarTextsScoreHigher(t *testing.T) {
	e := &LocalEmbedder{}
	out, err := e.EmbedTexts(context.Background(), []string{
		"database index tuning tips",
		"tuning a database index",
		"favorite pasta recipes",
	})
	require.NoError(t, err)

	related := dot(out[0], out[1])
	unrelated := dot(out[0], out[2])
	require.Greater(t, related, unrelated)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
