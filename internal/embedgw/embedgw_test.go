package embedgw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/engerr"
)

func TestSelectBatchSize(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{5, 5}, {10, 10}, {11, 32}, {100, 32}, {101, 64}, {1000, 64}, {1001, 128},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, selectBatchSize(c.n))
	}
}

func TestGatewayEmbedEmptyText(t *testing.T) {
	g := New(NewDeterministic(8, true, 1), 10)
	_, err := g.Embed(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, engerr.Is(err, engerr.InvalidInput))
}

func TestGatewayEmbedIsCached(t *testing.T) {
	inner := &countingEmbedder{Deterministic: NewDeterministic(8, true, 7)}
	g := New(inner, 10)
	ctx := context.Background()
	v1, err := g.Embed(ctx, "hello world")
	require.NoError(t, err)
	v2, err := g.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
}

func TestGatewayEmbedBatchEquivalentToElementwise(t *testing.T) {
	inner := NewDeterministic(16, true, 42)
	g := New(inner, 100)
	ctx := context.Background()
	texts := []string{"alpha", "beta", "gamma"}
	batch, err := g.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	for i, text := range texts {
		single, err := inner.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestGatewayEmbedBatchRejectsEmpty(t *testing.T) {
	g := New(NewDeterministic(8, true, 1), 10)
	_, err := g.EmbedBatch(context.Background(), []string{"ok", ""})
	require.Error(t, err)
	assert.True(t, engerr.Is(err, engerr.InvalidInput))
}

type countingEmbedder struct {
	*Deterministic
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.Deterministic.Embed(ctx, text)
}

func TestWindowMultiSingleWindowForShortText(t *testing.T) {
	w := NewWindowMulti(NewDeterministic(32, true, 0), 4, 2)
	vecs, err := w.EmbedMulti(context.Background(), "short query")
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], 32)
}

func TestWindowMultiOverlappingWindows(t *testing.T) {
	w := NewWindowMulti(NewDeterministic(32, true, 0), 4, 2)
	// 10 words: full text plus windows starting at 0, 2, 4, and 6 (the
	// last reaching the end).
	vecs, err := w.EmbedMulti(context.Background(), "one two three four five six seven eight nine ten")
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		assert.Len(t, v, 32)
	}
}

func TestWindowMultiRejectsEmptyText(t *testing.T) {
	w := NewWindowMulti(NewDeterministic(32, true, 0), 0, 0)
	_, err := w.EmbedMulti(context.Background(), "   ")
	require.Error(t, err)
}
