package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_DeterministicForSameText(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_DifferentTextDifferentVector(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "alpha beta gamma")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "completely unrelated text about zebras")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_EmptyTextReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	for _, v := range vec {
		assert.Equal(t, float32(0), v)
	}
}

func TestStaticEmbedder_VectorIsNormalized(t *testing.T) {
	e := NewStaticEmbedder()
	vec, err := e.Embed(context.Background(), "some reasonably long piece of text to embed")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSquares, 0.001)
}

func TestStaticEmbedder_EmbedBatch_MatchesIndividualEmbed(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()
	texts := []string{"one", "two", "three"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedder_EmbedBatch_EmptyInput(t *testing.T) {
	e := NewStaticEmbedder()
	batch, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestStaticEmbedder_Dimensions(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestStaticEmbedder_ModelName(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, "static", e.ModelName())
}

func TestStaticEmbedder_CloseMakesUnavailable(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	assert.True(t, e.Available(ctx))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))

	_, err := e.Embed(ctx, "anything")
	assert.Error(t, err)
}

func TestSplitCamelCase(t *testing.T) {
	assert.Equal(t, []string{"get", "File", "Name"}, splitCamelCase("getFileName"))
	assert.Equal(t, []string{}, splitCamelCase(""))
}

func TestSplitCodeToken_SnakeCase(t *testing.T) {
	assert.Equal(t, []string{"get", "file", "name"}, splitCodeToken("get_file_name"))
}

func TestGenerateVector_RepeatedTermGetsDampenedNotLinearWeight(t *testing.T) {
	e := NewStaticEmbedder()

	oneOccurrence := e.generateVector("zebra")
	fiveOccurrences := e.generateVector("zebra zebra zebra zebra zebra")

	idx := hashToIndex("zebra", StaticDimensions)
	require.Greater(t, fiveOccurrences[idx], oneOccurrence[idx])
	// Linear scaling would put this at 5x; log1p dampening keeps it well under.
	assert.Less(t, fiveOccurrences[idx], oneOccurrence[idx]*5)
}

func TestGenerateVector_AdjacentTokensContributeABigramFeature(t *testing.T) {
	e := NewStaticEmbedder()

	sameWords := e.generateVector("alpha beta")
	reordered := e.generateVector("beta alpha")

	assert.NotEqual(t, sameWords, reordered, "word order should affect the bigram features")
}
