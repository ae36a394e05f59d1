package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StaticModelName_ReturnsStaticEmbedder(t *testing.T) {
	e, err := New(context.Background(), "static", false, 0)
	require.NoError(t, err)
	assert.Equal(t, "static", e.ModelName())
	_, isCached := e.(*CachedEmbedder)
	assert.False(t, isCached)
}

func TestNew_EmptyModelName_DefaultsToStatic(t *testing.T) {
	e, err := New(context.Background(), "", false, 0)
	require.NoError(t, err)
	assert.Equal(t, "static", e.ModelName())
}

func TestNew_CacheModelsWrapsInCachedEmbedder(t *testing.T) {
	e, err := New(context.Background(), "static", true, 10)
	require.NoError(t, err)
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.Equal(t, "static", cached.ModelName())
}

func TestNew_UnknownModelName_AttemptsOllamaAndFails(t *testing.T) {
	_, err := New(context.Background(), "some-remote-model", false, 0)
	assert.Error(t, err)
}
