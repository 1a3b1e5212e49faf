package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_ResolveCurrent(t *testing.T) {
	resolver := NewResolver("")
	assert.Equal(t, DefaultNamespace, resolver.Default())

	t.Run("falls back to default when nothing is bound", func(t *testing.T) {
		assert.Equal(t, "public", resolver.ResolveCurrent(context.Background()))

		ctx, release := Begin(context.Background(), nil)
		defer release()
		assert.Equal(t, "public", resolver.ResolveCurrent(ctx))
	})

	t.Run("returns the bound tenant", func(t *testing.T) {
		ctx, release := Begin(context.Background(), nil)
		defer release()
		require.NoError(t, Bind(ctx, "t_acme"))

		assert.Equal(t, "t_acme", resolver.ResolveCurrent(ctx))
	})

	t.Run("re-reads the binding on every call", func(t *testing.T) {
		ctx, release := Begin(context.Background(), nil)
		require.NoError(t, Bind(ctx, "t_acme"))
		assert.Equal(t, "t_acme", resolver.ResolveCurrent(ctx))

		require.NoError(t, Bind(ctx, "t_beta"))
		assert.Equal(t, "t_beta", resolver.ResolveCurrent(ctx))

		release()
		assert.Equal(t, "public", resolver.ResolveCurrent(ctx))
	})
}

func TestResolver_IsRoot(t *testing.T) {
	resolver := NewResolver("shared")

	assert.True(t, resolver.IsRoot("shared"))
	assert.False(t, resolver.IsRoot("public"))
	assert.False(t, resolver.IsRoot("t_acme"))
}
