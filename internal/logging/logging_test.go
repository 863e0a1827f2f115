package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	t.Run("nil logger leaves context untouched", func(t *testing.T) {
		base := context.Background()
		assert.Equal(t, base, ContextWithLogger(base, nil))
		assert.Nil(t, FromContext(base))
	})
}

func TestResolve(t *testing.T) {
	fromCtx := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	ctx := ContextWithLogger(context.Background(), fromCtx)
	assert.Same(t, fromCtx, Resolve(ctx, fallback))
	assert.Same(t, fallback, Resolve(context.Background(), fallback))

	def := Resolve(context.Background(), nil)
	require.NotNil(t, def)
	assert.Same(t, slog.Default(), def)
}
