package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBegin(t *testing.T) {
	ctx := Begin(context.Background())
	assert.Equal(t, ctx, Begin(ctx))

	WithValue(ctx, "k", "v")
	assert.Equal(t, "v", Value(ctx, "k"))

	SetRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestWithoutBegin(t *testing.T) {
	ctx := context.Background()
	WithValue(ctx, "k", "v")
	assert.Nil(t, Value(ctx, "k"))
	assert.Empty(t, RequestID(ctx))
}
