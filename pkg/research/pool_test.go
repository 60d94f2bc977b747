package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBlocksWhenFull(t *testing.T) {
	p := NewPool(1)
	require.NoError(t, p.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Acquire(ctx))

	p.Release()
	assert.NoError(t, p.Acquire(context.Background()))
	p.Release()
}

func TestNewPoolDefaultSize(t *testing.T) {
	assert.Equal(t, defaultMaxConcurrent, NewPool(0).Size())
	assert.Equal(t, 7, NewPool(7).Size())
}
