package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Expiry(t *testing.T) {
	c := New[string, int](time.Minute)
	defer c.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.purge()
	assert.Zero(t, c.Len())
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[int64, string](time.Minute)
	defer c.Stop()

	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "ada", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), 1, load)
		require.NoError(t, err)
		assert.Equal(t, "ada", v)
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := c.GetOrLoad(context.Background(), 2, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(2)
	assert.False(t, ok, "errors are not cached")

	c.Delete(1)
	_, err = c.GetOrLoad(context.Background(), 1, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCache_StopTwice(t *testing.T) {
	c := New[string, int](time.Millisecond)
	c.Stop()
	c.Stop()
}
