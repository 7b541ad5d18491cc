package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalThrottle(t *testing.T) {
	ctx := context.Background()
	th := NewLocalThrottle(2)

	for i := 0; i < 2; i++ {
		ok, err := th.Allow(ctx, "U1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := th.Allow(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = th.Allow(ctx, "U2")
	require.NoError(t, err)
	assert.True(t, ok, "limits are per key")

	unlimited := NewLocalThrottle(0)
	for i := 0; i < 100; i++ {
		ok, _ := unlimited.Allow(ctx, "U1")
		require.True(t, ok)
	}
}

func TestLocalThrottle_SweepsIdleKeysOnInterval(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th := NewLocalThrottle(5)
	th.now = func() time.Time { return now }

	_, err := th.Allow(ctx, "idle")
	require.NoError(t, err)
	sweptAt := th.lastSweep

	now = now.Add(30 * time.Second)
	_, err = th.Allow(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, sweptAt, th.lastSweep, "no sweep inside the interval")
	assert.Len(t, th.limiters, 2)

	now = now.Add(localIdleTTL)
	_, err = th.Allow(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, now, th.lastSweep)
	assert.NotContains(t, th.limiters, "idle")
	assert.Contains(t, th.limiters, "busy")
}
