package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	l := NewKeyedLimiter(time.Hour, 1)

	assert.True(t, l.Allow("global_chat"))
	assert.False(t, l.Allow("global_chat"))
	assert.True(t, l.Allow("team-chat-1"))
}

func TestKeyedLimiterPruneKeepsDrainedBuckets(t *testing.T) {
	l := NewKeyedLimiter(time.Hour, 1)

	l.GetLimiter("idle")
	assert.True(t, l.Allow("busy"))

	removed := l.Prune()
	assert.Equal(t, 1, removed)
	assert.False(t, l.Allow("busy"))
}

func TestRunCleanupEvictsIdleKeysUntilCancelled(t *testing.T) {
	l := NewKeyedLimiter(time.Millisecond, 1)
	l.GetLimiter("idle-a")
	l.GetLimiter("idle-b")
	require.Equal(t, 2, l.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunCleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop after cancel")
	}
}
