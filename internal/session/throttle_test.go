package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottleFirstRequestFiresImmediately(t *testing.T) {
	var fires atomic.Int64
	th := newRenderThrottle(50*time.Millisecond, func() { fires.Add(1) })
	defer th.Stop()

	th.Request()
	require.Equal(t, int64(1), fires.Load())
}

func TestThrottleCoalescesBurstWithTrailingFire(t *testing.T) {
	var fires atomic.Int64
	th := newRenderThrottle(30*time.Millisecond, func() { fires.Add(1) })
	defer th.Stop()

	for i := 0; i < 10; i++ {
		th.Request()
	}
	// Immediate fire plus exactly one scheduled trailing fire.
	require.Equal(t, int64(1), fires.Load())
	require.Eventually(t, func() bool {
		return fires.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestThrottleStopCancelsScheduledFire(t *testing.T) {
	var fires atomic.Int64
	th := newRenderThrottle(30*time.Millisecond, func() { fires.Add(1) })

	th.Request()
	th.Request()
	th.Stop()
	th.Request()

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int64(1), fires.Load())
}
