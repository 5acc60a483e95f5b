package eventprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := newBreaker(3, 30*time.Second)
	require.True(t, b.Allow())

	b.RecordFailure()
	b.RecordFailure()
	require.True(t, b.Allow()) // still closed, 2 < 3
	b.RecordFailure()

	require.False(t, b.Allow())
	require.False(t, b.Healthy())
}

func TestBreakerHalfOpenAfterOpenDuration(t *testing.T) {
	now := time.Now()
	b := newBreaker(1, 10*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	require.False(t, b.Allow()) // just opened

	now = now.Add(11 * time.Second)
	require.True(t, b.Allow()) // half-open probe allowed
	require.False(t, b.Allow()) // second call while probe in flight is refused
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := newBreaker(1, 10*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(11 * time.Second)
	require.True(t, b.Allow())

	b.RecordFailure()
	require.False(t, b.Healthy())
	require.False(t, b.Allow())
}

func TestBreakerRecordSuccessResets(t *testing.T) {
	b := newBreaker(2, 30*time.Second)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	require.True(t, b.Allow()) // 1 < 2, never tripped
}
