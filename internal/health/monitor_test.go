package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorStartsHealthy(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, StateHealthy, m.State())
	assert.True(t, m.Allow())
}

func TestMonitorDegradedAfterSomeFailures(t *testing.T) {
	m := NewMonitor()

	m.RecordFailure(errors.New("timeout"))
	assert.Equal(t, StateHealthy, m.State(), "one failure is tolerated")

	m.RecordFailure(errors.New("timeout"))
	assert.Equal(t, StateDegraded, m.State())
	assert.True(t, m.Allow(), "degraded still allows calls")
}

func TestMonitorOpensAtThreshold(t *testing.T) {
	m := NewMonitor()

	for i := 0; i < DefaultOpenThreshold; i++ {
		assert.True(t, m.Allow())
		m.RecordFailure(errors.New("refused"))
	}

	assert.Equal(t, StateUnavailable, m.State())
	assert.False(t, m.Allow())

	snap := m.Snapshot()
	assert.True(t, snap.CircuitOpen)
	assert.Equal(t, DefaultOpenThreshold, snap.ConsecutiveFailures)
	assert.Equal(t, "refused", snap.LastError)
}

func TestMonitorSuccessResets(t *testing.T) {
	m := NewMonitor()

	m.RecordFailure(errors.New("x"))
	m.RecordFailure(errors.New("x"))
	m.RecordSuccess()

	assert.Equal(t, StateHealthy, m.State())
	assert.Empty(t, m.Snapshot().LastError)
}

func TestMonitorHalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewMonitor(WithResetTimeout(300*time.Second), withClock(clock))

	for i := 0; i < DefaultOpenThreshold; i++ {
		m.RecordFailure(errors.New("down"))
	}
	assert.False(t, m.Allow())

	// Before cooldown: still closed to callers.
	now = now.Add(299 * time.Second)
	assert.False(t, m.Allow())

	// After cooldown: exactly one trial call allowed.
	now = now.Add(2 * time.Second)
	assert.True(t, m.Allow(), "first call after cooldown is the trial")
	assert.False(t, m.Allow(), "only one trial until outcome recorded")

	// Trial succeeds: circuit closes.
	m.RecordSuccess()
	assert.Equal(t, StateHealthy, m.State())
	assert.True(t, m.Allow())
}

func TestMonitorFailedTrialRestartsCooldown(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewMonitor(WithResetTimeout(300*time.Second), withClock(clock))

	for i := 0; i < DefaultOpenThreshold; i++ {
		m.RecordFailure(errors.New("down"))
	}

	now = now.Add(301 * time.Second)
	assert.True(t, m.Allow())
	m.RecordFailure(errors.New("still down"))

	// Cooldown restarted: no trial until another full window passes.
	now = now.Add(150 * time.Second)
	assert.False(t, m.Allow())
	now = now.Add(151 * time.Second)
	assert.True(t, m.Allow())
}

func TestMonitorCustomThreshold(t *testing.T) {
	m := NewMonitor(WithOpenThreshold(2))
	m.RecordFailure(nil)
	assert.True(t, m.Allow())
	m.RecordFailure(nil)
	assert.False(t, m.Allow())
}
