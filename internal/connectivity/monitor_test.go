package connectivity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitialStateIsOnline(t *testing.T) {
	m := NewMonitor(10 * time.Millisecond)
	assert.True(t, m.IsOnline())
}

func TestNetworkEventIsDebounced(t *testing.T) {
	m := NewMonitor(30 * time.Millisecond)

	m.SetNetworkState(false)
	assert.True(t, m.IsOnline(), "transition must not apply before the debounce window")

	assert.Eventually(t, func() bool { return !m.IsOnline() },
		time.Second, 5*time.Millisecond)
}

func TestFlappingEventsCancelEachOtherOut(t *testing.T) {
	m := NewMonitor(50 * time.Millisecond)

	m.SetNetworkState(false)
	time.Sleep(10 * time.Millisecond)
	// Back to the current state before the window elapsed: no transition.
	m.SetNetworkState(true)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, m.IsOnline())
}

func TestRequestOutcomeAppliesImmediately(t *testing.T) {
	m := NewMonitor(time.Hour)

	m.ReportOutcome(false)
	assert.False(t, m.IsOnline())

	m.ReportOutcome(true)
	assert.True(t, m.IsOnline())
}

func TestRequestOutcomeOverridesPendingNetworkEvent(t *testing.T) {
	m := NewMonitor(50 * time.Millisecond)

	m.ReportOutcome(false)
	// The interface claims it is back, but a request just failed.
	m.SetNetworkState(true)
	m.ReportOutcome(false)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, m.IsOnline(), "request outcome must cancel the pending network event")
}

func TestSubscribersSeeTransitions(t *testing.T) {
	m := NewMonitor(time.Millisecond)
	events := m.Subscribe()

	m.ReportOutcome(false)
	select {
	case online := <-events:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("Expected a transition notification")
	}

	// Repeating the same state is not a transition.
	m.ReportOutcome(false)
	select {
	case <-events:
		t.Fatal("Expected no notification for a repeated state")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSlowSubscriberGetsLatestState(t *testing.T) {
	m := NewMonitor(time.Millisecond)
	events := m.Subscribe()

	m.ReportOutcome(false)
	m.ReportOutcome(true)

	// The buffer holds one value; it must be the most recent one.
	select {
	case online := <-events:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("Expected a notification")
	}
}
