// Package connectivity tracks the online/offline state from two signals:
// host network events and the outcome of real sync requests. The request
// outcome wins when the two disagree: a host that reports "online" behind
// a captive portal burns the retry budget for nothing.
package connectivity

import (
	"sync"
	"time"

	"github.com/openbursar/feesync/internal/logging"
)

// Monitor debounces network events and folds in request outcomes.
type Monitor struct {
	mu       sync.Mutex
	online   bool
	debounce time.Duration
	pending  *time.Timer
	subs     []chan bool
}

// NewMonitor creates a Monitor. The initial state is online: the first
// failed request will flip it if that turns out to be wrong.
func NewMonitor(debounce time.Duration) *Monitor {
	return &Monitor{
		online:   true,
		debounce: debounce,
	}
}

// IsOnline returns the current belief about connectivity.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving state transitions. The channel is
// buffered; a slow consumer misses intermediate flips, not the final state.
func (m *Monitor) Subscribe() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan bool, 1)
	m.subs = append(m.subs, ch)
	return ch
}

// SetNetworkState feeds a host/browser connectivity event. Transitions are
// debounced so a flapping interface doesn't thrash the sync engine.
func (m *Monitor) SetNetworkState(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if online == m.online {
		m.cancelPendingLocked()
		return
	}

	// Re-arm the timer: only a state that holds for the full debounce
	// window is applied.
	m.cancelPendingLocked()
	m.pending = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.pending = nil
		m.setLocked(online, "network_event")
	})
}

// ReportOutcome feeds the result of a real sync request. This signal is
// authoritative and applies immediately, overriding any pending network
// event.
func (m *Monitor) ReportOutcome(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelPendingLocked()
	m.setLocked(success, "request_outcome")
}

func (m *Monitor) cancelPendingLocked() {
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}

func (m *Monitor) setLocked(online bool, source string) {
	if online == m.online {
		return
	}
	m.online = online

	logging.Info("Connectivity changed", map[string]interface{}{
		"online": online,
		"source": source,
	})

	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			// Drop the stale value so the latest state lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
