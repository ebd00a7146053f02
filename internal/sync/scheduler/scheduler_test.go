package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openbursar/feesync/internal/connectivity"
	syncengine "github.com/openbursar/feesync/internal/sync"
)

// countingSyncer counts drain requests.
type countingSyncer struct {
	calls atomic.Int32
}

func (s *countingSyncer) Sync(ctx context.Context) (*syncengine.Result, error) {
	s.calls.Add(1)
	return &syncengine.Result{}, nil
}

func TestWakeTriggersPass(t *testing.T) {
	syncer := &countingSyncer{}
	monitor := connectivity.NewMonitor(time.Millisecond)
	sched := New(syncer, monitor, time.Hour)

	sched.Start(context.Background())
	defer sched.Stop()

	sched.Wake()
	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 1 },
		time.Second, 5*time.Millisecond)
}

func TestIntervalTriggersPasses(t *testing.T) {
	syncer := &countingSyncer{}
	monitor := connectivity.NewMonitor(time.Millisecond)
	sched := New(syncer, monitor, 10*time.Millisecond)

	sched.Start(context.Background())
	defer sched.Stop()

	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestOfflineSuppressesPasses(t *testing.T) {
	syncer := &countingSyncer{}
	monitor := connectivity.NewMonitor(time.Millisecond)
	monitor.ReportOutcome(false)

	sched := New(syncer, monitor, 10*time.Millisecond)
	sched.Start(context.Background())
	defer sched.Stop()

	sched.Wake()
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, syncer.calls.Load(), "offline triggers must be dropped")
}

func TestConnectivityRegainedWakesLoop(t *testing.T) {
	syncer := &countingSyncer{}
	monitor := connectivity.NewMonitor(time.Millisecond)
	monitor.ReportOutcome(false)

	sched := New(syncer, monitor, time.Hour)
	sched.Start(context.Background())
	defer sched.Stop()

	monitor.ReportOutcome(true)
	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 1 },
		time.Second, 5*time.Millisecond)
}

func TestStopHaltsLoop(t *testing.T) {
	syncer := &countingSyncer{}
	monitor := connectivity.NewMonitor(time.Millisecond)
	sched := New(syncer, monitor, 10*time.Millisecond)

	sched.Start(context.Background())
	sched.Stop()

	before := syncer.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, syncer.calls.Load(), "no passes after Stop")
}
