// Package scheduler triggers sync passes on an interval and on
// connectivity regained.
package scheduler

import (
	"context"
	"time"

	"github.com/openbursar/feesync/internal/connectivity"
	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/logging"
	syncengine "github.com/openbursar/feesync/internal/sync"
)

// Syncer runs one outbox drain. Satisfied by the sync engine.
type Syncer interface {
	Sync(ctx context.Context) (*syncengine.Result, error)
}

// Scheduler owns the background sync loop. Passes fire on a fixed interval
// while online, immediately when connectivity comes back, and on demand via
// Wake. The engine's single-flight guard absorbs overlapping triggers.
type Scheduler struct {
	engine   Syncer
	monitor  *connectivity.Monitor
	interval time.Duration
	log      *logging.Logger

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates a Scheduler. interval is how often to attempt a pass while
// online.
func New(engine Syncer, monitor *connectivity.Monitor, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		monitor:  monitor,
		interval: interval,
		log:      logging.Get(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. It returns immediately; Stop shuts
// the loop down.
func (s *Scheduler) Start(ctx context.Context) {
	events := s.monitor.Subscribe()
	go s.watchConnectivity(events)
	go s.loop(ctx)
	s.log.Info("sync scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
	})
}

// Wake requests a pass outside the regular interval, e.g. right after a
// local mutation. Coalesces with any trigger already queued.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop shuts the loop down and waits for it to exit. Any pass already
// running finishes on its own.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			s.run(ctx)
		case <-s.wake:
			if !s.monitor.IsOnline() {
				continue
			}
			s.run(ctx)
		}
	}
}

// watchConnectivity wakes the loop whenever the monitor flips to online so
// queued work drains without waiting out the interval.
func (s *Scheduler) watchConnectivity(events <-chan bool) {
	for {
		select {
		case <-s.stop:
			return
		case online := <-events:
			if online {
				s.Wake()
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	_, err := s.engine.Sync(ctx)
	if err == nil {
		return
	}
	if apperrors.Is(err, apperrors.ErrSyncInProgress) {
		s.log.Debug("pass already in flight, trigger skipped")
		return
	}
	s.log.Error("scheduled sync pass failed", err)
}
