package session

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

type taskFunc func()

// scheduler runs child tasks for dispatched commands, bounded by a
// semaphore sized to the mailbox capacity. Every scheduled task either runs
// or has its cancel callback invoked, so a command's reply slot is always
// written. Panics in a task are contained and logged; the actor keeps
// running.
type scheduler struct {
	ctx context.Context
	log *slog.Logger
	sem chan struct{}

	inflight atomic.Int32
	wg       sync.WaitGroup

	metrics SessionMetrics
}

func newScheduler(ctx context.Context, log *slog.Logger, max int, m SessionMetrics) *scheduler {
	if max <= 0 {
		max = 1
	}
	return &scheduler{
		ctx:     ctx,
		log:     log,
		sem:     make(chan struct{}, max),
		metrics: m,
	}
}

// schedule queues f. cancel is invoked instead of f when the scheduler's
// context ends before f acquires a slot.
func (s *scheduler) schedule(f taskFunc, cancel func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			cancel()
			return
		case s.sem <- struct{}{}:
		}

		count := s.inflight.Add(1)
		s.metrics.CallsInflight(int(count))
		defer func() {
			<-s.sem
			count := s.inflight.Add(-1)
			s.metrics.CallsInflight(int(count))
		}()

		s.runTask(f)
	}()
}

func (s *scheduler) runTask(f taskFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("child task panicked",
				slog.Any("recovered", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	f()
}

// wait blocks until all in-flight tasks complete.
func (s *scheduler) wait() {
	s.wg.Wait()
}
