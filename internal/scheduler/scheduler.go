package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/critiquewire/critiquewire/internal/model"
)

// CollectionRunner is the unit of work the scheduler drives on each tick.
type CollectionRunner interface {
	CollectAll(ctx context.Context) []model.FeedRunRecord
}

// CollectionScheduler owns the main loop: ticks on an interval and runs one
// collection pass per tick. At most one pass runs at a time; if a tick fires
// while the previous pass is still in flight, that tick is skipped, not queued.
type CollectionScheduler struct {
	runner          CollectionRunner
	interval        time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	running  atomic.Bool
	inFlight sync.WaitGroup

	mu      sync.Mutex
	abandon context.CancelFunc // cancels the in-flight pass, set while one runs
}

// NewCollectionScheduler creates a scheduler that runs collection passes at
// the given interval.
func NewCollectionScheduler(runner CollectionRunner, interval, shutdownTimeout time.Duration, logger *slog.Logger) *CollectionScheduler {
	return &CollectionScheduler{
		runner:          runner,
		interval:        interval,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Run starts the collection loop. It runs one immediate pass, then ticks on
// the configured interval. It returns nil when ctx is cancelled, after
// waiting up to the shutdown timeout for any in-flight pass to drain.
func (s *CollectionScheduler) Run(ctx context.Context) error {
	s.logger.Info("starting collection scheduler",
		"interval", s.interval.String(),
	)

	// Run one immediate pass.
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down collection scheduler")
			s.drain()
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a collection pass in the background unless one is already
// running, in which case the tick is logged and dropped.
//
// The pass runs on a context detached from the loop's: shutdown must not
// abort work mid-feed, it gets the drain grace window instead. drain cancels
// the pass only once that window lapses.
func (s *CollectionScheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("collection pass still running, skipping tick")
		return
	}

	passCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.abandon = cancel
	s.mu.Unlock()

	s.inFlight.Add(1)
	go func() {
		defer func() {
			cancel()
			s.running.Store(false)
			s.inFlight.Done()
		}()
		s.runner.CollectAll(passCtx)
	}()
}

// drain waits for an in-flight pass to finish, bounded by the shutdown
// timeout. A pass still running when the timeout elapses is cancelled and
// abandoned.
func (s *CollectionScheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("shutdown timeout elapsed, abandoning collection pass")
		s.mu.Lock()
		if s.abandon != nil {
			s.abandon()
		}
		s.mu.Unlock()
	}
}
