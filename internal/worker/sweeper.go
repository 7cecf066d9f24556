package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often the retention sweep runs.
const DefaultSweepInterval = 24 * time.Hour

// SweepFunc deletes bookings whose visit is older than the retention window at now.
type SweepFunc func(ctx context.Context, now time.Time) (int64, error)

// SweeperStats reports what the sweeper has done since it was created.
type SweeperStats struct {
	Running      bool
	Runs         int64
	Failures     int64
	TotalDeleted int64
	LastRun      time.Time
	LastDeleted  int64
	LastError    string
}

// Sweeper runs the booking retention sweep once at start and then on a fixed interval.
// A failed sweep is logged and the next tick runs normally.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stats   SweeperStats
}

func NewSweeper(sweep SweepFunc, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		sweep:    sweep,
		interval: interval,
		now:      time.Now,
		log:      log.Named("sweeper"),
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper does nothing.
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.log.Info("starting sweeper", zap.Duration("interval", w.interval))

	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)
}

// Stop ends the loop and waits for a running sweep to finish. Calling Stop twice is safe.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("sweeper stopped")
}

// RunOnce sweeps immediately and returns the number of deleted bookings.
func (w *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	now := w.now()
	n, err := w.sweep(ctx, now)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = now
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	} else {
		w.stats.LastDeleted = n
		w.stats.TotalDeleted += n
		w.stats.LastError = ""
	}
	w.mu.Unlock()

	return n, err
}

// Stats returns a snapshot of the sweeper counters.
func (w *Sweeper) Stats() SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Running = w.running
	return s
}

func (w *Sweeper) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Sweeper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("sweep panicked", zap.Any("panic", r))
		}
	}()

	n, err := w.RunOnce(ctx)
	if err != nil {
		w.log.Error("sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("sweep finished", zap.Int64("deleted", n))
	}
}
