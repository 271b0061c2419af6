// Package syncer drains the sync outbox into the spreadsheet bridge.
//
// The worker:
//  1. Requeues events left SENDING by a previous run
//  2. Wakes on a poll tick or an explicit Notify after a finalize
//  3. Claims each QUEUED event (QUEUED → SENDING) before pushing it
//  4. Pushes under a concurrency semaphore and a per-push timeout
//  5. Marks the event DELIVERED or FAILED; failures wait for a manual retry
//
// Ticket rows are never written here.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/domain"
)

// Config controls worker behavior.
type Config struct {
	PollInterval  time.Duration // Outbox poll period (default: 5s)
	MaxConcurrent int           // Parallel pushes (default: 2)
	PushTimeout   time.Duration // Timeout per push including redirects (default: 30s)
	BatchSize     int           // Events fetched per pass (default: 20)
}

// DefaultConfig returns worker defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:  5 * time.Second,
		MaxConcurrent: 2,
		PushTimeout:   30 * time.Second,
		BatchSize:     20,
	}
}

// Option customizes a Worker.
type Option func(*Worker)

// WithResultHook is called with DELIVERED or FAILED after every push.
func WithResultHook(fn func(domain.SyncStatus)) Option {
	return func(w *Worker) { w.onResult = fn }
}

// Worker delivers outbox events.
type Worker struct {
	mu        sync.RWMutex
	config    Config
	store     domain.OutboxStore
	pusher    domain.SyncPusher
	log       *zap.Logger
	sem       chan struct{} // Concurrency semaphore
	wake      chan struct{}
	onResult  func(domain.SyncStatus)
	active    int
	delivered int64
	failed    int64
}

// New creates an outbox worker.
func New(cfg Config, store domain.OutboxStore, pusher domain.SyncPusher, log *zap.Logger, opts ...Option) *Worker {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = def.PushTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	w := &Worker{
		config: cfg,
		store:  store,
		pusher: pusher,
		log:    log.Named("syncer"),
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		wake:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Notify wakes the worker without waiting for the next tick. Never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	n, err := w.store.ResetInFlightSync(ctx)
	if err != nil {
		return fmt.Errorf("reset in-flight sync: %w", err)
	}
	if n > 0 {
		w.log.Info("requeued interrupted sync events", zap.Int64("count", n))
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("drain outbox", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// Drain pushes every currently queued event and waits for the pushes to
// finish. It returns how many events it dispatched.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		events, err := w.store.QueuedSync(ctx, w.config.BatchSize)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			return total, nil
		}

		var wg sync.WaitGroup
		dispatched := 0
		for _, ev := range events {
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return total + dispatched, ctx.Err()
			}

			ok, err := w.store.ClaimSync(ctx, ev.ID)
			if err != nil || !ok {
				<-w.sem
				if err != nil {
					w.log.Warn("claim sync event", zap.String("event", ev.ID), zap.Error(err))
				}
				continue
			}

			dispatched++
			wg.Add(1)
			go func(ev domain.SyncEvent) {
				defer wg.Done()
				w.deliver(ctx, ev)
			}(ev)
		}
		wg.Wait()

		total += dispatched
		if dispatched == 0 || len(events) < w.config.BatchSize {
			return total, nil
		}
	}
}

// deliver pushes one claimed event.
func (w *Worker) deliver(ctx context.Context, ev domain.SyncEvent) {
	defer func() { <-w.sem }() // Release concurrency slot

	w.mu.Lock()
	w.active++
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.active--
		w.mu.Unlock()
	}()

	// Outcome writes survive shutdown so an event is never left SENDING
	// after its push returned.
	recordCtx := context.WithoutCancel(ctx)

	t, err := w.store.GetTicket(ctx, ev.TicketID)
	if err != nil {
		w.fail(recordCtx, ev, err)
		return
	}

	pushCtx, cancel := context.WithTimeout(ctx, w.config.PushTimeout)
	defer cancel()

	if err := w.pusher.Push(pushCtx, *t); err != nil {
		w.fail(recordCtx, ev, err)
		return
	}

	if err := w.store.MarkSyncDelivered(recordCtx, ev.ID); err != nil {
		w.log.Error("mark sync delivered", zap.String("event", ev.ID), zap.Error(err))
	}
	w.log.Debug("sync event delivered",
		zap.String("event", ev.ID),
		zap.Stringer("ticket", ev.TicketID),
		zap.Int("attempt", ev.Attempts+1),
	)

	w.mu.Lock()
	w.delivered++
	w.mu.Unlock()
	if w.onResult != nil {
		w.onResult(domain.SyncDelivered)
	}
}

// fail marks an event FAILED with the push error.
func (w *Worker) fail(ctx context.Context, ev domain.SyncEvent, cause error) {
	if err := w.store.MarkSyncFailed(ctx, ev.ID, cause.Error()); err != nil {
		w.log.Error("mark sync failed", zap.String("event", ev.ID), zap.Error(err))
	}
	w.log.Warn("sync event failed",
		zap.String("event", ev.ID),
		zap.Stringer("ticket", ev.TicketID),
		zap.Error(cause),
	)

	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
	if w.onResult != nil {
		w.onResult(domain.SyncFailed)
	}
}

// RetryFailed requeues every FAILED event and wakes the worker.
func (w *Worker) RetryFailed(ctx context.Context) (int64, error) {
	n, err := w.store.RetryFailedSync(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.log.Info("requeued failed sync events", zap.Int64("count", n))
		w.Notify()
	}
	return n, nil
}

// Stats is a snapshot of worker counters since start.
type Stats struct {
	Active    int   `json:"active"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	MaxSlots  int   `json:"max_slots"`
	FreeSlots int   `json:"free_slots"`
}

// Stats returns current worker statistics.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return Stats{
		Active:    w.active,
		Delivered: w.delivered,
		Failed:    w.failed,
		MaxSlots:  w.config.MaxConcurrent,
		FreeSlots: w.config.MaxConcurrent - w.active,
	}
}
