package bgmodel

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/layerbg/internal/timeutil"
)

// Persister is implemented by Model and Synchronized.
type Persister interface {
	Persist(ctx context.Context, store SnapshotStore, sourceID, reason string) (*Snapshot, error)
}

// finalFlushTimeout bounds the flush performed after the run context ends.
const finalFlushTimeout = 10 * time.Second

// Flusher periodically snapshots a model into a SnapshotStore.
type Flusher struct {
	model    Persister
	store    SnapshotStore
	sourceID string
	interval time.Duration
	keep     time.Duration
	reason   string
	logger   *log.Logger
	clock    timeutil.Clock
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// FlusherConfig contains configuration for Flusher.
type FlusherConfig struct {
	// Model is the Persister to flush; share it through Synchronized when
	// frames are processed concurrently.
	Model Persister
	// Store receives the snapshots
	Store SnapshotStore
	// SourceID keys the snapshots of one video source
	SourceID string
	// Interval is how often to flush (e.g., 10*time.Minute)
	Interval time.Duration
	// Retention prunes snapshots older than this after each flush when the
	// store is a SnapshotPruner; zero keeps every snapshot
	Retention time.Duration
	// Reason is the reason string to use for flushes (default "periodic_flush")
	Reason string
	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
	// Clock drives the flush ticker; nil means timeutil.RealClock
	Clock timeutil.Clock
}

// NewFlusher creates a new Flusher.
func NewFlusher(cfg FlusherConfig) *Flusher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	reason := cfg.Reason
	if reason == "" {
		reason = "periodic_flush"
	}
	return &Flusher{
		model:    cfg.Model,
		store:    cfg.Store,
		sourceID: cfg.SourceID,
		interval: cfg.Interval,
		keep:     cfg.Retention,
		reason:   reason,
		logger:   logger,
		clock:    clock,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run starts the periodic flushing loop. It blocks until the context is
// cancelled or Stop() is called, then writes one final snapshot.
func (f *Flusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil // already running
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	defer func() {
		close(f.doneCh)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.interval <= 0 {
		f.logger.Printf("[Flusher] interval is zero or negative, not starting")
		return nil
	}

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Printf("[Flusher] started: source=%s interval=%v retention=%v", f.sourceID, f.interval, f.keep)

	for {
		select {
		case <-ctx.Done():
			f.logger.Printf("[Flusher] stopping due to context cancellation")
			f.flushFinal()
			return nil
		case <-f.stopCh:
			f.logger.Printf("[Flusher] stopping due to Stop() call")
			f.flushFinal()
			return nil
		case <-ticker.C():
			f.flush(ctx, f.reason)
		}
	}
}

// Stop requests the flusher to stop and waits for the final flush. It is
// safe to call multiple times.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	done := f.doneCh
	f.mu.Unlock()

	<-done
}

// IsRunning returns whether the flusher is currently running.
func (f *Flusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Flusher) flush(ctx context.Context, reason string) error {
	if f.model == nil || f.store == nil {
		return nil
	}
	snap, err := f.model.Persist(ctx, f.store, f.sourceID, reason)
	if err != nil {
		f.logger.Printf("[Flusher] error flushing (%s): %v", reason, err)
		return err
	}
	f.logger.Printf("[Flusher] snapshot %s written (%s, frame %d)", snap.ID, reason, snap.Frame)
	f.prune(ctx, snap)
	return nil
}

// prune drops snapshots older than the retention window, measured from the
// snapshot just written. Failures are logged and do not fail the flush.
func (f *Flusher) prune(ctx context.Context, snap *Snapshot) {
	if f.keep <= 0 {
		return
	}
	pruner, ok := f.store.(SnapshotPruner)
	if !ok {
		return
	}
	ref := snap.TakenAt
	if ref.IsZero() {
		ref = f.clock.Now()
	}
	n, err := pruner.DeleteOlderThan(ctx, f.sourceID, ref.Add(-f.keep))
	if err != nil {
		f.logger.Printf("[Flusher] error pruning snapshots older than %v: %v", f.keep, err)
		return
	}
	if n > 0 {
		f.logger.Printf("[Flusher] pruned %d snapshots older than %v", n, f.keep)
	}
}

// flushFinal runs on a fresh context because the run context may already
// be cancelled.
func (f *Flusher) flushFinal() {
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	_ = f.flush(ctx, "final_flush")
}

// FlushNow triggers an immediate flush outside the regular interval.
func (f *Flusher) FlushNow(ctx context.Context) error {
	return f.flush(ctx, "manual_flush")
}
