package bgmodel

import (
	"context"
	"sync"

	"github.com/banshee-data/layerbg/internal/raster"
)

// Synchronized serialises access to a Model shared between the frame loop,
// a Flusher and HTTP handlers.
type Synchronized struct {
	mu    sync.Mutex
	model *Model
}

// NewSynchronized wraps m.
func NewSynchronized(m *Model) *Synchronized {
	return &Synchronized{model: m}
}

// Process ingests one frame under the lock.
func (s *Synchronized) Process(frame *raster.Bytes, roi *raster.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Process(frame, roi)
}

// Do runs fn with exclusive access to the model. fn must not retain the
// model or any raster it returns.
func (s *Synchronized) Do(fn func(m *Model) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.model)
}

// Persist snapshots the model under the lock and writes it outside of it.
func (s *Synchronized) Persist(ctx context.Context, store SnapshotStore, sourceID, reason string) (*Snapshot, error) {
	s.mu.Lock()
	snap, err := s.model.Snapshot(sourceID, reason)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := store.InsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Stats returns the model statistics.
func (s *Synchronized) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Stats()
}

// Foreground returns a copy of the latest foreground mask.
func (s *Synchronized) Foreground() *raster.Bytes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Foreground().Clone()
}

// Background returns a copy of the latest background image.
func (s *Synchronized) Background() *raster.Bytes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Background().Clone()
}
