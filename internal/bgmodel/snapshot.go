package bgmodel

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/layerbg/internal/monitoring"
)

// ErrNoSnapshot is returned by stores when a source has no snapshot.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot is a compressed MODEL_PARAS_INFO image of a model.
type Snapshot struct {
	ID               string
	SourceID         string
	TakenAt          time.Time
	Frame            uint64
	Width            int
	Height           int
	Channels         int
	ModeSlots        int
	DescriptorLength int
	ActiveModes      int // total active modes over all pixels
	LayeredPixels    int
	Reason           string
	Blob             []byte
}

// SnapshotStore persists snapshots. Implemented by sqlite.SnapshotStore.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s *Snapshot) error
	LatestSnapshot(ctx context.Context, sourceID string) (*Snapshot, error)
}

// SnapshotPruner is implemented by stores that can drop old snapshots of a
// source. The most recent snapshot of the source is always kept.
type SnapshotPruner interface {
	DeleteOlderThan(ctx context.Context, sourceID string, cutoff time.Time) (int64, error)
}

// Snapshot serialises the model into a new snapshot record.
func (m *Model) Snapshot(sourceID, reason string) (*Snapshot, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := m.Save(gz, SaveBoth); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	st := m.Stats()
	return &Snapshot{
		ID:               uuid.NewString(),
		SourceID:         sourceID,
		TakenAt:          time.Now().UTC(),
		Frame:            m.frame,
		Width:            m.width,
		Height:           m.height,
		Channels:         m.channels,
		ModeSlots:        m.params.MaxModes,
		DescriptorLength: m.descLen,
		ActiveModes:      st.ActiveModes,
		LayeredPixels:    st.LayeredPixels,
		Reason:           reason,
		Blob:             buf.Bytes(),
	}, nil
}

// Persist writes a snapshot of the model through store.
func (m *Model) Persist(ctx context.Context, store SnapshotStore, sourceID, reason string) (*Snapshot, error) {
	snap, err := m.Snapshot(sourceID, reason)
	if err != nil {
		return nil, err
	}
	if err := store.InsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	monitoring.Logf("[Model] persisted snapshot: source=%s id=%s reason=%s frame=%d blob=%d bytes",
		sourceID, snap.ID, reason, snap.Frame, len(snap.Blob))
	return snap, nil
}

// RestoreSnapshot loads the model state held by snap.
func (m *Model) RestoreSnapshot(snap *Snapshot) error {
	if snap == nil || len(snap.Blob) == 0 {
		return fmt.Errorf("empty snapshot: %w", ErrBadFormat)
	}
	gz, err := gzip.NewReader(bytes.NewReader(snap.Blob))
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	return m.Load(io.Reader(gz))
}

// Restore loads the latest snapshot of sourceID from store. It returns
// ErrNoSnapshot when the source has none.
func (m *Model) Restore(ctx context.Context, store SnapshotStore, sourceID string) (*Snapshot, error) {
	snap, err := store.LatestSnapshot(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if err := m.RestoreSnapshot(snap); err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", snap.ID, err)
	}
	monitoring.Logf("[Model] restored snapshot: source=%s id=%s frame=%d", sourceID, snap.ID, m.frame)
	return snap, nil
}
