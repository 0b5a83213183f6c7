package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/layerbg/internal/bgmodel"
	"github.com/banshee-data/layerbg/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// SnapshotStore stores model snapshots in the model_snapshots table.
type SnapshotStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema version.
func Open(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	s := &SnapshotStore{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	// MigrateUp refuses a dirty schema, so only the version matters here.
	version, _, err := s.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("[SnapshotStore] opened %s (schema version %d)", path, version)
	return s, nil
}

// DB exposes the underlying connection pool.
func (s *SnapshotStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SnapshotStore) Close() error { return s.db.Close() }

func (s *SnapshotStore) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateUp applies all pending migrations. It is a no-op when the schema
// is already current.
func (s *SnapshotStore) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close s.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty flag.
func (s *SnapshotStore) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// InsertSnapshot stores snap. An empty ID is replaced by a new UUID and a
// zero TakenAt by the current time.
func (s *SnapshotStore) InsertSnapshot(ctx context.Context, snap *bgmodel.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	if snap.SourceID == "" {
		return errors.New("snapshot has no source id")
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO model_snapshots (
				snapshot_id, source_id, taken_unix_nanos, frame_index,
				width, height, channels, max_modes, descriptor_length,
				active_modes, layered_pixels, reason, info_blob
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.SourceID, snap.TakenAt.UnixNano(), int64(snap.Frame),
			snap.Width, snap.Height, snap.Channels, snap.ModeSlots, snap.DescriptorLength,
			snap.ActiveModes, snap.LayeredPixels, snap.Reason, snap.Blob,
		)
		if err != nil {
			return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
		}
		return nil
	})
}

const snapshotColumns = `snapshot_id, source_id, taken_unix_nanos, frame_index,
	width, height, channels, max_modes, descriptor_length,
	active_modes, layered_pixels, reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner, withBlob bool) (*bgmodel.Snapshot, error) {
	var (
		snap  bgmodel.Snapshot
		taken int64
		frame int64
	)
	dest := []any{
		&snap.ID, &snap.SourceID, &taken, &frame,
		&snap.Width, &snap.Height, &snap.Channels, &snap.ModeSlots, &snap.DescriptorLength,
		&snap.ActiveModes, &snap.LayeredPixels, &snap.Reason,
	}
	if withBlob {
		dest = append(dest, &snap.Blob)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	snap.TakenAt = time.Unix(0, taken).UTC()
	snap.Frame = uint64(frame)
	return &snap, nil
}

// LatestSnapshot returns the most recent snapshot of sourceID, or
// bgmodel.ErrNoSnapshot.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, sourceID string) (*bgmodel.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`, info_blob
		FROM model_snapshots
		WHERE source_id = ?
		ORDER BY taken_unix_nanos DESC, frame_index DESC
		LIMIT 1`, sourceID)
	snap, err := scanSnapshot(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %q: %w", sourceID, bgmodel.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotByID returns one snapshot including its blob.
func (s *SnapshotStore) SnapshotByID(ctx context.Context, id string) (*bgmodel.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`, info_blob
		FROM model_snapshots
		WHERE snapshot_id = ?`, id)
	snap, err := scanSnapshot(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %q: %w", id, bgmodel.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots of sourceID, newest first.
// Blobs are not loaded. A non-positive limit returns every snapshot.
func (s *SnapshotStore) ListSnapshots(ctx context.Context, sourceID string, limit int) ([]*bgmodel.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM model_snapshots
		WHERE source_id = ?
		ORDER BY taken_unix_nanos DESC, frame_index DESC
		LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*bgmodel.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteOlderThan removes the snapshots of sourceID taken before cutoff and
// returns how many were deleted. The latest snapshot of the source is
// always kept.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, sourceID string, cutoff time.Time) (int64, error) {
	var n int64
	err := retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM model_snapshots
			WHERE source_id = ?
			  AND taken_unix_nanos < ?
			  AND snapshot_id <> (
				SELECT snapshot_id FROM model_snapshots
				WHERE source_id = ?
				ORDER BY taken_unix_nanos DESC, frame_index DESC
				LIMIT 1
			  )`, sourceID, cutoff.UnixNano(), sourceID)
		if err != nil {
			return fmt.Errorf("delete snapshots: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		monitoring.Logf("[SnapshotStore] pruned %d snapshots of %s older than %s", n, sourceID, cutoff.Format(time.RFC3339))
	}
	return n, nil
}
