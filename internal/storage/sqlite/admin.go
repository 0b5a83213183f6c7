package sqlite

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/layerbg/internal/httputil"
	"github.com/banshee-data/layerbg/internal/monitoring"
)

// AttachAdminRoutes mounts the debug routes of the store on mux:
// tailsql at /debug/tailsql/, a gzip backup download at /debug/backup and
// a JSON snapshot listing at /debug/snapshots?source=<id>&limit=<n>.
func (s *SnapshotStore) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(s.path), s.db, &tailsql.DBOptions{
		Label: "Model snapshots",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(s.handleBackup))
	debug.Handle("snapshots", "List stored model snapshots", http.HandlerFunc(s.handleListSnapshots))
	return nil
}

func (s *SnapshotStore) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := s.db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("[SnapshotStore] failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to open backup file: %v", err))
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("[SnapshotStore] backup download interrupted: %v", err)
	}
}

type snapshotSummary struct {
	ID            string    `json:"snapshot_id"`
	SourceID      string    `json:"source_id"`
	TakenAt       time.Time `json:"taken_at"`
	Frame         uint64    `json:"frame"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	MaxModes      int       `json:"max_modes"`
	ActiveModes   int       `json:"active_modes"`
	LayeredPixels int       `json:"layered_pixels"`
	Reason        string    `json:"reason"`
}

func (s *SnapshotStore) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		httputil.BadRequest(w, "missing source parameter")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "invalid limit parameter")
			return
		}
		limit = n
	}
	snaps, err := s.ListSnapshots(r.Context(), source, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out := make([]snapshotSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snapshotSummary{
			ID:            snap.ID,
			SourceID:      snap.SourceID,
			TakenAt:       snap.TakenAt,
			Frame:         snap.Frame,
			Width:         snap.Width,
			Height:        snap.Height,
			MaxModes:      snap.ModeSlots,
			ActiveModes:   snap.ActiveModes,
			LayeredPixels: snap.LayeredPixels,
			Reason:        snap.Reason,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
