package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/layerbg/internal/bgmodel"
	"github.com/banshee-data/layerbg/internal/config"
	"github.com/banshee-data/layerbg/internal/diag"
	"github.com/banshee-data/layerbg/internal/fsutil"
	"github.com/banshee-data/layerbg/internal/pipeline"
	"github.com/banshee-data/layerbg/internal/raster"
	"github.com/banshee-data/layerbg/internal/security"
	"github.com/banshee-data/layerbg/internal/source"
	"github.com/banshee-data/layerbg/internal/storage/sqlite"
)

const (
	defaultConfigHint      = config.DefaultConfigPath
	defaultSyntheticWidth  = 320
	defaultSyntheticHeight = 240
	defaultSyntheticFrames = 300
)

// options are the parsed command line.
type options struct {
	ConfigPath        string
	Input             string
	Synthetic         bool
	Frames            int
	Gray              bool
	Output            string
	Width             int
	Height            int
	LoadPath          string
	SnapshotID        string
	SavePath          string
	SaveMode          string
	DBPath            string
	SourceID          string
	Listen            string
	PlotPixels        string
	PlotDir           string
	ROI               string
	MaskPath          string
	SnapshotInterval  time.Duration
	SnapshotRetention time.Duration
	ShutdownTimeout   time.Duration
	// FS defaults to the OS filesystem.
	FS fsutil.FileSystem
	// ServeAfterRun keeps the debug server up until ctx ends.
	ServeAfterRun bool
}

func (o options) validate() error {
	if !o.Synthetic && o.Input == "" {
		return errors.New("one of -input or -synthetic is required")
	}
	if o.Synthetic && o.Input != "" {
		return errors.New("-input and -synthetic are mutually exclusive")
	}
	if (o.Width > 0) != (o.Height > 0) || o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("-width and -height must be given together, got %dx%d", o.Width, o.Height)
	}
	if o.Frames < 0 {
		return fmt.Errorf("-frames must be non-negative, got %d", o.Frames)
	}
	if _, err := bgmodel.ParseSaveMode(o.SaveMode); err != nil {
		return err
	}
	if o.DBPath != "" && o.SourceID == "" {
		return errors.New("-source-id is required with -db")
	}
	if o.SnapshotID != "" && o.DBPath == "" {
		return errors.New("-load-snapshot requires -db")
	}
	if o.SnapshotID != "" && o.LoadPath != "" {
		return errors.New("-load and -load-snapshot are mutually exclusive")
	}
	if o.SnapshotRetention < 0 {
		return fmt.Errorf("-snapshot-retention must be non-negative, got %v", o.SnapshotRetention)
	}
	return nil
}

func (o options) channels() int {
	if o.Gray {
		return 1
	}
	return 3
}

func loadModelConfig(path string) (*bgmodel.Config, *config.TuningConfig, error) {
	tuning := config.EmptyTuningConfig()
	if path != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(path); err != nil {
			return nil, nil, err
		}
		log.Printf("loaded tuning config %s", path)
	}
	cfg, err := bgmodel.ConfigFromTuning(tuning)
	if err != nil {
		return nil, nil, err
	}
	return cfg, tuning, nil
}

func openSource(o options, fsys fsutil.FileSystem) (source.Source, error) {
	if o.Synthetic {
		w, h := o.Width, o.Height
		if w == 0 {
			w, h = defaultSyntheticWidth, defaultSyntheticHeight
		}
		n := o.Frames
		if n == 0 {
			n = defaultSyntheticFrames
		}
		syn := source.NewSynthetic(w, h, n)
		syn.Channels = o.channels()
		return syn, nil
	}
	return source.Open(fsys, o.Input, source.Options{Width: o.Width, Height: o.Height, Channels: o.channels()})
}

// peekedSource replays the frame read to size the model.
type peekedSource struct {
	source.Source
	first *raster.Bytes
}

func (p *peekedSource) Next(ctx context.Context) (*raster.Bytes, error) {
	if f := p.first; f != nil {
		p.first = nil
		return f, nil
	}
	return p.Source.Next(ctx)
}

func peek(ctx context.Context, src source.Source) (*peekedSource, error) {
	first, err := src.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("read first frame: %w", err)
	}
	return &peekedSource{Source: src, first: first}, nil
}

func run(ctx context.Context, o options) error {
	fsys := o.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	cfg, tuning, err := loadModelConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	mode, err := bgmodel.ParseSaveMode(o.SaveMode)
	if err != nil {
		return err
	}

	raw, err := openSource(o, fsys)
	if err != nil {
		return err
	}
	defer raw.Close()
	src, err := peek(ctx, raw)
	if err != nil {
		return err
	}
	w, h, ch := src.first.Width, src.first.Height, src.first.Channels

	m, err := bgmodel.NewFromConfig(w, h, ch, cfg)
	if err != nil {
		return err
	}
	log.Printf("model %dx%dx%d, %d modes, descriptor length %d, edge-aware smoothing %v",
		w, h, ch, m.Params().MaxModes, m.DescriptorLength(), m.EdgeAware())

	var store *sqlite.SnapshotStore
	if o.DBPath != "" {
		if store, err = sqlite.Open(o.DBPath); err != nil {
			return err
		}
		defer store.Close()
	}

	switch {
	case o.LoadPath != "":
		if err := m.LoadFile(fsys, o.LoadPath); err != nil {
			return err
		}
	case o.SnapshotID != "":
		snap, err := store.SnapshotByID(ctx, o.SnapshotID)
		if err != nil {
			return err
		}
		if err := m.RestoreSnapshot(snap); err != nil {
			return fmt.Errorf("restore snapshot %s: %w", snap.ID, err)
		}
		log.Printf("restored snapshot %s of source %s at frame %d", snap.ID, snap.SourceID, m.Frame())
	case store != nil:
		if _, err := m.Restore(ctx, store, o.SourceID); err != nil {
			if !errors.Is(err, bgmodel.ErrNoSnapshot) {
				return err
			}
			log.Printf("no snapshot for source %s, starting cold", o.SourceID)
		}
	}

	if o.MaskPath != "" {
		mask, err := source.LoadImage(fsys, o.MaskPath, source.Options{Width: w, Height: h, Channels: 1})
		if err != nil {
			return err
		}
		if err := m.SetMask(mask); err != nil {
			return err
		}
	}

	var roi *raster.Rect
	if o.ROI != "" {
		r, err := raster.ParseRect(o.ROI)
		if err != nil {
			return err
		}
		if !r.Within(w, h) {
			return fmt.Errorf("roi %s outside %dx%d: %w", r, w, h, bgmodel.ErrROIOutOfBounds)
		}
		roi = &r
	}

	shared := bgmodel.NewSynchronized(m)
	var wg sync.WaitGroup
	defer wg.Wait()

	var flusher *bgmodel.Flusher
	flushCtx, stopFlush := context.WithCancel(context.Background())
	defer stopFlush()
	if store != nil {
		interval := tuning.GetSnapshotInterval()
		if o.SnapshotInterval > 0 {
			interval = o.SnapshotInterval
		}
		retention := tuning.GetSnapshotRetention()
		if o.SnapshotRetention > 0 {
			retention = o.SnapshotRetention
		}
		flusher = bgmodel.NewFlusher(bgmodel.FlusherConfig{
			Model:     shared,
			Store:     store,
			SourceID:  o.SourceID,
			Interval:  interval,
			Retention: retention,
			Logger:    log.Default(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = flusher.Run(flushCtx)
		}()
	}

	var plotter *diag.PixelPlotter
	if o.PlotPixels != "" {
		pts, err := diag.ParsePoints(o.PlotPixels)
		if err != nil {
			return err
		}
		plotter = diag.NewPixelPlotter(pts)
		dir := filepath.Join(o.PlotDir, security.SanitizeFilename(o.SourceID)+"_"+time.Now().Format("20060102_150405"))
		if err := plotter.Start(dir); err != nil {
			return err
		}
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if o.Listen != "" {
		mux := http.NewServeMux()
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		diag.AttachRoutes(mux, shared)
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(serverCtx, o.Listen, mux, o.ShutdownTimeout)
		}()
	}

	var sink pipeline.Sink
	if o.Output != "" {
		if sink, err = pipeline.NewPNGSink(fsys, o.Output, true); err != nil {
			return err
		}
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		Source:    src,
		Segmenter: shared,
		Sink:      sink,
		ROI:       roi,
		MaxFrames: o.Frames,
		OnFrame: func(int) error {
			if plotter == nil {
				return nil
			}
			return shared.Do(func(m *bgmodel.Model) error {
				plotter.Sample(m)
				return nil
			})
		},
	})
	if err != nil {
		return err
	}
	res, runErr := runner.Run(ctx)
	log.Printf("processed %d frames, skipped %d, %.1f fps", res.Frames, res.Skipped, res.FPS())

	// The flusher writes its final snapshot on cancellation.
	stopFlush()
	if flusher != nil && o.SnapshotInterval <= 0 && tuning.GetSnapshotInterval() <= 0 {
		if _, err := shared.Persist(context.Background(), store, o.SourceID, "final_flush"); err != nil {
			log.Printf("final snapshot failed: %v", err)
		}
	}

	if plotter != nil {
		plotter.Stop()
		n, err := plotter.GeneratePlots()
		if err != nil {
			log.Printf("pixel plots failed: %v", err)
		} else {
			log.Printf("wrote %d pixel plots to %s", n, plotter.GetOutputDir())
		}
	}

	if o.SavePath != "" {
		if err := shared.Do(func(m *bgmodel.Model) error {
			return m.SaveFile(fsys, o.SavePath, mode)
		}); err != nil {
			return err
		}
		log.Printf("saved model (%s) to %s", mode, o.SavePath)
	}

	if o.Listen != "" && o.ServeAfterRun && runErr == nil {
		log.Printf("input finished; serving debug routes on %s until interrupted", o.Listen)
		<-ctx.Done()
	}
	stopServer()
	wg.Wait()
	return runErr
}

func serve(ctx context.Context, addr string, handler http.Handler, timeout time.Duration) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("HTTP server failed: %v", err)
		}
		return
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
