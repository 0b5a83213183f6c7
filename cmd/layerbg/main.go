// Command layerbg runs the multi-layer background model over a frame
// source and writes foreground masks, model files and snapshots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/layerbg/internal/version"
)

var (
	configPath    = flag.String("config", "", "Tuning config JSON (defaults to "+defaultConfigHint+" when present)")
	input         = flag.String("input", "", "Image directory, video file or device:N")
	synthetic     = flag.Bool("synthetic", false, "Use the built-in synthetic scene instead of -input")
	frames        = flag.Int("frames", 0, "Stop after this many frames (0 = until the source ends; synthetic default 300)")
	gray          = flag.Bool("gray", false, "Model single-channel luma instead of RGB")
	output        = flag.String("output", "", "Directory for fg_NNNNNN.png / bg_NNNNNN.png outputs")
	width         = flag.Int("width", 0, "Resize frames to this width (requires -height)")
	height        = flag.Int("height", 0, "Resize frames to this height (requires -width)")
	loadPath      = flag.String("load", "", "Load model state from this file before processing")
	savePath      = flag.String("save", "", "Save the model to this file after processing")
	saveMode      = flag.String("save-mode", "both", "What -save writes: info, params or both")
	dbPath        = flag.String("db", "", "SQLite snapshot database (enables restore and periodic snapshots)")
	sourceID      = flag.String("source-id", "default", "Snapshot key of this video source")
	listen        = flag.String("listen", "", "Serve debug routes on this address (e.g. :8080)")
	plotPixels    = flag.String("plot-pixels", "", "Pixels to plot, as x,y;x,y")
	plotDir       = flag.String("plot-dir", "plots", "Base directory for pixel plots")
	roiFlag       = flag.String("roi", "", "Process only x0,y0,x1,y1")
	maskPath      = flag.String("mask", "", "PNG mask; pixels that are zero are not modelled")
	showVersion   = flag.Bool("version", false, "Print version and exit")
	snapshotEvery = flag.Duration("snapshot-interval", 0, "Override snapshot_interval from the config")
	snapshotKeep  = flag.Duration("snapshot-retention", 0, "Override snapshot_retention from the config")
	loadSnapshot  = flag.String("load-snapshot", "", "Restore this snapshot ID from -db instead of the latest")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	opts, err := optionsFromFlags()
	if err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("layerbg: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func optionsFromFlags() (options, error) {
	opts := options{
		ConfigPath:        *configPath,
		Input:             *input,
		Synthetic:         *synthetic,
		Frames:            *frames,
		Gray:              *gray,
		Output:            *output,
		Width:             *width,
		Height:            *height,
		LoadPath:          *loadPath,
		SnapshotID:        *loadSnapshot,
		SavePath:          *savePath,
		SaveMode:          *saveMode,
		DBPath:            *dbPath,
		SourceID:          *sourceID,
		Listen:            *listen,
		PlotPixels:        *plotPixels,
		PlotDir:           *plotDir,
		ROI:               *roiFlag,
		MaskPath:          *maskPath,
		SnapshotInterval:  *snapshotEvery,
		SnapshotRetention: *snapshotKeep,
		ShutdownTimeout:   time.Second,
		ServeAfterRun:     true,
	}
	if opts.ConfigPath == "" {
		if _, err := os.Stat(defaultConfigHint); err == nil {
			opts.ConfigPath = defaultConfigHint
		}
	}
	return opts, opts.validate()
}
