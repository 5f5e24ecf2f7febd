package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/1F47E/go-stereoreel/internal/cleanup"
	"github.com/1F47E/go-stereoreel/internal/core"
	"github.com/1F47E/go-stereoreel/internal/events"
	"github.com/1F47E/go-stereoreel/internal/server"
	"github.com/1F47E/go-stereoreel/internal/stereo"
	"github.com/1F47E/go-stereoreel/internal/storage"
	"github.com/1F47E/go-stereoreel/internal/video"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
)

const (
	sweepLockName = "stereoreel-cleanup.lock"
	serveLockName = "stereoreel-serve.lock"

	// workspaces touched more recently belong to running jobs
	activeDirAge = 30 * time.Minute
)

func convertAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return usageError(c)
	}
	input, output := c.Args().Get(0), c.Args().Get(1)

	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	var sink events.Sink
	if isatty.IsTerminal(os.Stdout.Fd()) {
		sink = events.NewBar(os.Stdout)
	} else {
		sink = events.NewJSONLines(os.Stdout)
	}

	eventsCh := make(chan events.Event, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		events.Run(context.Background(), eventsCh, sink)
	}()

	err = newConverter(conf).Convert(ctx, input, output, eventsCh)
	close(eventsCh)
	<-drained
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Printf("SUCCESS: VR180 video created at %s\n", output)
	return nil
}

// newConverter builds the production pipeline: ffmpeg tools resolved during
// Setup, a scoped workspace under WorkDir and the stereo synthesizer.
func newConverter(conf cfg.Config) server.ConverterFunc {
	return func(ctx context.Context, input, output string, eventsCh chan<- events.Event) error {
		ws, err := storage.NewWorkspace(afero.NewOsFs(), conf.WorkDir)
		if err != nil {
			return failSetup(eventsCh, err)
		}
		defer ws.Close()

		ff := video.New(conf.FFmpegPath, conf)
		tools := core.Tools{Resolver: ff, Extractor: ff, Prober: ff, Assembler: ff}
		synth := stereo.NewSynthesizer(conf.ShiftPixels, conf.BlurKernel)
		return core.NewCore(ctx, conf, ws, tools, synth, eventsCh).Convert(input, output)
	}
}

// failSetup reports errors raised before a pipeline exists.
func failSetup(eventsCh chan<- events.Event, err error) error {
	log.Error(err)
	if eventsCh != nil {
		eventsCh <- events.NewError("Conversion failed: " + err.Error())
	}
	return err
}

func newSweeper(conf cfg.Config, root string) *cleanup.Sweeper {
	sw := cleanup.New(afero.NewOsFs(), root)
	sw.UploadsDir = conf.Server.UploadsDir
	sw.VideosDir = conf.Server.VideosDir
	sw.Retention = time.Duration(conf.Cleanup.RetentionMinutes) * time.Minute
	sw.VideoRetention = time.Duration(conf.Cleanup.VideoRetentionMinutes) * time.Minute
	if conf.Cleanup.Lock {
		sw.LockPath = filepath.Join(os.TempDir(), sweepLockName)
	}
	return sw
}

func cleanupAction(c *cli.Context) error {
	if c.NArg() > 1 {
		return usageError(c)
	}
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	root := conf.WorkDir
	if c.NArg() == 1 {
		root = c.Args().Get(0)
	}

	sw := newSweeper(conf, root)
	report, err := sw.Sweep()
	if err != nil {
		if errors.Is(err, cleanup.ErrBusy) {
			return cli.NewExitError(err.Error(), 1)
		}
		return err
	}
	fmt.Print(report.Render())
	return nil
}

func serveAction(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	// fail early rather than on the first upload
	if _, err := video.ResolveBinary(conf.FFmpegPath); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	lock := flock.New(filepath.Join(conf.WorkDir, serveLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		return cli.NewExitError("another server is already running", 1)
	}
	defer func() { _ = lock.Unlock() }()

	sw := newSweeper(conf, conf.WorkDir)
	sw.DirAge = activeDirAge

	srv := server.New(conf.Server, afero.NewOsFs(), newConverter(conf), sw)
	return srv.Run(ctx)
}
