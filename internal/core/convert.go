package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/1F47E/go-stereoreel/internal/events"
	"github.com/1F47E/go-stereoreel/internal/job"
	"github.com/1F47E/go-stereoreel/internal/storage"
	"github.com/1F47E/go-stereoreel/internal/video"
	"github.com/1F47E/go-stereoreel/internal/workers"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
)

// frames in flight per worker before the dispatcher waits for the writer
const windowPerWorker = 4

// Convert runs Setup -> Extracting -> Processing -> Assembling -> Complete.
// Any failure moves the run to Failed and emits an error event.
// On failure the workspace is left to its owner.
func (c *Core) Convert(input, output string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindUnexpected, "convert", errors.Errorf("panic: %v", r))
		}
		if err != nil {
			c.setState(StateFailed)
			log.WithField("scope", "core").Errorf("%s: %+v", KindOf(err), err)
			c.emit(events.StepError, userMessage(err), 0)
		}
	}()

	c.emit(events.StepSetup, "Starting conversion...", 5)
	if c.tools.Resolver != nil {
		if err := c.tools.Resolver.Resolve(c.ctx); err != nil {
			return newError(KindExternalTool, "setup", err)
		}
	}
	if _, err := c.ws.Fs.Stat(input); err != nil {
		return newError(KindUnexpected, "setup", errors.Wrapf(err, "input %s", input))
	}

	c.setState(StateExtracting)
	frames, err := c.framesExtract(input)
	if err != nil {
		return err
	}

	c.setState(StateProcessing)
	if err := c.framesProcess(frames); err != nil {
		return err
	}

	c.setState(StateAssembling)
	if err := c.videoAssemble(input, output); err != nil {
		return err
	}

	c.setState(StateComplete)
	c.emit(events.StepComplete, "VR video created successfully!", 100)
	c.release()
	return nil
}

func (c *Core) framesExtract(input string) ([]job.Frame, error) {
	c.emit(events.StepExtract, "Extracting frames...", 10)

	// count frames while ffmpeg writes them
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.scanFramesDir(c.ws.FramesDir, done)
	}()
	err := c.tools.Extractor.ExtractFrames(c.ctx, input, c.ws.FramesDir)
	close(done)
	wg.Wait()
	if err != nil {
		return nil, newError(KindExternalTool, "extract", err)
	}

	frames, err := storage.ScanFrames(c.ws.Fs, c.ws.FramesDir)
	if err != nil {
		return nil, newError(KindUnexpected, "extract", err)
	}
	if len(frames) == 0 {
		return nil, newError(KindNoFramesExtracted, "extract", ErrNoFrames)
	}

	c.mu.Lock()
	c.stats.Extracted = len(frames)
	c.mu.Unlock()
	c.emit(events.StepExtract, fmt.Sprintf("Extracted %d frames", len(frames)), 20)
	return frames, nil
}

// 1. send frames to the workers, at most windowPerWorker*workers ahead of the writer
// 2. workers read + synthesize, answer on the frame's own result channel
// 3. write results in frame order, numbering the written frames contiguously
func (c *Core) framesProcess(frames []job.Frame) error {
	c.emit(events.StepProcess, "Converting to stereo...", 30)

	total := len(frames)
	resChs := make([]chan job.JobRes, total)
	for i := range resChs {
		resChs[i] = make(chan job.JobRes, 1)
	}

	ctx, cancel := context.WithCancel(c.ctx)
	n := c.cfg.Workers
	if n < 1 {
		n = 1
	}
	framesCh := make(chan job.JobFrame)
	window := make(chan struct{}, n*windowPerWorker)
	worker := workers.NewWorker(ctx, c.ws.Fs, c.synth, c.cfg.Width, c.cfg.Height)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	log.Debugf("Starting %d workers", n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.WorkerStereo(i, framesCh, resChs)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(framesCh)
		for _, f := range frames {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case framesCh <- job.New(f):
			case <-ctx.Done():
				return
			}
		}
	}()

	interval := c.cfg.ProgressInterval
	if interval < 1 {
		interval = 1
	}
	written, skipped := 0, 0
	for i, ch := range resChs {
		var res job.JobRes
		select {
		case <-ctx.Done():
			return newError(KindUnexpected, "process", ctx.Err())
		case res = <-ch:
		}
		<-window

		if !res.Ok() {
			skipped++
			ferr := newError(KindFrameRead, "process", res.Err)
			log.Warnf("Skipping frame %d: %v", res.Idx, ferr)
		} else {
			written++
			if _, err := storage.SaveFrame(c.ws.Fs, c.ws.StereoDir, written, res.Stereo); err != nil {
				return newError(KindUnexpected, "process", err)
			}
		}

		if i%interval == 0 {
			progress := 30 + int(float64(i)/float64(total)*50)
			c.emit(events.StepProcess, fmt.Sprintf("Processed %d/%d frames", i+1, total), progress)
			log.Debugf("Processed %d/%d frames", i+1, total)
		}
	}

	c.mu.Lock()
	c.stats.Written = written
	c.stats.Skipped = skipped
	c.mu.Unlock()

	if written == 0 {
		return newError(KindNoFramesExtracted, "process", ErrNoStereoFrames)
	}
	c.emit(events.StepProcess, fmt.Sprintf("All %d frames processed", total), 80)
	return nil
}

func (c *Core) videoAssemble(input, output string) error {
	c.emit(events.StepVideo, "Creating VR video...", 85)

	fps, ok, err := c.tools.Prober.ProbeFrameRate(c.ctx, input)
	if err != nil {
		return newError(KindExternalTool, "probe", err)
	}
	if !ok {
		log.Warnf("Frame rate of %s unknown, using %s", input, video.FormatFPS(c.cfg.DefaultFPS))
		fps = c.cfg.DefaultFPS
	}
	// one kept frame per Stride source frames
	fps = fps / float64(c.cfg.Stride)

	c.mu.Lock()
	c.stats.FPS = fps
	c.mu.Unlock()

	c.emit(events.StepVideo, fmt.Sprintf("Assembling video at %s FPS...", video.FormatFPS(fps)), 90)
	if err := c.tools.Assembler.Assemble(c.ctx, c.ws.StereoDir, fps, input, output); err != nil {
		return newError(KindExternalTool, "assemble", err)
	}
	return nil
}

// release drops intermediate frames, failures are only logged
func (c *Core) release() {
	if err := c.ws.Close(); err != nil {
		log.Warnf("Cleanup failed: %v", err)
	}
}

// Extraction progress runner
// NOTE: total frames count is unknown while ffmpeg runs,
// so only the count of frames written so far is reported
func (c *Core) scanFramesDir(dir string, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second / 2)
	defer ticker.Stop()

	prevCount := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			files, err := afero.Glob(c.ws.Fs, filepath.Join(dir, cfg.FrameGlob))
			if err != nil {
				log.Warn("scanning dir error:", err)
				continue
			}
			if l := len(files); l > prevCount {
				prevCount = l
				c.emit(events.StepExtract, fmt.Sprintf("Extracting frames... %d", l), 10)
			}
		}
	}
}
