package workers

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/1F47E/go-stereoreel/internal/job"
	"github.com/1F47E/go-stereoreel/internal/storage"
	"github.com/1F47E/go-stereoreel/pkg/logger"
)

var log = logger.Log

// Synthesizer turns one frame into a side-by-side stereo frame.
type Synthesizer interface {
	Synthesize(image.Image) *image.RGBA
}

type Worker struct {
	ctx    context.Context
	fs     afero.Fs
	synth  Synthesizer
	width  int
	height int
}

// NewWorker reads frames from fs, normalised to width x height.
func NewWorker(ctx context.Context, fs afero.Fs, synth Synthesizer, width, height int) *Worker {
	return &Worker{
		ctx:    ctx,
		fs:     fs,
		synth:  synth,
		width:  width,
		height: height,
	}
}

// WorkerStereo answers every job on resChs[job.Idx]. Failed frames are
// answered with Err set so the collector never waits on them.
func (w *Worker) WorkerStereo(id int, jobs <-chan job.JobFrame, resChs []chan job.JobRes) {
	name := fmt.Sprintf("WorkerStereo #%d", id)
	log.Debugf("%s started", name)
	defer log.Debugf("%s finished", name)
	for {
		select {
		case <-w.ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			log.Debugf("%s got %s", name, j.Print())
			now := time.Now()
			res := w.process(j.Frame)
			log.Debugf("%s frame %d done. Took time: %s", name, j.Frame.Idx, time.Since(now))
			resChs[j.Frame.Idx] <- res
		}
	}
}

func (w *Worker) process(f job.Frame) (res job.JobRes) {
	res.Idx = f.Idx
	img, err := storage.ReadFrame(w.fs, f.Path, w.width, w.height)
	if err != nil {
		res.Err = errors.Wrapf(err, "read frame %s", f.Path)
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			res.Stereo = nil
			res.Err = errors.Errorf("synthesize frame %s: %v", f.Path, r)
		}
	}()
	res.Stereo = w.synth.Synthesize(img)
	return res
}
