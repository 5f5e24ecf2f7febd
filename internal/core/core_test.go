package core

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"

	"github.com/1F47E/go-stereoreel/internal/events"
	"github.com/1F47E/go-stereoreel/internal/storage"
	"github.com/1F47E/go-stereoreel/internal/stereo"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
)

type fakeExtractor struct {
	fs      afero.Fs
	frames  int
	corrupt map[int]bool
	w, h    int
	err     error
}

func (f *fakeExtractor) ExtractFrames(_ context.Context, _ string, dir string) error {
	if f.err != nil {
		return f.err
	}
	for i := 1; i <= f.frames; i++ {
		if f.corrupt[i] {
			path := filepath.Join(dir, fmt.Sprintf(cfg.FramePattern, i))
			if err := afero.WriteFile(f.fs, path, []byte("garbage"), 0o644); err != nil {
				return err
			}
			continue
		}
		img := image.NewRGBA(image.Rect(0, 0, f.w, f.h))
		for y := 0; y < f.h; y++ {
			for x := 0; x < f.w; x++ {
				img.SetRGBA(x, y, color.RGBA{R: 40, G: 80, B: uint8(10 * i), A: 255})
			}
		}
		if _, err := storage.SaveFrame(f.fs, dir, i, img); err != nil {
			return err
		}
	}
	return nil
}

type fakeResolver struct {
	err   error
	calls int
}

func (r *fakeResolver) Resolve(context.Context) error {
	r.calls++
	return r.err
}

type fakeProber struct {
	fps float64
	ok  bool
	err error
}

func (p fakeProber) ProbeFrameRate(context.Context, string) (float64, bool, error) {
	return p.fps, p.ok, p.err
}

type fakeAssembler struct {
	fs     afero.Fs
	calls  int
	fps    float64
	frames []string
	widths []int
	err    error
}

func (a *fakeAssembler) Assemble(_ context.Context, dir string, fps float64, _, _ string) error {
	a.calls++
	a.fps = fps
	frames, err := storage.ScanFrames(a.fs, dir)
	if err != nil {
		return err
	}
	for _, f := range frames {
		a.frames = append(a.frames, filepath.Base(f.Path))
		img, err := storage.ReadFrame(a.fs, f.Path, 0, 0)
		if err != nil {
			return err
		}
		a.widths = append(a.widths, img.Bounds().Dx())
	}
	return a.err
}

type ConvertTestSuite struct {
	suite.Suite
	fs        afero.Fs
	cfg       cfg.Config
	ws        *storage.Workspace
	extractor *fakeExtractor
	resolver  *fakeResolver
	prober    fakeProber
	assembler *fakeAssembler
}

func TestConvertTestSuite(t *testing.T) {
	suite.Run(t, &ConvertTestSuite{})
}

func (s *ConvertTestSuite) SetupTest() {
	s.fs = afero.NewMemMapFs()
	s.cfg = cfg.Default()
	s.cfg.Width, s.cfg.Height = 48, 28
	s.cfg.Workers = 3
	s.cfg.ProgressInterval = 2

	ws, err := storage.NewWorkspace(s.fs, "/work")
	s.Require().NoError(err)
	s.ws = ws
	s.Require().NoError(afero.WriteFile(s.fs, "/in/input.mp4", []byte("video"), 0o644))

	s.extractor = &fakeExtractor{fs: s.fs, frames: 10, w: 48, h: 28}
	s.resolver = &fakeResolver{}
	s.prober = fakeProber{fps: 30, ok: true}
	s.assembler = &fakeAssembler{fs: s.fs}
}

func (s *ConvertTestSuite) run() (*Core, []events.Event, error) {
	ch := make(chan events.Event)
	var got []events.Event
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		events.Run(context.Background(), ch, events.SinkFunc(func(e events.Event) { got = append(got, e) }))
	}()

	tools := Tools{Resolver: s.resolver, Extractor: s.extractor, Prober: s.prober, Assembler: s.assembler}
	c := NewCore(context.Background(), s.cfg, s.ws, tools, stereo.NewSynthesizer(s.cfg.ShiftPixels, s.cfg.BlurKernel), ch)
	err := c.Convert("/in/input.mp4", "/out/output.mp4")
	close(ch)
	wg.Wait()
	return c, got, err
}

func (s *ConvertTestSuite) TestConvertHappyPath() {
	c, got, err := s.run()
	s.Require().NoError(err)

	s.Equal(StateComplete, c.State())
	s.Equal([]State{StateSetup, StateExtracting, StateProcessing, StateAssembling, StateComplete}, c.History())
	s.Equal(1, s.resolver.calls)

	s.Equal(1, s.assembler.calls)
	s.Len(s.assembler.frames, 10)
	s.Equal("frame_000001.png", s.assembler.frames[0])
	for _, w := range s.assembler.widths {
		s.Equal(2*s.cfg.Width, w)
	}
	s.Equal(10.0, s.assembler.fps)

	stats := c.Stats()
	s.Equal(Stats{Extracted: 10, Written: 10, Skipped: 0, FPS: 10}, stats)

	s.Require().NotEmpty(got)
	prev := 0
	for _, e := range got {
		s.GreaterOrEqual(e.Progress, prev, "progress went down at %+v", e)
		prev = e.Progress
	}
	last := got[len(got)-1]
	s.Equal(events.StepComplete, last.Step)
	s.Equal(100, last.Progress)

	// workspace released on success
	ok, _ := afero.DirExists(s.fs, s.ws.FramesDir)
	s.False(ok)
	ok, _ = afero.DirExists(s.fs, s.ws.StereoDir)
	s.False(ok)
}

func (s *ConvertTestSuite) TestConvertSkipsCorruptFrame() {
	s.extractor.corrupt = map[int]bool{4: true}

	c, got, err := s.run()
	s.Require().NoError(err)
	s.Equal(StateComplete, c.State())

	// written frames stay contiguous
	s.Len(s.assembler.frames, 9)
	s.Equal("frame_000009.png", s.assembler.frames[8])
	s.Equal(1, c.Stats().Skipped)
	s.Equal(events.StepComplete, got[len(got)-1].Step)
}

func (s *ConvertTestSuite) TestConvertNoFrames() {
	s.extractor.frames = 0

	c, got, err := s.run()
	s.Require().Error(err)
	s.Equal(KindNoFramesExtracted, KindOf(err))
	s.True(errors.Is(err, ErrNoFrames))
	s.Equal(StateFailed, c.State())
	s.NotContains(c.History(), StateProcessing)
	s.NotContains(c.History(), StateAssembling)
	s.Equal(0, s.assembler.calls)

	last := got[len(got)-1]
	s.Equal(events.StepError, last.Step)
	s.Equal(0, last.Progress)
}

func (s *ConvertTestSuite) TestConvertAllFramesCorrupt() {
	s.extractor.frames = 2
	s.extractor.corrupt = map[int]bool{1: true, 2: true}

	c, _, err := s.run()
	s.Require().Error(err)
	s.Equal(KindNoFramesExtracted, KindOf(err))
	s.Equal(StateFailed, c.State())
	s.Equal(0, s.assembler.calls)
}

func (s *ConvertTestSuite) TestConvertExtractorFailure() {
	s.extractor.err = errors.New("exit status 1")

	c, got, err := s.run()
	s.Require().Error(err)
	s.Equal(KindExternalTool, KindOf(err))
	s.Equal(StateFailed, c.State())
	s.Contains(got[len(got)-1].Message, "Video processing failed")
}

func (s *ConvertTestSuite) TestConvertProbeFallsBackToDefault() {
	s.prober = fakeProber{ok: false}
	s.cfg.Stride = 1

	c, _, err := s.run()
	s.Require().NoError(err)
	s.Equal(30.0, s.assembler.fps)
	s.Equal(30.0, c.Stats().FPS)
}

func (s *ConvertTestSuite) TestConvertProbeDefaultFollowsStride() {
	s.prober = fakeProber{ok: false}

	c, _, err := s.run()
	s.Require().NoError(err)
	// default 30 fps, one kept frame out of three
	s.Equal(3, s.cfg.Stride)
	s.Equal(10.0, s.assembler.fps)
	s.Equal(10.0, c.Stats().FPS)
}

func (s *ConvertTestSuite) TestConvertToolNotResolved() {
	s.resolver.err = errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	s.extractor.err = errors.New("must not run")

	c, got, err := s.run()
	s.Require().Error(err)
	s.Equal(KindExternalTool, KindOf(err))
	s.Equal([]State{StateSetup, StateFailed}, c.History())
	s.Equal(1, s.resolver.calls)
	s.Equal(0, s.assembler.calls)

	last := got[len(got)-1]
	s.Equal(events.StepError, last.Step)
	s.Equal(0, last.Progress)
	s.Contains(last.Message, "Video processing failed")
}

func (s *ConvertTestSuite) TestConvertProbeCannotRun() {
	s.prober = fakeProber{err: errors.New("exec: not found")}

	c, _, err := s.run()
	s.Require().Error(err)
	s.Equal(KindExternalTool, KindOf(err))
	s.Equal(StateFailed, c.State())
	s.Equal(0, s.assembler.calls)
}

func (s *ConvertTestSuite) TestConvertAssemblerFailure() {
	s.assembler.err = errors.New("exit status 1")

	c, _, err := s.run()
	s.Require().Error(err)
	s.Equal(KindExternalTool, KindOf(err))
	s.Equal(StateFailed, c.State())
	s.Equal([]State{StateSetup, StateExtracting, StateProcessing, StateAssembling, StateFailed}, c.History())

	// left for the workspace owner on failure
	ok, _ := afero.DirExists(s.fs, s.ws.StereoDir)
	s.True(ok)
	s.NoError(s.ws.Close())
}

func (s *ConvertTestSuite) TestConvertMissingInput() {
	s.Require().NoError(s.fs.Remove("/in/input.mp4"))

	c, _, err := s.run()
	s.Require().Error(err)
	s.Equal(KindUnexpected, KindOf(err))
	s.Equal([]State{StateSetup, StateFailed}, c.History())
}

func (s *ConvertTestSuite) TestConvertSingleWorker() {
	s.cfg.Workers = 1
	s.extractor.frames = 7

	c, _, err := s.run()
	s.Require().NoError(err)
	s.Equal(7, c.Stats().Written)
	s.Len(s.assembler.frames, 7)
}

func TestKindString(t *testing.T) {
	testCases := []struct {
		kind Kind
		want string
	}{
		{KindNoFramesExtracted, "NoFramesExtracted"},
		{KindFrameRead, "FrameReadError"},
		{KindExternalTool, "ExternalToolError"},
		{KindUnexpected, "UnexpectedError"},
	}
	for _, tc := range testCases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("got %s, want %s", got, tc.want)
		}
	}
}

func TestKindOfUntagged(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnexpected {
		t.Error("untagged errors must be unexpected")
	}
	err := errors.Wrap(newError(KindFrameRead, "process", errors.New("bad png")), "outer")
	if KindOf(err) != KindFrameRead {
		t.Errorf("got %s, want FrameReadError", KindOf(err))
	}
}
