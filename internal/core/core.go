package core

import (
	"context"
	"sync"

	"github.com/1F47E/go-stereoreel/internal/events"
	"github.com/1F47E/go-stereoreel/internal/storage"
	"github.com/1F47E/go-stereoreel/internal/workers"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
	"github.com/1F47E/go-stereoreel/pkg/logger"
)

var log = logger.Log

// Resolver locates the external tools before any work starts.
type Resolver interface {
	Resolve(ctx context.Context) error
}

// Extractor decodes every Stride-th frame of input into dir as numbered PNGs.
type Extractor interface {
	ExtractFrames(ctx context.Context, input, dir string) error
}

// Prober reports the source frame rate, ok is false when it is unknown.
type Prober interface {
	ProbeFrameRate(ctx context.Context, input string) (fps float64, ok bool, err error)
}

// Assembler encodes the numbered frames in dir plus the input's audio.
type Assembler interface {
	Assemble(ctx context.Context, dir string, fps float64, input, output string) error
}

// Tools groups the external collaborators of a run.
type Tools struct {
	Resolver  Resolver
	Extractor Extractor
	Prober    Prober
	Assembler Assembler
}

// Stats summarises a run.
type Stats struct {
	Extracted int
	Written   int
	Skipped   int
	FPS       float64
}

type Core struct {
	ctx      context.Context
	cfg      cfg.Config
	ws       *storage.Workspace
	tools    Tools
	synth    workers.Synthesizer
	eventsCh chan<- events.Event

	mu       sync.Mutex
	state    State
	history  []State
	progress int
	stats    Stats
}

// NewCore wires one conversion run. eventsCh may be nil.
func NewCore(ctx context.Context, c cfg.Config, ws *storage.Workspace, tools Tools, synth workers.Synthesizer, eventsCh chan<- events.Event) *Core {
	return &Core{
		ctx:      ctx,
		cfg:      c,
		ws:       ws,
		tools:    tools,
		synth:    synth,
		eventsCh: eventsCh,
		state:    StateSetup,
		history:  []State{StateSetup},
	}
}

func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History lists every state the run went through, in order.
func (c *Core) History() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]State(nil), c.history...)
}

func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Core) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() || c.state == s {
		return
	}
	c.state = s
	c.history = append(c.history, s)
	log.WithField("scope", "core").Debugf("state %s", s)
}

// emit sends an event, holding progress non-decreasing outside of errors.
func (c *Core) emit(step events.Step, msg string, progress int) {
	e := events.New(step, msg, progress)
	c.mu.Lock()
	if step == events.StepError {
		e.Progress = 0
	} else if e.Progress < c.progress {
		e.Progress = c.progress
	}
	c.progress = e.Progress
	c.mu.Unlock()

	if c.eventsCh == nil {
		return
	}
	select {
	case c.eventsCh <- e:
	case <-c.ctx.Done():
	}
}
