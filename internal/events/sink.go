package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/1F47E/go-stereoreel/pkg/logger"
)

// Prefix marks progress lines among other process output.
const Prefix = "PROGRESS:"

type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Handle(e Event) { f(e) }

// Run drains ch into every sink until ch is closed or ctx is done.
func Run(ctx context.Context, ch <-chan Event, sinks ...Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			for _, s := range sinks {
				s.Handle(e)
			}
		}
	}
}

// JSONLines writes one PROGRESS:{json} line per event.
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

type syncer interface {
	Sync() error
}

type flusher interface {
	Flush() error
}

func (j *JSONLines) Handle(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Log.Warnf("cannot encode progress event: %v", err)
		return
	}
	line := make([]byte, 0, len(Prefix)+len(data)+1)
	line = append(line, Prefix...)
	line = append(line, data...)
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(line); err != nil {
		logger.Log.Warnf("cannot write progress event: %v", err)
		return
	}
	switch w := j.w.(type) {
	case flusher:
		_ = w.Flush()
	case syncer:
		_ = w.Sync()
	}
}

// Parse reads a PROGRESS: line back into an Event.
func Parse(line string) (Event, bool) {
	if len(line) < len(Prefix) || line[:len(Prefix)] != Prefix {
		return Event{}, false
	}
	var e Event
	if err := json.Unmarshal([]byte(line[len(Prefix):]), &e); err != nil {
		return Event{}, false
	}
	return e, true
}
