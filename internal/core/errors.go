package core

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindNoFramesExtracted
	KindFrameRead
	KindExternalTool
)

func (k Kind) String() string {
	switch k {
	case KindNoFramesExtracted:
		return "NoFramesExtracted"
	case KindFrameRead:
		return "FrameReadError"
	case KindExternalTool:
		return "ExternalToolError"
	default:
		return "UnexpectedError"
	}
}

var (
	ErrNoFrames       = errors.New("no frames extracted from video")
	ErrNoStereoFrames = errors.New("no stereo frames produced")
)

// Error tags a pipeline failure with its kind and the step that raised it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause keeps pkg/errors.Cause walking through the tag.
func (e *Error) Cause() error { return e.Err }

func newError(kind Kind, op string, err error) error {
	return errors.WithStack(&Error{Kind: kind, Op: op, Err: err})
}

// KindOf classifies err, anything untagged is unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// userMessage is the text of the error progress event.
func userMessage(err error) string {
	if KindOf(err) == KindExternalTool {
		return "Video processing failed: " + err.Error()
	}
	return "Conversion failed: " + err.Error()
}
