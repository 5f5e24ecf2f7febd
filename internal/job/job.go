package job

import (
	"fmt"
	"image"
)

// Frame is one extracted still, Idx is its temporal position.
type Frame struct {
	Path string
	Idx  int
}

// job for the stereo worker
type JobFrame struct {
	Frame Frame
}

// res from the stereo worker, Err set when the frame is skipped
type JobRes struct {
	Idx    int
	Stereo *image.RGBA
	Err    error
}

func New(f Frame) JobFrame {
	return JobFrame{Frame: f}
}

func (j JobFrame) Print() string {
	return fmt.Sprintf("Job: Idx: %d, Path: %s", j.Frame.Idx, j.Frame.Path)
}

func (r JobRes) Ok() bool {
	return r.Err == nil && r.Stereo != nil
}
