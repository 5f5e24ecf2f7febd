package events

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar renders events as a single terminal progress bar out of 100.
type Bar struct {
	bar *progressbar.ProgressBar
	w   io.Writer
}

func NewBar(w io.Writer) *Bar {
	return &Bar{bar: barCreate(w, ""), w: w}
}

func (b *Bar) Handle(e Event) {
	switch e.Step {
	case StepError:
		_ = b.bar.Clear()
		b.bar = barCreate(b.w, "[red]"+e.Message+"[reset]")
		_ = b.bar.RenderBlank()
	case StepComplete:
		b.bar.Describe(e.Message)
		_ = b.bar.Set(e.Progress)
		_ = b.bar.Finish()
	default:
		b.bar.Describe(e.Message)
		_ = b.bar.Set(e.Progress)
	}
}

func barCreate(w io.Writer, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]/[reset]",
			SaucerHead:    "[green]/[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
