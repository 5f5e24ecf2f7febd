package video

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/1F47E/go-stereoreel/internal/storage"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
	"github.com/1F47E/go-stereoreel/pkg/logger"
)

var fpsPattern = regexp.MustCompile(`(\d+\.?\d*)\s*fps`)

// ToolError is a failed or unstartable ffmpeg invocation.
type ToolError struct {
	Tool   string
	Op     string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, e.Op, e.Err)
	if e.Output != "" {
		msg += ": " + lastLines(e.Output, 5)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// ResolveBinary returns the configured ffmpeg path, or looks ffmpeg up on PATH.
func ResolveBinary(configured string) (string, error) {
	configured = strings.TrimSpace(configured)
	name := configured
	if name == "" {
		name = "ffmpeg"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &ToolError{
			Tool: name,
			Op:   "resolve",
			Err:  errors.Wrapf(err, "set ffmpeg_path or %s", cfg.EnvFFmpeg),
		}
	}
	return path, nil
}

// FFmpeg drives the external transcoder for extraction, probing and assembly.
type FFmpeg struct {
	Bin          string
	Width        int
	Height       int
	Stride       int
	CRF          int
	Preset       string
	AudioBitrate string
}

func New(bin string, c cfg.Config) *FFmpeg {
	return &FFmpeg{
		Bin:          bin,
		Width:        c.Width,
		Height:       c.Height,
		Stride:       c.Stride,
		CRF:          c.VideoCRF,
		Preset:       c.VideoPreset,
		AudioBitrate: c.AudioBitrate,
	}
}

// Resolve swaps Bin for the path it resolves to, ffmpeg on PATH when empty.
func (f *FFmpeg) Resolve(context.Context) error {
	path, err := ResolveBinary(f.Bin)
	if err != nil {
		return err
	}
	f.Bin = path
	return nil
}

// call ffmpeg to decode every Stride-th frame into numbered PNGs in dir
func (f *FFmpeg) ExtractFrames(ctx context.Context, input, dir string) error {
	_, err := f.run(ctx, "extract", f.extractArgs(input, dir))
	return err
}

func (f *FFmpeg) extractArgs(input, dir string) []string {
	filter := fmt.Sprintf("select='not(mod(n,%d))',scale=%d:%d", f.Stride, f.Width, f.Height)
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-vf", filter,
		"-fps_mode", "vfr",
		storage.Pattern(dir),
	}
}

// ProbeFrameRate reads the source frame rate from ffmpeg's stream report.
// ok is false when no rate could be parsed. An error is returned only when
// ffmpeg could not be started at all.
func (f *FFmpeg) ProbeFrameRate(ctx context.Context, input string) (float64, bool, error) {
	args := []string{"-hide_banner", "-i", input, "-frames:v", "1", "-f", "null", "-"}
	logger.Log.Debugf("Running ffmpeg command: %s %s", f.Bin, strings.Join(args, " "))
	out, err := exec.CommandContext(ctx, f.Bin, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return 0, false, &ToolError{Tool: f.Bin, Op: "probe", Err: err}
		}
		logger.Log.Debugf("ffmpeg probe exited with %v, parsing output anyway", err)
	}
	fps, ok := ParseFrameRate(string(out))
	return fps, ok, nil
}

// call ffmpeg to encode frames in dir plus the input's audio into output
func (f *FFmpeg) Assemble(ctx context.Context, dir string, fps float64, input, output string) error {
	_, err := f.run(ctx, "assemble", f.assembleArgs(dir, fps, input, output))
	return err
}

func (f *FFmpeg) assembleArgs(dir string, fps float64, input, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-framerate", FormatFPS(fps),
		"-i", storage.Pattern(dir),
		"-i", input,
		"-map", "0:v:0", "-map", "1:a:0?",
		"-c:v", "libx264", "-crf", strconv.Itoa(f.CRF), "-preset", f.Preset,
		"-c:a", "aac", "-b:a", f.AudioBitrate,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		output,
	}
}

func (f *FFmpeg) run(ctx context.Context, op string, args []string) ([]byte, error) {
	logger.Log.Debugf("Running ffmpeg command: %s %s", f.Bin, strings.Join(args, " "))
	out, err := exec.CommandContext(ctx, f.Bin, args...).CombinedOutput()
	if err != nil {
		return out, &ToolError{Tool: f.Bin, Op: op, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return out, nil
}

// ParseFrameRate finds the first "<number> fps" in text.
func ParseFrameRate(text string) (float64, bool) {
	m := fpsPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	fps, err := strconv.ParseFloat(m[1], 64)
	if err != nil || fps <= 0 {
		return 0, false
	}
	return fps, true
}

// FormatFPS renders fps for ffmpeg, rounded to millis.
func FormatFPS(fps float64) string {
	return strconv.FormatFloat(math.Round(fps*1000)/1000, 'f', -1, 64)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
