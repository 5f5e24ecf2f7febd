package video

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/1F47E/go-stereoreel/pkg/config"
)

// stubBinary writes an executable shell script and returns its path.
func stubBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestParseFrameRate(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want float64
		ok   bool
	}{
		{
			name: "integer",
			text: "Stream #0:0(und): Video: h264 (High), yuv420p, 480x270, 30 fps, 30 tbr, 15360 tbn",
			want: 30, ok: true,
		},
		{
			name: "ntsc",
			text: "Video: h264, yuv420p, 1920x1080 [SAR 1:1 DAR 16:9], 29.97 fps, 29.97 tbr",
			want: 29.97, ok: true,
		},
		{
			name: "no space",
			text: "Video: vp9, 1280x720, 24fps",
			want: 24, ok: true,
		},
		{
			name: "no rate",
			text: "Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4': Duration: 00:00:00.33",
			ok:   false,
		},
		{
			name: "empty",
			text: "",
			ok:   false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseFrameRate(tc.text)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatFPS(t *testing.T) {
	assert.Equal(t, "10", FormatFPS(10))
	assert.Equal(t, "9.99", FormatFPS(29.97/3))
	assert.Equal(t, "23.976", FormatFPS(23.976))
}

func TestExtractArgs(t *testing.T) {
	f := New("ffmpeg", cfg.Default())
	args := f.extractArgs("in.mp4", "/w/frames")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i in.mp4")
	assert.Contains(t, joined, "-vf select='not(mod(n,3))',scale=480:270")
	assert.Contains(t, joined, "-fps_mode vfr")
	assert.Equal(t, "/w/frames/frame_%06d.png", args[len(args)-1])
}

func TestAssembleArgs(t *testing.T) {
	f := New("ffmpeg", cfg.Default())
	args := f.assembleArgs("/w/stereo", 10, "in.mp4", "out.mp4")
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-framerate 10 -i /w/stereo/frame_%06d.png -i in.mp4",
		"-map 0:v:0 -map 1:a:0?",
		"-c:v libx264 -crf 20 -preset medium",
		"-c:a aac -b:a 128k",
		"-pix_fmt yuv420p",
		"-movflags +faststart",
	} {
		assert.Contains(t, joined, want)
	}
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestResolveBinary(t *testing.T) {
	bin := stubBinary(t, "exit 0")

	got, err := ResolveBinary(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	t.Setenv("PATH", filepath.Dir(bin))
	got, err = ResolveBinary("")
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = ResolveBinary(filepath.Join(t.TempDir(), "missing-ffmpeg"))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "resolve", toolErr.Op)
}

func TestResolve(t *testing.T) {
	bin := stubBinary(t, "exit 0")
	t.Setenv("PATH", filepath.Dir(bin))

	f := New("", cfg.Default())
	require.NoError(t, f.Resolve(context.Background()))
	assert.Equal(t, bin, f.Bin)

	missing := New(filepath.Join(t.TempDir(), "missing-ffmpeg"), cfg.Default())
	err := missing.Resolve(context.Background())
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "resolve", toolErr.Op)
}

func TestProbeFrameRate(t *testing.T) {
	bin := stubBinary(t, `echo "  Stream #0:0: Video: h264, yuv420p, 480x270, 25 fps, 25 tbr" >&2
exit 1`)
	f := New(bin, cfg.Default())

	fps, ok, err := f.ProbeFrameRate(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 25.0, fps)
}

func TestProbeFrameRateNoMatch(t *testing.T) {
	bin := stubBinary(t, `echo "nothing useful" >&2`)
	f := New(bin, cfg.Default())

	_, ok, err := f.ProbeFrameRate(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbeFrameRateCannotStart(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "absent"), cfg.Default())
	_, _, err := f.ProbeFrameRate(context.Background(), "in.mp4")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "probe", toolErr.Op)
}

func TestAssembleFailureCarriesOutput(t *testing.T) {
	bin := stubBinary(t, `echo "Unknown encoder 'libx264'" >&2
exit 1`)
	f := New(bin, cfg.Default())

	err := f.Assemble(context.Background(), "/w/stereo", 10, "in.mp4", "out.mp4")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "assemble", toolErr.Op)
	assert.Contains(t, err.Error(), "Unknown encoder")
}

func TestExtractFramesRunsBinary(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "args")
	bin := stubBinary(t, `echo "$@" > `+marker)
	f := New(bin, cfg.Default())

	require.NoError(t, f.ExtractFrames(context.Background(), "in.mp4", dir))
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scale=480:270")
}
