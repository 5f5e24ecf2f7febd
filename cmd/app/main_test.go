package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/1F47E/go-stereoreel/internal/core"
	"github.com/1F47E/go-stereoreel/internal/events"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
)

func runApp(t *testing.T, args ...string) (int, error) {
	t.Helper()
	code := -1
	oldExiter, oldErr := cli.OsExiter, cli.ErrWriter
	cli.OsExiter = func(c int) { code = c }
	cli.ErrWriter = &bytes.Buffer{}
	t.Cleanup(func() {
		cli.OsExiter = oldExiter
		cli.ErrWriter = oldErr
	})
	err := app.Run(append([]string{"stereoreel"}, args...))
	return code, err
}

func TestConvertArgCount(t *testing.T) {
	cases := [][]string{
		{"convert"},
		{"convert", "in.mp4"},
		{"convert", "in.mp4", "out.mp4", "extra"},
	}
	for _, args := range cases {
		code, err := runApp(t, args...)
		require.Error(t, err, args)
		exit, ok := err.(cli.ExitCoder)
		require.True(t, ok, args)
		assert.Equal(t, 1, exit.ExitCode())
		assert.Equal(t, 1, code)
		assert.Contains(t, err.Error(), "Usage: stereoreel convert <input_video> <output_video>")
	}
}

func TestCleanupArgCount(t *testing.T) {
	code, err := runApp(t, "cleanup", "a", "b")
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestConverterMissingFFmpeg(t *testing.T) {
	conf := cfg.Default()
	conf.FFmpegPath = filepath.Join(t.TempDir(), "no-such-ffmpeg")
	conf.WorkDir = t.TempDir()

	ch := make(chan events.Event, 4)
	err := newConverter(conf).Convert(context.Background(), "in.mp4", "out.mp4", ch)
	close(ch)
	require.Error(t, err)

	assert.Equal(t, core.KindExternalTool, core.KindOf(err))

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, events.StepError, last.Step)
	assert.Zero(t, last.Progress)
	assert.Contains(t, last.Message, "Video processing failed")
}
