package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// NOTE: frames are numbered from 1, zero padded so lexical order is temporal order
const (
	FramePrefix  = "frame_"
	FramePattern = "frame_%06d.png"
	FrameGlob    = "frame_*.png"

	// workspace dirs, also matched by the cleanup sweep
	PrefixFramesDir = "temp_frames_"
	PrefixStereoDir = "temp_stereo_"

	// env overrides
	EnvFFmpeg  = "STEREOREEL_FFMPEG"
	EnvWorkers = "STEREOREEL_WORKERS"
)

// Config holds every parameter of a conversion run and of the server.
// A value is treated as immutable once a run starts.
type Config struct {
	// stereo
	ShiftPixels float64 `toml:"shift_pixels"`
	BlurKernel  int     `toml:"blur_kernel"`

	// extraction
	Stride int `toml:"stride"`
	Width  int `toml:"width"`
	Height int `toml:"height"`

	// assembly
	DefaultFPS   float64 `toml:"default_fps"`
	VideoCRF     int     `toml:"video_crf"`
	VideoPreset  string  `toml:"video_preset"`
	AudioBitrate string  `toml:"audio_bitrate"`

	// runtime
	FFmpegPath       string `toml:"ffmpeg_path"`
	WorkDir          string `toml:"work_dir"`
	Workers          int    `toml:"workers"`
	ProgressInterval int    `toml:"progress_interval"`
	LogLevel         string `toml:"log_level"`

	Server  Server  `toml:"server"`
	Cleanup Cleanup `toml:"cleanup"`
}

// Server configures the HTTP job server.
type Server struct {
	Bind           string `toml:"bind"`
	UploadsDir     string `toml:"uploads_dir"`
	VideosDir      string `toml:"videos_dir"`
	MaxUploadMB    int64  `toml:"max_upload_mb"`
	SweepMinutes   int    `toml:"sweep_minutes"`
	JobTTLMinutes  int    `toml:"job_ttl_minutes"`
	StartupCleanup bool   `toml:"startup_cleanup"`
}

// Cleanup configures the residue sweep.
type Cleanup struct {
	RetentionMinutes      int  `toml:"retention_minutes"`
	VideoRetentionMinutes int  `toml:"video_retention_minutes"`
	Lock                  bool `toml:"lock"`
}

// Load reads a toml file over the defaults. An empty path or a missing file
// yields the defaults. Env overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvFFmpeg)); v != "" {
		c.FFmpegPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	c.FFmpegPath = strings.TrimSpace(c.FFmpegPath)
}
