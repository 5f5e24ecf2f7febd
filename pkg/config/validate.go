package config

import (
	"math"

	"github.com/pkg/errors"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStereo(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateAssembly(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStereo() error {
	if !finite(c.ShiftPixels) {
		return errors.Errorf("shift_pixels must be a finite number, got %v", c.ShiftPixels)
	}
	if c.ShiftPixels < 0 {
		return errors.New("shift_pixels must not be negative")
	}
	if c.BlurKernel < 0 {
		return errors.New("blur_kernel must not be negative")
	}
	if c.BlurKernel > 0 && c.BlurKernel%2 == 0 {
		return errors.Errorf("blur_kernel must be odd, got %d", c.BlurKernel)
	}
	return nil
}

func (c *Config) validateExtraction() error {
	if c.Stride < 1 {
		return errors.New("stride must be at least 1")
	}
	if c.Width < 1 || c.Height < 1 {
		return errors.Errorf("decode resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	// yuv420p needs even dimensions on the doubled output
	if c.Height%2 != 0 {
		return errors.Errorf("height must be even, got %d", c.Height)
	}
	return nil
}

func (c *Config) validateAssembly() error {
	if !finite(c.DefaultFPS) || c.DefaultFPS <= 0 {
		return errors.New("default_fps must be positive")
	}
	if c.VideoCRF < 0 || c.VideoCRF > 51 {
		return errors.Errorf("video_crf must be between 0 and 51, got %d", c.VideoCRF)
	}
	if c.VideoPreset == "" {
		return errors.New("video_preset must be set")
	}
	if c.AudioBitrate == "" {
		return errors.New("audio_bitrate must be set")
	}
	if c.ProgressInterval < 1 {
		return errors.New("progress_interval must be at least 1")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if c.Cleanup.RetentionMinutes <= 0 {
		return errors.New("cleanup.retention_minutes must be positive")
	}
	if c.Cleanup.VideoRetentionMinutes < 0 {
		return errors.New("cleanup.video_retention_minutes must not be negative")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
