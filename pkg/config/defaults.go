package config

import "runtime"

const (
	defaultShiftPixels      = 8
	defaultBlurKernel       = 21
	defaultStride           = 3
	defaultWidth            = 480
	defaultHeight           = 270
	defaultFPS              = 30
	defaultVideoCRF         = 20
	defaultVideoPreset      = "medium"
	defaultAudioBitrate     = "128k"
	defaultProgressInterval = 10
	defaultLogLevel         = "info"

	defaultBind          = ":4040"
	defaultUploadsDir    = "uploads"
	defaultVideosDir     = "videos"
	defaultMaxUploadMB   = 200
	defaultSweepMinutes  = 30
	defaultJobTTLMinutes = 60

	defaultRetentionMinutes      = 60
	defaultVideoRetentionMinutes = 24 * 60
)

// Default returns a Config populated with the reference values.
func Default() Config {
	return Config{
		ShiftPixels:      defaultShiftPixels,
		BlurKernel:       defaultBlurKernel,
		Stride:           defaultStride,
		Width:            defaultWidth,
		Height:           defaultHeight,
		DefaultFPS:       defaultFPS,
		VideoCRF:         defaultVideoCRF,
		VideoPreset:      defaultVideoPreset,
		AudioBitrate:     defaultAudioBitrate,
		Workers:          runtime.NumCPU(),
		ProgressInterval: defaultProgressInterval,
		LogLevel:         defaultLogLevel,
		Server: Server{
			Bind:           defaultBind,
			UploadsDir:     defaultUploadsDir,
			VideosDir:      defaultVideosDir,
			MaxUploadMB:    defaultMaxUploadMB,
			SweepMinutes:   defaultSweepMinutes,
			JobTTLMinutes:  defaultJobTTLMinutes,
			StartupCleanup: true,
		},
		Cleanup: Cleanup{
			RetentionMinutes:      defaultRetentionMinutes,
			VideoRetentionMinutes: defaultVideoRetentionMinutes,
			Lock:                  true,
		},
	}
}
