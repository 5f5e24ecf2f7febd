// All frame file related functions
package storage

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	_ "golang.org/x/image/webp"

	"github.com/1F47E/go-stereoreel/internal/job"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
)

// ScanFrames lists frame_*.png files in dir, in temporal order.
// Idx is the position in that order, starting at 0.
func ScanFrames(fs afero.Fs, dir string) ([]job.Frame, error) {
	files, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "scan frames dir %s", dir)
	}
	names := make([]string, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if strings.HasPrefix(name, cfg.FramePrefix) && strings.HasSuffix(name, ".png") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	frames := make([]job.Frame, 0, len(names))
	for i, name := range names {
		frames = append(frames, job.Frame{Path: filepath.Join(dir, name), Idx: i})
	}
	return frames, nil
}

// FrameNumber parses the sequence number out of a frame file name.
func FrameNumber(path string) (int, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	n, err := strconv.Atoi(strings.TrimPrefix(name, cfg.FramePrefix))
	if err != nil {
		return 0, errors.Wrapf(err, "bad frame name %s", path)
	}
	return n, nil
}

// ReadFrame decodes a frame. When width and height are positive and the frame
// has another size it is resized to match.
func ReadFrame(fs afero.Fs, path string, width, height int) (image.Image, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.Errorf("empty frame %s", path)
	}
	if width > 0 && height > 0 && (b.Dx() != width || b.Dy() != height) {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	}
	return img, nil
}

// SaveFrame writes img as dir/frame_<seq>.png and returns the path.
func SaveFrame(fs afero.Fs, dir string, seq int, img image.Image) (string, error) {
	if err := fs.MkdirAll(dir, os.ModePerm); err != nil {
		return "", errors.Wrapf(err, "create frames dir %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf(cfg.FramePattern, seq))
	file, err := fs.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(file, img); err != nil {
		file.Close()
		return "", errors.Wrapf(err, "encode %s", path)
	}
	if err := file.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", path)
	}
	return path, nil
}

// Pattern is the printf style input pattern ffmpeg expects for frames in dir.
func Pattern(dir string) string {
	return filepath.Join(dir, cfg.FramePattern)
}
