package cleanup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	cfg "github.com/1F47E/go-stereoreel/pkg/config"
	"github.com/1F47E/go-stereoreel/pkg/logger"
)

// dirs left behind by conversion runs, current and legacy layouts
var dirPatterns = []string{
	cfg.PrefixFramesDir + "*",
	cfg.PrefixStereoDir + "*",
	"out_frames*",
	"frames",
	"stereo_frames",
}

var imagePatterns = []string{"*.png", "*.jpg", "*.jpeg"}

var ErrBusy = errors.New("another sweep holds the lock")

type Kind string

const (
	KindDir    Kind = "dir"
	KindImage  Kind = "image"
	KindUpload Kind = "upload"
	KindVideo  Kind = "video"
)

type Item struct {
	Path string
	Kind Kind
	Size int64
}

type Failure struct {
	Path string
	Err  error
}

type Report struct {
	Removed   []Item
	Failed    []Failure
	Remaining []string
}

func (r Report) Count() int { return len(r.Removed) }

func (r Report) Bytes() int64 {
	var n int64
	for _, it := range r.Removed {
		n += it.Size
	}
	return n
}

// Sweeper removes residue of crashed or abandoned runs. Every removal is
// best-effort: failures are logged, collected and the sweep goes on.
type Sweeper struct {
	Fs         afero.Fs
	Root       string
	UploadsDir string
	VideosDir  string
	// uploads older than this are removed
	Retention time.Duration
	// videos older than this are removed, 0 keeps them
	VideoRetention time.Duration
	// temp dirs younger than this are kept, 0 removes any
	DirAge   time.Duration
	LockPath string
	Now      func() time.Time

	mu sync.Mutex
}

func New(fs afero.Fs, root string) *Sweeper {
	return &Sweeper{
		Fs:        fs,
		Root:      root,
		Retention: time.Hour,
		Now:       time.Now,
	}
}

// Sweep runs one pass. It only fails when the lock cannot be taken.
func (s *Sweeper) Sweep() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.LockPath != "" {
		lock := flock.New(s.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return Report{}, errors.Wrapf(err, "lock %s", s.LockPath)
		}
		if !locked {
			return Report{}, ErrBusy
		}
		defer func() { _ = lock.Unlock() }()
	}

	log := logger.Log.WithField("scope", "cleanup")
	log.Debugf("Starting cleanup of %s", s.Root)

	var r Report
	s.sweepDirs(&r)
	s.sweepImages(&r)
	if s.UploadsDir != "" {
		s.sweepOld(&r, s.UploadsDir, s.Retention, KindUpload)
	}
	if s.VideosDir != "" && s.VideoRetention > 0 {
		s.sweepOld(&r, s.VideosDir, s.VideoRetention, KindVideo)
	}
	r.Remaining = s.remaining()

	log.Infof("Cleanup completed, removed %d items", r.Count())
	if len(r.Remaining) > 0 {
		log.Warnf("Remaining temp directories: %v", r.Remaining)
	}
	return r, nil
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Sweeper) sweepDirs(r *Report) {
	for _, pattern := range dirPatterns {
		matches, err := afero.Glob(s.Fs, filepath.Join(s.Root, pattern))
		if err != nil {
			r.fail(pattern, err)
			continue
		}
		for _, dir := range matches {
			info, err := s.Fs.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
			if s.DirAge > 0 && s.now().Sub(info.ModTime()) < s.DirAge {
				continue
			}
			size := dirSize(s.Fs, dir)
			if err := s.Fs.RemoveAll(dir); err != nil {
				r.fail(dir, err)
				continue
			}
			r.remove(Item{Path: dir, Kind: KindDir, Size: size})
		}
	}
}

func (s *Sweeper) sweepImages(r *Report) {
	for _, pattern := range imagePatterns {
		matches, err := afero.Glob(s.Fs, filepath.Join(s.Root, pattern))
		if err != nil {
			r.fail(pattern, err)
			continue
		}
		for _, file := range matches {
			name := filepath.Base(file)
			if !strings.Contains(name, cfg.FramePrefix) && !strings.HasPrefix(name, "temp_") {
				continue
			}
			info, err := s.Fs.Stat(file)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := s.Fs.Remove(file); err != nil {
				r.fail(file, err)
				continue
			}
			r.remove(Item{Path: file, Kind: KindImage, Size: info.Size()})
		}
	}
}

func (s *Sweeper) sweepOld(r *Report, dir string, maxAge time.Duration, kind Kind) {
	files, err := afero.ReadDir(s.Fs, dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.fail(dir, err)
		}
		return
	}
	cutoff := s.now().Add(-maxAge)
	for _, info := range files {
		if !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, info.Name())
		if err := s.Fs.Remove(path); err != nil {
			r.fail(path, err)
			continue
		}
		r.remove(Item{Path: path, Kind: kind, Size: info.Size()})
	}
}

func (s *Sweeper) remaining() []string {
	entries, err := afero.ReadDir(s.Fs, s.Root)
	if err != nil {
		return nil
	}
	var left []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(name, "temp_") || strings.HasPrefix(name, "out_") || name == "frames" || name == "stereo_frames" {
			left = append(left, name)
		}
	}
	sort.Strings(left)
	return left
}

func (r *Report) remove(it Item) {
	logger.Log.WithField("scope", "cleanup").Debugf("Removed %s %s", it.Kind, it.Path)
	r.Removed = append(r.Removed, it)
}

func (r *Report) fail(path string, err error) {
	logger.Log.WithField("scope", "cleanup").Warnf("Error removing %s: %v", path, err)
	r.Failed = append(r.Failed, Failure{Path: path, Err: err})
}

func dirSize(fs afero.Fs, dir string) int64 {
	var size int64
	_ = afero.Walk(fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	return size
}
