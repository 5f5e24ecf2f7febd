package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	cfg "github.com/1F47E/go-stereoreel/pkg/config"
	"github.com/1F47E/go-stereoreel/pkg/logger"
)

// Workspace is the scoped pair of temp dirs owned by one conversion run.
type Workspace struct {
	Fs        afero.Fs
	ID        string
	FramesDir string
	StereoDir string

	closeOnce sync.Once
	closeErr  error
}

// NewWorkspace creates temp_frames_<id> and temp_stereo_<id> under base.
func NewWorkspace(fs afero.Fs, base string) (*Workspace, error) {
	id := uuid.NewString()
	ws := &Workspace{
		Fs:        fs,
		ID:        id,
		FramesDir: filepath.Join(base, cfg.PrefixFramesDir+id),
		StereoDir: filepath.Join(base, cfg.PrefixStereoDir+id),
	}
	for _, dir := range []string{ws.FramesDir, ws.StereoDir} {
		if err := fs.MkdirAll(dir, os.ModePerm); err != nil {
			_ = ws.Close()
			return nil, errors.Wrapf(err, "create workspace dir %s", dir)
		}
	}
	logger.Log.WithField("scope", "workspace").Debugf("created %s", id)
	return ws, nil
}

// Close removes both dirs. Safe to call more than once.
func (w *Workspace) Close() error {
	w.closeOnce.Do(func() {
		log := logger.Log.WithField("scope", "workspace")
		for _, dir := range []string{w.FramesDir, w.StereoDir} {
			if err := w.Fs.RemoveAll(dir); err != nil {
				log.Warnf("cannot remove %s: %v", dir, err)
				if w.closeErr == nil {
					w.closeErr = errors.Wrapf(err, "remove %s", dir)
				}
			}
		}
		log.Debugf("removed %s", w.ID)
	})
	return w.closeErr
}
