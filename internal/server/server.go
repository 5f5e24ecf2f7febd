package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/1F47E/go-stereoreel/internal/cleanup"
	"github.com/1F47E/go-stereoreel/internal/events"
	cfg "github.com/1F47E/go-stereoreel/pkg/config"
	"github.com/1F47E/go-stereoreel/pkg/logger"
)

var log = logger.Log.WithField("scope", "server")

const (
	uploadField   = "video"
	outputSuffix  = "_stereo180.mp4"
	failedMessage = "Processing failed. Please try again with a smaller video."
)

var timestampPrefix = regexp.MustCompile(`^\d+_`)

// Converter turns input into a stereo video at output, reporting progress on
// eventsCh. The caller closes eventsCh after Convert returns.
type Converter interface {
	Convert(ctx context.Context, input, output string, eventsCh chan<- events.Event) error
}

type ConverterFunc func(ctx context.Context, input, output string, eventsCh chan<- events.Event) error

func (f ConverterFunc) Convert(ctx context.Context, input, output string, eventsCh chan<- events.Event) error {
	return f(ctx, input, output, eventsCh)
}

type Server struct {
	cfg     cfg.Server
	fs      afero.Fs
	conv    Converter
	sweeper *cleanup.Sweeper
	jobs    *registry
	started time.Time
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	http *http.Server
}

func New(c cfg.Server, fs afero.Fs, conv Converter, sweeper *cleanup.Sweeper) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     c,
		fs:      fs,
		conv:    conv,
		sweeper: sweeper,
		jobs:    newRegistry(),
		started: time.Now(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /progress/{id}", s.handleProgress)
	mux.HandleFunc("GET /download/{name}", s.handleDownload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /cleanup", s.handleCleanup)
	return mux
}

// Run serves until ctx is done, then waits for running jobs to stop.
func (s *Server) Run(ctx context.Context) error {
	for _, dir := range []string{s.cfg.UploadsDir, s.cfg.VideosDir} {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	if s.cfg.StartupCleanup {
		s.sweep()
	}

	listener, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	log.Infof("VR180 server listening on %s", listener.Addr())

	go s.maintain(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			s.Close()
			return errors.Wrap(err, "serve")
		}
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.http.Shutdown(shutdownCtx)
	s.Close()
	return nil
}

// Close cancels running jobs and waits for them to finish.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) maintain(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
			s.expire()
		}
	}
}

func (s *Server) sweep() cleanup.Report {
	if s.sweeper == nil {
		return cleanup.Report{}
	}
	r, err := s.sweeper.Sweep()
	if err != nil {
		log.Warnf("cleanup skipped: %v", err)
	}
	return r
}

func (s *Server) expire() {
	ttl := time.Duration(s.cfg.JobTTLMinutes) * time.Minute
	if ttl <= 0 {
		return
	}
	if ids := s.jobs.expire(s.now().Add(-ttl)); len(ids) > 0 {
		log.Infof("Cleaned up %d old job statuses", len(ids))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadMB << 20
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	now := s.now()
	input := filepath.Join(s.cfg.UploadsDir, fmt.Sprintf("%d_%s", now.UnixNano(), sanitize(header.Filename)))
	if err := s.save(file, input); err != nil {
		log.Errorf("saving upload: %v", err)
		_ = s.fs.Remove(input)
		s.writeError(w, http.StatusInternalServerError, "Cannot store upload")
		return
	}

	fileName := fmt.Sprintf("%d%s", now.UnixMilli(), outputSuffix)
	output := filepath.Join(s.cfg.VideosDir, fileName)
	j := s.jobs.add(input, output, fileName, now)
	log.Infof("Starting processing for job %s, input %s, output %s", j.ID, input, output)

	s.wg.Add(1)
	go s.process(j.ID, input, output, fileName)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"jobId":   j.ID,
		"message": "Processing started",
	})
}

func (s *Server) save(src io.Reader, path string) error {
	dst, err := s.fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Server) process(id, input, output, fileName string) {
	defer s.wg.Done()

	eventsCh := make(chan events.Event, 16)
	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		for e := range eventsCh {
			s.jobs.update(id, func(st *JobStatus) {
				if e.Step == events.StepError || e.Step == events.StepComplete {
					return
				}
				st.Step = e.Step
				st.Message = e.Message
				st.Progress = e.Progress
				st.FileName = fileName
				st.Status = StatusProcessing
			})
		}
	}()

	err := s.conv.Convert(s.ctx, input, output, eventsCh)
	close(eventsCh)
	drained.Wait()

	if rmErr := s.fs.Remove(input); rmErr == nil {
		log.Debugf("Cleaned up input file: %s", input)
	}

	if err != nil {
		log.Errorf("Process failed for job %s: %v", id, err)
		if rmErr := s.fs.Remove(output); rmErr == nil {
			log.Debugf("Cleaned up partial output: %s", output)
		}
		s.jobs.update(id, func(st *JobStatus) {
			*st = JobStatus{Step: events.StepError, Message: failedMessage, Status: StatusError}
		})
		return
	}
	log.Infof("Success for job %s", id)
	s.jobs.update(id, func(st *JobStatus) {
		*st = JobStatus{
			Step:     events.StepComplete,
			Message:  "VR video ready for download!",
			Progress: 100,
			FileName: fileName,
			Status:   StatusCompleted,
		}
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	st, ok := s.jobs.status(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		s.writeError(w, http.StatusBadRequest, "Invalid file name")
		return
	}
	path := filepath.Join(s.cfg.VideosDir, name)
	f, err := s.fs.Open(path)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "Video not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DownloadName(name)))
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, name, info.ModTime(), f)
	log.Infof("Downloaded: %s", name)
}

// DownloadName drops the timestamp prefix and tags the name as VR180.
func DownloadName(name string) string {
	clean := timestampPrefix.ReplaceAllString(name, "")
	return strings.Replace(clean, ".mp4", "_VR180.mp4", 1)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"activeJobs":    s.jobs.active(),
		"uploadsCount":  s.countEntries(s.cfg.UploadsDir, nil),
		"videosCount":   s.countEntries(s.cfg.VideosDir, nil),
		"tempDirsCount": s.countTempDirs(),
		"timestamp":     s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, _ *http.Request) {
	r := s.sweep()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Cleanup completed successfully",
		"removed": r.Count(),
	})
}

func (s *Server) countEntries(dir string, keep func(name string, isDir bool) bool) int {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if keep == nil || keep(e.Name(), e.IsDir()) {
			n++
		}
	}
	return n
}

func (s *Server) countTempDirs() int {
	if s.sweeper == nil {
		return 0
	}
	return s.countEntries(s.sweeper.Root, func(name string, isDir bool) bool {
		return isDir && (strings.HasPrefix(name, cfg.PrefixFramesDir) || strings.HasPrefix(name, cfg.PrefixStereoDir))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
