package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/async"
)

// DoneSuffix marks spool files whose job has finished.
const DoneSuffix = ".done"

// SpoolSource is a PollableSource over a drop directory. Files appearing in
// the directory become messages; Ack renames a file with DoneSuffix and Nack
// returns it to the ready set for a later poll.
type SpoolSource struct {
	dir    string
	batch  int
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	ready    []string
	queued   map[string]struct{}
	inflight map[string]struct{}
}

// NewSpoolSource creates dir if needed and starts watching it. Files already
// present are picked up by the first poll.
func NewSpoolSource(ctx context.Context, dir string, batch int, logger *slog.Logger) (*SpoolSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, errors.New("spool directory is required")
	}
	if batch <= 0 {
		batch = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create spool dir %s", dir)
	}

	wctx, cancel := context.WithCancel(ctx)
	events, errs, err := StartWatcher(wctx, WatchConfig{
		Roots:       []string{dir},
		SkipHidden:  true,
		InitialScan: true,
		Debounce:    250 * time.Millisecond,
	}, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &SpoolSource{
		dir:      dir,
		batch:    batch,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		queued:   make(map[string]struct{}),
		inflight: make(map[string]struct{}),
	}
	go s.collect(events, errs)
	logger.Info("watching spool directory", "dir", dir)
	return s, nil
}

func (s *SpoolSource) collect(events <-chan string, errs <-chan error) {
	defer close(s.done)
	for events != nil || errs != nil {
		select {
		case p, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.enqueue(p)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("spool watcher error", "error", err)
		}
	}
}

func (s *SpoolSource) enqueue(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queued[path]; ok {
		return
	}
	if _, ok := s.inflight[path]; ok {
		return
	}
	s.queued[path] = struct{}{}
	s.ready = append(s.ready, path)
}

// Poll implements async.PollableSource.
func (s *SpoolSource) Poll(ctx context.Context) ([]async.Message, error) {
	var out []async.Message
	for len(out) < s.batch {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path, ok := s.next()
		if !ok {
			break
		}
		payload, err := os.ReadFile(path)
		if err != nil {
			s.release(path)
			if !os.IsNotExist(err) {
				s.logger.Warn("failed to read spool file", "path", path, "error", err)
			}
			continue
		}
		out = append(out, async.NewMessage(
			filepath.Base(path),
			payload,
			constants.ContentTypeForExt(filepath.Ext(path)),
			map[string]any{"source_path": path},
			func(context.Context) error { return s.ack(path) },
			func(context.Context) error { return s.nack(path) },
		))
	}
	return out, nil
}

// next moves the oldest ready path to the in-flight set.
func (s *SpoolSource) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return "", false
	}
	path := s.ready[0]
	s.ready = s.ready[1:]
	delete(s.queued, path)
	s.inflight[path] = struct{}{}
	return path, true
}

func (s *SpoolSource) release(path string) {
	s.mu.Lock()
	delete(s.inflight, path)
	s.mu.Unlock()
}

func (s *SpoolSource) ack(path string) error {
	defer s.release(path)
	if err := os.Rename(path, path+DoneSuffix); err != nil {
		return errors.Wrapf(err, "mark %s done", path)
	}
	s.logger.Debug("spool file done", "path", path)
	return nil
}

func (s *SpoolSource) nack(path string) error {
	s.release(path)
	s.enqueue(path)
	return nil
}

// Pending is the number of files waiting for a poll.
func (s *SpoolSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}

// Close stops the watcher.
func (s *SpoolSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}
