// Package watch re-runs a sync pass whenever one of the watched files
// changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Trigger runs one pass. Errors are logged; they do not stop the watcher.
type Trigger func(ctx context.Context) error

type Watcher struct {
	files      map[string]struct{}
	dirs       []string
	trigger    Trigger
	limiter    *rate.Limiter
	logger     *zap.Logger
	runOnStart bool
	pending    chan struct{}
}

type Option func(*Watcher)

// WithMinInterval spaces consecutive passes at least interval apart.
func WithMinInterval(interval time.Duration) Option {
	return func(w *Watcher) {
		if interval > 0 {
			w.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRunOnStart runs one pass before any change is observed.
func WithRunOnStart() Option {
	return func(w *Watcher) {
		w.runOnStart = true
	}
}

// New watches the given files. Their parent directories are watched so
// that editors replacing a file by rename are still observed.
func New(files []string, trigger Trigger, opts ...Option) (*Watcher, error) {
	if len(files) == 0 {
		return nil, errors.New("watch: no files to watch")
	}
	if trigger == nil {
		return nil, errors.New("watch: trigger is required")
	}

	w := &Watcher{
		files:   make(map[string]struct{}, len(files)),
		trigger: trigger,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
		pending: make(chan struct{}, 1),
	}
	seenDirs := make(map[string]struct{})
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %q: %w", file, err)
		}
		w.files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := seenDirs[dir]; !ok {
			seenDirs[dir] = struct{}{}
			w.dirs = append(w.dirs, dir)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run blocks until ctx is cancelled. It returns nil on cancellation and an
// error only when the file watcher cannot be set up or fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch: add %q: %w", dir, err)
		}
		w.logger.Debug("watching directory", zap.String("dir", dir))
	}

	if w.runOnStart {
		w.signal()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.observe(gctx, fw) })
	g.Go(func() error { return w.dispatch(gctx) })

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Watcher) observe(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("watch: event stream closed")
			}
			if w.relevant(event) {
				w.logger.Debug("source changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
				w.signal()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watch: error stream closed")
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.pending:
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := w.trigger(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("sync pass failed", zap.Error(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}

// signal marks a pass as pending. Signals arriving while one is already
// pending are coalesced.
func (w *Watcher) signal() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}
