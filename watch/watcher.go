// Package watch turns a directory into a hot folder: every PDF that is
// created or rewritten there is handed to a handler once writes settle.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period after the last write to a file.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one settled file. Calls are sequential.
type Handler func(ctx context.Context, path string)

// Watcher monitors one directory (not recursively) for PDF files.
type Watcher struct {
	dir     string
	handle  Handler
	delay   time.Duration
	ignore  func(path string) bool
	initial bool
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// WithIgnore skips paths for which fn returns true, e.g. the watcher's own
// outputs.
func WithIgnore(fn func(path string) bool) Option {
	return func(w *Watcher) { w.ignore = fn }
}

// WithInitialScan also handles the PDFs already present when Run starts.
func WithInitialScan() Option {
	return func(w *Watcher) { w.initial = true }
}

// New returns a Watcher for dir.
func New(dir string, handle Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		handle:  handle,
		delay:   DefaultDebounce,
		log:     zerolog.Nop(),
		pending: make(map[string]*time.Timer),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	close(w.ready)
	w.log.Info().Str("dir", w.dir).Dur("debounce", w.delay).Msg("watching")

	// done releases timers that fire after Run has stopped reading settled.
	settled := make(chan string, 16)
	done := make(chan struct{})
	defer close(done)
	defer w.stopPending()

	if w.initial {
		w.scan(settled, done)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.accept(event.Name) {
				continue
			}
			w.debounce(event.Name, settled, done)

		case path := <-settled:
			if _, err := os.Stat(path); err != nil {
				w.log.Debug().Str("path", path).Msg("file vanished before processing")
				continue
			}
			w.handle(ctx, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Str("dir", w.dir).Msg("watch error")
		}
	}
}

func (w *Watcher) accept(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return false
	}
	return w.ignore == nil || !w.ignore(path)
}

func (w *Watcher) scan(settled chan<- string, done <-chan struct{}) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Str("dir", w.dir).Msg("initial scan failed")
		return
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.accept(path) {
			w.debounce(path, settled, done)
		}
	}
}

// debounce restarts the quiet period of path. A timer that fires after done
// is closed drops the path.
func (w *Watcher) debounce(path string, settled chan<- string, done <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case settled <- path:
		case <-done:
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
