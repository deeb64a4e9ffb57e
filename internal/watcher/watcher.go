// Package watcher triggers a callback when record files in a directory change.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is the quiet period after the last change before onChange fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors a directory and calls onChange once a burst of matching
// file events has settled. Events for names rejected by match are ignored.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ctx      context.Context
	match    func(path string) bool
	onChange func()
	cancel   context.CancelFunc
	timer    *time.Timer
	dir      string
	debounce time.Duration
	mu       sync.Mutex
	running  bool
}

// New creates a Watcher for dir. A nil match accepts every file.
func New(dir string, match func(path string) bool, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		dir:      filepath.Clean(dir),
		match:    match,
		onChange: onChange,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce changes the quiet period. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching the directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.running = true

	go w.watchLoop()
	log.Info().Str("dir", w.dir).Dur("debounce", w.debounce).Msg("Watching input directory")
	return nil
}

// Stop stops the watcher. A pending callback is dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.cancel()
	return w.watcher.Close()
}

const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&relevantOps == 0 {
				continue
			}

			path := filepath.Clean(event.Name)
			if path == w.dir {
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Warn().Str("dir", w.dir).Msg("Input directory removed")
				}
				continue
			}
			if w.match != nil && !w.match(path) {
				continue
			}

			log.Debug().Str("path", path).Str("op", event.Op.String()).Msg("Input changed")
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	if w.ctx.Err() != nil {
		return
	}
	log.Info().Str("dir", w.dir).Msg("Input directory changed")
	if w.onChange != nil {
		w.onChange()
	}
}
