package flagfile

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"nudge/internal/logging"
)

// Watcher turns directory events for request and sentinel *.flag files into
// wake-ups. It is an
// optimization only: callers keep polling and treat a missing wake-up as
// normal.
type Watcher struct {
	fs     *fsnotify.Watcher
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *slog.Logger
}

// NewWatcher starts watching dir. Callers fall back to plain polling when it
// returns an error.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		fs:     fsw,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logging.NewComponentLogger(logger, "flagwatch"),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Wake delivers at most one pending notification that a flag file appeared.
func (w *Watcher) Wake() <-chan struct{} {
	if w == nil {
		return nil
	}
	return w.wake
}

// Close stops the watcher. Safe to call more than once and on nil.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

// wakesLoop reports whether a change to name may need the router. Response
// files are written by the daemon itself and never do.
func wakesLoop(name string) bool {
	if !strings.HasSuffix(name, Extension) {
		return false
	}
	role, _, _ := Classify(name)
	return role != RoleResponse
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !wakesLoop(event.Name) {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Debug("flag watcher error", logging.Error(err))
		}
	}
}
