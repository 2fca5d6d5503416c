package project

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is T_DEBOUNCE from spec.md §4.7.
const DefaultDebounce = 500 * time.Millisecond

// Watcher coalesces filesystem events under one working directory into a
// debounced "recompute" signal, scoped exactly to that directory (no
// recursive scan, per spec.md §4.4/§4.7).
type Watcher struct {
	dir      string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	changed  chan struct{}
	stop     chan struct{}
	logger   *slog.Logger
}

// NewWatcher starts watching dir. Callers must call Close when done.
func NewWatcher(dir string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		fsw:      fsw,
		changed:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		logger:   logger,
	}
	go w.run()
	return w, nil
}

// Changed receives a signal (possibly representing many coalesced events)
// whenever the watched directory settles after T_DEBOUNCE of quiet.
func (w *Watcher) Changed() <-chan struct{} { return w.changed }

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	resetTimer := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isRelevantEvent(ev) {
				continue
			}
			resetTimer()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watch error", "dir", w.dir, "error", err)

		case <-timerC:
			timerC = nil
			select {
			case w.changed <- struct{}{}:
			default:
				// a recompute is already pending; coalesce
			}
		}
	}
}

// isRelevantEvent filters fsnotify events down to create/modify/delete/rename
// of files, ignoring attribute-only (chmod) changes that most editors emit on
// save.
func isRelevantEvent(ev fsnotify.Event) bool {
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// Close stops the watcher and releases its fsnotify handle.
func (w *Watcher) Close() error {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	return w.fsw.Close()
}
