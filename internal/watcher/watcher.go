package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a directory tree with fsnotify, debounces the raw
// event stream, and emits coalesced FileEvents. New subdirectories are
// added to the watch set as they appear.
type Watcher struct {
	opts      Options
	logger    *slog.Logger
	debouncer *Debouncer

	fsw    *fsnotify.Watcher
	events chan FileEvent
	errs   chan error

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a watcher with the given options.
func New(opts Options, logger *slog.Logger) *Watcher {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
		events:    make(chan FileEvent, opts.EventBufferSize),
		errs:      make(chan error, 16),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins watching root recursively. It runs until Stop is called
// or the context is cancelled.
func (w *Watcher) Start(ctx context.Context, root string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.watchTree(root); err != nil {
		_ = fsw.Close()
		return err
	}

	go w.run(ctx)
	return nil
}

// watchTree adds root and all non-ignored subdirectories to the watch
// set.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && IgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.events)
	defer close(w.errs)
	defer func() { _ = w.fsw.Close() }()
	defer w.debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}

		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			for _, event := range batch {
				select {
				case w.events <- event:
				default:
					w.logger.Warn("watcher event buffer full, dropping event",
						slog.String("path", event.Path))
				}
			}
		}
	}
}

// handleRaw converts an fsnotify event into a debounced FileEvent,
// extending the watch set when directories appear.
func (w *Watcher) handleRaw(ev fsnotify.Event) {
	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir {
		if ev.Op.Has(fsnotify.Create) && !IgnoredDir(filepath.Base(ev.Name)) {
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
		return
	}

	if IgnoredFile(ev.Name) || containsIgnoredDir(ev.Name) {
		return
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return // chmod-only events carry no content change
	}

	w.debouncer.Add(FileEvent{
		Path:      ev.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// containsIgnoredDir reports whether any path component is an ignored
// directory, for events below directories created before we could prune
// them.
func containsIgnoredDir(path string) bool {
	dir := filepath.Dir(path)
	for {
		base := filepath.Base(dir)
		if base == dir || base == string(filepath.Separator) {
			return false
		}
		if IgnoredDir(base) {
			return true
		}
		dir = filepath.Dir(dir)
	}
}

// Events returns the channel of debounced file events. Closed on stop.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop halts the watcher and waits for the loop to exit. Safe to call
// multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	if w.fsw != nil {
		<-w.doneCh
	}
}
