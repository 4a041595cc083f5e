package dataset

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a dataset file into a Holder whenever the file changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	holder  *Holder
	load    Loader
	logger  *slog.Logger
	// OnReload, when set, is called after every successful reload.
	OnReload func(*Dataset)
}

// NewWatcher watches the directory containing path.
func NewWatcher(path string, holder *Holder, load Loader, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	// editors often replace the file, so watch its directory
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{watcher: w, path: abs, holder: holder, load: load, logger: logger}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			ds, err := w.holder.Reload(ctx, w.load)
			if err != nil {
				w.logger.WarnContext(ctx, "dataset reload failed, keeping previous snapshot",
					"path", w.path,
					"error", err,
				)
				continue
			}
			w.logger.InfoContext(ctx, "dataset reloaded",
				"path", w.path,
				"rows", ds.Count(),
				"fingerprint", ds.Fingerprint(),
			)
			if w.OnReload != nil {
				w.OnReload(ds)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WarnContext(ctx, "dataset watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
