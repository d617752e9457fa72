package workspace

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/observability"
)

// CatalogWatcher reloads the catalog file when it changes on disk and
// hands the parsed result to a callback. A file that fails to load or
// validate is ignored and the previous catalog stays in effect.
type CatalogWatcher struct {
	path     string
	log      *observability.Logger
	onChange func(*catalog.Catalog)
	fs       *fsnotify.Watcher
}

// NewCatalogWatcher watches the directory containing path, since editors
// and config mounts replace files rather than writing them in place.
func NewCatalogWatcher(path string, log *observability.Logger, onChange func(*catalog.Catalog)) (*CatalogWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, err
	}
	return &CatalogWatcher{path: path, log: log, onChange: onChange, fs: fs}, nil
}

// Run processes file events until the context is cancelled.
func (w *CatalogWatcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("catalog watcher error")
		}
	}
}

func (w *CatalogWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)
}

func (w *CatalogWatcher) reload() {
	cat, err := catalog.Load(w.path)
	if err != nil {
		w.log.WithError(err).Error("ignoring catalog change that fails to load")
		return
	}
	w.log.Info("catalog reloaded", "path", w.path, "roles", len(cat.Roles), "domains", len(cat.Domains))
	w.onChange(cat)
}
