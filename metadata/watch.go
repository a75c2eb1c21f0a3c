package metadata

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a metadata file into a fresh Workspace whenever it changes.
type Watcher struct {
	path     string
	resolve  TypeResolver
	onReload func(*Workspace)
	onError  func(error)
	log      *zap.Logger

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(l *zap.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithErrorHandler sets the callback receiving reload and watch errors.
func WithErrorHandler(fn func(error)) WatchOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher creates a watcher for the metadata file at path.
func NewWatcher(path string, resolve TypeResolver, onReload func(*Workspace), opts ...WatchOption) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("metadata: watcher for %s requires a reload callback", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("metadata: create file watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		resolve:  resolve,
		onReload: onReload,
		log:      zap.NewNop(),
		watcher:  fw,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the directory holding the file. Editors replace files on
// save, so events are filtered by name rather than watching the file itself.
// The watcher stops when ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("metadata: watch directory %s: %w", dir, err)
	}
	w.log.Debug("watching metadata file", zap.String("path", w.path))
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.fail(fmt.Errorf("metadata: watch %s: %w", w.path, err))
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	ws, err := LoadFile(w.path, w.resolve)
	if err != nil {
		w.fail(err)
		return
	}
	w.log.Info("metadata reloaded", zap.String("path", w.path), zap.Int("entities", len(ws.EntityTypes())))
	w.onReload(ws)
}

func (w *Watcher) fail(err error) {
	w.log.Warn("metadata watcher error", zap.Error(err))
	if w.onError != nil {
		w.onError(err)
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
		err = w.watcher.Close()
	})
	return err
}
