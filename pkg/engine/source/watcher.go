package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/fre/pkg/engine"
)

// WatcherConfig contains configuration for the file watcher.
type WatcherConfig struct {
	// Paths are the files or directories to watch.
	Paths []string

	// Extensions is the list of file extensions to report (e.g. ".yaml").
	Extensions []string

	// SkipHidden controls whether hidden files and directories are ignored.
	SkipHidden bool
}

// FileWatcher translates fsnotify events on rule files into source events.
// Directories created while watching are added automatically.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	config  *WatcherConfig
	logger  *slog.Logger
}

// NewFileWatcher creates a watcher. Nothing is watched until Start.
func NewFileWatcher(config *WatcherConfig, logger *slog.Logger) (*FileWatcher, error) {
	if config == nil || len(config.Paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{watcher: w, config: config, logger: logger}, nil
}

// Start adds the configured paths and forwards events until ctx is
// cancelled, after which the channel is closed and the watcher released.
func (fw *FileWatcher) Start(ctx context.Context) (<-chan engine.SourceEvent, error) {
	for _, p := range fw.config.Paths {
		if err := fw.addPath(p); err != nil {
			fw.watcher.Close()
			return nil, fmt.Errorf("failed to watch path: %w", err)
		}
	}

	fw.logger.Info("file watcher started", "paths", fw.config.Paths)

	out := make(chan engine.SourceEvent, 16)
	go fw.loop(ctx, out)
	return out, nil
}

func (fw *FileWatcher) loop(ctx context.Context, out chan<- engine.SourceEvent) {
	defer close(out)
	defer fw.watcher.Close()

	send := func(ev engine.SourceEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			fw.logger.Info("file watcher stopped")
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				send(engine.SourceEvent{Error: fmt.Errorf("watcher events channel closed")})
				return
			}
			if event.Has(fsnotify.Create) {
				fw.addCreatedDir(event.Name)
			}
			typ, ok := fw.classify(event)
			if !ok {
				continue
			}
			fw.logger.Debug("file event detected",
				"path", event.Name,
				"op", event.Op.String(),
			)
			if !send(engine.SourceEvent{Type: typ, Path: event.Name}) {
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("file watcher error", "error", err)
			if !send(engine.SourceEvent{Error: err}) {
				return
			}
		}
	}
}

// classify maps an fsnotify event to a source event type, or reports false
// for events that cannot change the loaded rules.
func (fw *FileWatcher) classify(event fsnotify.Event) (engine.SourceEventType, bool) {
	if fw.config.SkipHidden && isHidden(event.Name) {
		return "", false
	}
	if !hasExtension(event.Name, fw.config.Extensions) {
		return "", false
	}
	switch {
	case event.Has(fsnotify.Create):
		return engine.SourceEventCreated, true
	case event.Has(fsnotify.Write):
		return engine.SourceEventModified, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return engine.SourceEventDeleted, true
	}
	return "", false
}

func (fw *FileWatcher) addPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		// Watch the parent so editors that replace the file are seen.
		return fw.watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if fw.config.SkipHidden && p != path && isHidden(p) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", p, err)
		}
		fw.logger.Debug("watching directory", "path", p)
		return nil
	})
}

func (fw *FileWatcher) addCreatedDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if fw.config.SkipHidden && isHidden(path) {
		return
	}
	if err := fw.addPath(path); err != nil {
		fw.logger.Warn("failed to watch new directory", "path", path, "error", err)
	}
}
