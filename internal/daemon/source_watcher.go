package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/reqsite/internal/logfields"
)

// SourceWatcher monitors the export source directory and triggers a run
// when files change. Rapid bursts of events, such as an exporter rewriting
// many CSV files, collapse into a single trigger.
type SourceWatcher struct {
	sourcePath   string
	onChange     func()
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	stopOnce     sync.Once
	debounceTime time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewSourceWatcher creates a watcher rooted at the local source path.
func NewSourceWatcher(sourcePath string, onChange func()) (*SourceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(sourcePath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve source path: %w", err)
	}

	return &SourceWatcher{
		sourcePath:   absPath,
		onChange:     onChange,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		debounceTime: 2 * time.Second,
	}, nil
}

// Start registers the source tree with the watcher and begins processing
// events. Subdirectories present at start are watched; new ones are added
// as create events arrive.
func (sw *SourceWatcher) Start(ctx context.Context) error {
	if err := sw.addRecursive(sw.sourcePath); err != nil {
		return fmt.Errorf("watch source directory %s: %w", sw.sourcePath, err)
	}

	slog.Info("Watching source for changes", logfields.Source(sw.sourcePath))
	go sw.watchLoop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (sw *SourceWatcher) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.stopChan)
		if err := sw.watcher.Close(); err != nil {
			slog.Error("Error closing source watcher", logfields.Error(err))
		}
		sw.mu.Lock()
		if sw.timer != nil {
			sw.timer.Stop()
		}
		sw.mu.Unlock()
	})
}

func (sw *SourceWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return sw.watcher.Add(path)
		}
		return nil
	})
}

func (sw *SourceWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories need their own watch entry.
				if err := sw.addRecursive(event.Name); err != nil {
					slog.Debug("Could not watch new path", logfields.Path(event.Name), logfields.Error(err))
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("Source change detected", logfields.Path(event.Name))
				sw.scheduleTrigger()
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Source watcher error", logfields.Error(err))
		}
	}
}

// scheduleTrigger resets the debounce timer so the callback fires once a
// burst of events settles.
func (sw *SourceWatcher) scheduleTrigger() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounceTime, sw.onChange)
}
