package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// Watcher watches the configuration tree and triggers a reload callback once
// changes settle. Any file change counts. Hidden files, editor backups and
// excluded directories are ignored.
type Watcher struct {
	rootDir  string
	exclude  []string
	debounce time.Duration
	logger   ports.Logger
	watcher  *fsnotify.Watcher
	onReload func()
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a file watcher for the given directory. Changes below
// any of the exclude directories (for example a file store living inside the
// root) never trigger a reload.
func NewWatcher(rootDir string, debounce time.Duration, logger ports.Logger, onReload func(), exclude ...string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	var excluded []string
	for _, dir := range exclude {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = fsWatcher.Close()
			return nil, err
		}
		excluded = append(excluded, abs)
	}

	w := &Watcher{
		rootDir:  rootDir,
		exclude:  excluded,
		debounce: debounce,
		logger:   logger,
		watcher:  fsWatcher,
		onReload: onReload,
		done:     make(chan struct{}),
	}

	if err := w.addRecursive(rootDir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// Start begins watching for file changes in a goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop terminates the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ignored(event.Name) || w.excluded(event.Name) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}

			w.logger.Debug("config change detected", "file", event.Name, "op", event.Op.String())

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-timerC:
			w.logger.Info("reloading resources due to file changes")
			w.onReload()
			timerC = nil
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if w.excluded(path) {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

func ignored(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}

func (w *Watcher) excluded(name string) bool {
	if len(w.exclude) == 0 {
		return false
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	for _, dir := range w.exclude {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
