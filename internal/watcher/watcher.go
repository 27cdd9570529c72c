// Package watcher reports debounced change notifications for a working copy.
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a batch of changes is reported.
const DefaultDebounce = 500 * time.Millisecond

// EventType is the type of every Event.
const EventType = "repo.changed"

// excludedDirs are never watched. .git is special-cased in addDirs.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// Event is one debounced batch of changes under the watched root.
type Event struct {
	Type  string   `json:"type"`
	Path  string   `json:"path"`
	Files []string `json:"files"`
}

// Watcher watches one working copy. Events are coalesced: if the consumer
// falls behind, pending changes are merged into the next event.
type Watcher struct {
	root     string
	debounce time.Duration
	fs       *fsnotify.Watcher
	logger   *zap.Logger

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New starts watching root. The caller must Close the watcher.
func New(root string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("not a directory: " + root)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		debounce: debounce,
		fs:       fsw,
		logger:   logger.With(zap.String("root", root)),
		events:   make(chan Event, 1),
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}
	if err := w.addDirs(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Events delivers debounced change batches until Close.
func (w *Watcher) Events() <-chan Event { return w.events }

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.skipDir(ev.Name) {
					if err := w.addDirs(ev.Name); err != nil {
						w.logger.Debug("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
					}
				}
			}
			w.touch(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) touch(name string) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		rel = name
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
	if len(files) == 0 {
		return
	}
	sort.Strings(files)
	ev := Event{Type: EventType, Path: w.root, Files: files}

	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.events <- ev:
	default:
		// A batch is already waiting; merge into it.
		select {
		case prev := <-w.events:
			ev.Files = mergeSorted(prev.Files, ev.Files)
		default:
		}
		select {
		case w.events <- ev:
		default:
		}
	}
}

// skipDir reports whether dir must not be watched.
func (w *Watcher) skipDir(dir string) bool {
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, name := range parts {
		if excludedDirs[name] {
			return true
		}
		// .git itself is watched, nothing below it.
		if name == ".git" && i < len(parts)-1 {
			return true
		}
		if name != ".git" && isHidden(name) {
			return true
		}
	}
	return false
}

// addDirs adds dir and its watchable subdirectories. .git is added without
// descending so HEAD and index updates are seen.
func (w *Watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return err
		}
		if d.Name() == ".git" && path != w.root {
			return filepath.SkipDir
		}
		return nil
	})
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
