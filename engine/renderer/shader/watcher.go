package shader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/alpqr/qvk6-sub001/engine/core"
)

// Extension is the file extension of serialized packages.
const Extension = ".qsb"

// Event reports a package that was (re)loaded from disk. Err is set when the
// file changed but could not be decoded. Removed is set when the file is gone.
type Event struct {
	Path    string
	Package *Package
	Removed bool
	Err     error
}

// Watcher keeps the packages under a directory tree loaded and reloads
// them when they change on disk.
type Watcher struct {
	packages map[string]*Package
	mutex    sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	closed   sync.Once
	events   chan Event
	wg       sync.WaitGroup
}

// NewWatcher loads every package below dir and starts watching it.
func NewWatcher(dir string) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		packages: make(map[string]*Package),
		fsnotify: fsWatch,
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
	if err := w.watchRecursive(dir, false); err != nil {
		fsWatch.Close()
		return nil, err
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Events delivers reloads. The channel is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Package returns the most recently loaded package for a path.
func (w *Watcher) Package(path string) (*Package, bool) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	p, ok := w.packages[filepath.Clean(path)]
	return p, ok
}

func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsnotify.Close()
		close(w.events)
	})
	return err
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := w.watchRecursive(e.Name, false); err != nil {
						core.LogError("failed to watch %s: %s", e.Name, err.Error())
					}
				}
				continue
			}
			if !isPackage(e.Name) {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.emit(w.load(e.Name))
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.remove(e.Name)
				w.emit(Event{Path: filepath.Clean(e.Name), Removed: true})
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err.Error())

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) emit(e Event) {
	select {
	case w.events <- e:
	case <-w.done:
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and loads the packages found on the way.
func (w *Watcher) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return w.fsnotify.Remove(walkPath)
			}
			return w.fsnotify.Add(walkPath)
		}
		if !unWatch && isPackage(walkPath) {
			if ev := w.load(walkPath); ev.Err != nil {
				core.LogWarn("skipping shader package %s: %s", walkPath, ev.Err.Error())
			}
		}
		return nil
	})
}

func (w *Watcher) load(path string) Event {
	path = filepath.Clean(path)
	p, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Event{Path: path, Removed: true}
		}
		return Event{Path: path, Err: err}
	}
	w.mutex.Lock()
	w.packages[path] = p
	w.mutex.Unlock()
	core.LogDebug("loaded shader package %s (%s)", path, p.Stage)
	return Event{Path: path, Package: p}
}

func (w *Watcher) remove(path string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	delete(w.packages, filepath.Clean(path))
}

func isPackage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension)
}
