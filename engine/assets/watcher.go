package assets

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/penumbra/engine/core"
)

// Watcher posts EVENT_CODE_SCENE_CHANGED whenever the scene file is written
// or replaced. It watches the parent directory so editors that save through
// a rename are still seen.
type Watcher struct {
	path   string
	events *core.EventSystem

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewWatcher(path string, events *core.EventSystem) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		events:   events,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	core.LogInfo("watching scene file %s", abs)
	return w, nil
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if !w.relevant(e) {
				continue
			}
			var ctx core.EventContext
			ctx.Data.C[0] = w.path
			if err := w.events.Post(core.EVENT_CODE_SCENE_CHANGED, w, ctx); err != nil {
				core.LogWarn("dropping scene change of %s: %s", w.path, err)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("scene watcher: %s", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) relevant(e fsnotify.Event) bool {
	if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	name, err := filepath.Abs(e.Name)
	if err != nil {
		return false
	}
	return name == w.path
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsnotify.Close()
	})
	return err
}
