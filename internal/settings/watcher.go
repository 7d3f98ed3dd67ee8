package settings

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// fileWatcher watches one settings file and invokes a handler on change,
// debounced so editors that write in multiple syscalls trigger one reload.
type fileWatcher struct {
	watcher       *fsnotify.Watcher
	target        string
	handler       func()
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
	stopChan      chan struct{}
}

func newFileWatcher(path string, handler func()) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	fw := &fileWatcher{
		watcher:  watcher,
		target:   filepath.Base(path),
		handler:  handler,
		stopChan: make(chan struct{}),
	}

	go fw.watchLoop()
	return fw, nil
}

func (fw *fileWatcher) stop() {
	close(fw.stopChan)
	fw.watcher.Close()
}

func (fw *fileWatcher) watchLoop() {
	for {
		select {
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fw.target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				// Debounce: reset timer on each event
				fw.debounceMu.Lock()
				if fw.debounceTimer != nil {
					fw.debounceTimer.Stop()
				}
				fw.debounceTimer = time.AfterFunc(debounceDelay, fw.handler)
				fw.debounceMu.Unlock()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Settings] Watcher error: %v", err)
		}
	}
}
