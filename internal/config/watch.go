// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package config

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration when its file changes on disk, so
// security settings edited while the app runs (a new idle timeout, say)
// take effect without a restart.
type Watcher struct {
	path     string
	onChange func(*Config)

	fw       *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// debounceWindow absorbs the multi-event bursts editors produce for a
// single save.
const debounceWindow = 500 * time.Millisecond

// NewWatcher watches path and calls onChange with each successfully
// reloaded configuration. Reload failures are logged and skipped; the
// previous configuration stays in effect.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace the file on save, which drops
	// a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		fw:       fw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			cfg, err := LoadFrom(w.path)
			if err != nil {
				log.Printf("CONFIG: reload failed, keeping previous config: %v", err)
				continue
			}
			w.onChange(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG: watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fw.Close()
	})
	w.wg.Wait()
}
