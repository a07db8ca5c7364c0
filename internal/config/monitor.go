package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// debounceWindow absorbs the burst of chmod/write events most editors and
// os.Chmod (our own mode-correction step) generate for a single logical
// change, so Monitor emits one "changed" event per edit rather than one per
// syscall.
const debounceWindow = 200 * time.Millisecond

// Monitor watches every configured file for changes and emits a "changed"
// event on the returned channel once per debounced burst, reloading the
// merged view beforehand so GetValue reflects the new content by the time
// the event is observed. A pure permission/attribute-changed event (chmod
// with no content change) is swallowed rather than reported, matching
// content changes trigger a reload.
func (s *Store) Monitor(ctx context.Context) (<-chan ChangeEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "creating config file watcher")
	}

	s.mu.Lock()
	dirs := map[string]bool{}

	for _, item := range s.items {
		if item.Monitor {
			dirs[filepath.Dir(item.Filename)] = true
		}
	}

	if s.mutablePth != "" {
		dirs[filepath.Dir(s.mutablePth)] = true
	}

	s.mu.Unlock()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			s.log.Debugf("could not watch config directory %s: %v", dir, err)
		}
	}

	out := make(chan ChangeEvent, 1)

	go s.watchLoop(ctx, watcher, out)

	return out, nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- ChangeEvent) {
	defer watcher.Close()
	defer close(out)

	var timer *time.Timer

	fire := func() {
		s.mu.Lock()
		err := s.reloadLocked()
		s.mu.Unlock()

		if err != nil {
			s.log.Warnf("reloading config after change notification: %v", err)
			return
		}

		select {
		case out <- ChangeEvent{Kind: "changed"}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Chmod) != 0 && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				// Attribute-only change (e.g. our own mode correction); skip.
				continue
			}

			if timer != nil {
				timer.Stop()
			}

			timer = time.AfterFunc(debounceWindow, fire)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			s.log.Debugf("config watcher error: %v", err)
		}
	}
}
