package unix

import (
	"context"
	"fmt"
	"github.com/fsnotify/fsnotify"
	"path/filepath"
)

// Watch watches the directory of the socket file and calls onRemoved once the socket
// file is removed or renamed (docu see transport.IEndpointWatcher)
func (t *unixTransport) Watch(ctx context.Context, endpoint string, onRemoved func()) error {
	path := t.Address(endpoint)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					Logger.Warningf("Socket %s was removed", path)
					onRemoved()
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				Logger.Warningf("Watcher error for %s: %v", path, err)
			}
		}
	}()

	return nil
}
