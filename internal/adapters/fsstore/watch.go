package fsstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/pixport/pkg/log"
)

// Watch drops cached blobs whose files change until ctx is done. ready, if
// non-nil, is closed once the directory is being watched.
func (s *Store) Watch(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create blob watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Join(s.root, blobsDir)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name, ok := blobName(event.Name)
			if !ok {
				continue
			}
			s.Invalidate(name)
			s.logger.Debug("blob changed", log.String("blob", name), log.String("op", event.Op.String()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("blob watcher error", log.Err(err))
		}
	}
}
