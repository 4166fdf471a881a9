package registry

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the full catalogue (embedded tools plus overlayDir) every
// time a *.yaml file in overlayDir is created, written or removed, so an
// operator can add or edit tool descriptors without restarting the
// process. A reload that fails validation — a duplicate name, an unknown
// category, a malformed schema — is logged and the previously loaded
// catalogue is left in place; Watch never returns on a bad reload.
//
// Watch blocks until ctx is cancelled. overlayDir must already exist.
func (r *Registry) Watch(ctx context.Context, overlayDir string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(overlayDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".yaml" {
				continue
			}
			if err := r.LoadBuiltin(overlayDir); err != nil {
				log.Warn("tool registry overlay reload failed, keeping previous catalogue",
					"error", err, "file", event.Name)
				continue
			}
			log.Info("tool registry reloaded", "file", event.Name, "op", event.Op.String(), "tools", len(r.All()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("tool registry watcher error", "error", err)
		}
	}
}
