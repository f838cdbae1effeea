package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github/itish2003/docbot/logging"
)

// Syncer rebuilds the index when the content on disk has drifted from it.
type Syncer interface {
	SyncIfChanged(ctx context.Context) (bool, error)
}

// ContentWatcher picks up edits made to the content directories or the key
// file outside the HTTP API.
type ContentWatcher struct {
	syncer      Syncer
	credentials *CredentialStore
	dirs        []string
	debounce    time.Duration
	log         *logrus.Entry
}

func NewContentWatcher(syncer Syncer, credentials *CredentialStore, content *ContentStore, debounce time.Duration) *ContentWatcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	var dirs []string
	for _, ns := range content.Namespaces() {
		if dir, err := content.Dir(ns); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return &ContentWatcher{
		syncer:      syncer,
		credentials: credentials,
		dirs:        dirs,
		debounce:    debounce,
		log:         logging.For("watcher"),
	}
}

// Run blocks until ctx is cancelled. Bursts of events are coalesced into a
// single sync once no event arrived for the debounce period.
func (w *ContentWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.log.WithField("dir", dir).Info("watching directory")
	}
	var keysPath string
	if w.credentials != nil {
		keysPath = filepath.Clean(w.credentials.Path())
		// Editors replace files by rename, so the parent directory is watched.
		if err := watcher.Add(filepath.Dir(keysPath)); err != nil {
			w.log.WithError(err).Warn("key file directory not watched")
		}
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	contentDirty, keysDirty := false, false

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			switch {
			case keysPath != "" && name == keysPath:
				keysDirty = true
			case w.isContent(name):
				contentDirty = true
			default:
				continue
			}
			w.log.WithField("event", event.String()).Debug("change detected")
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")

		case <-timer.C:
			if keysDirty {
				keysDirty = false
				if err := w.credentials.Reload(); err != nil {
					w.log.WithError(err).Error("reload credentials")
				}
			}
			if contentDirty {
				contentDirty = false
				rebuilt, err := w.syncer.SyncIfChanged(ctx)
				if err != nil {
					w.log.WithError(err).Error("sync index")
				} else if rebuilt {
					w.log.Info("index rebuilt after external change")
				}
			}

		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return nil
		}
	}
}

// isContent reports whether path is a visible file directly inside a content directory.
func (w *ContentWatcher) isContent(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	parent := filepath.Dir(path)
	for _, dir := range w.dirs {
		if filepath.Clean(dir) == parent {
			return true
		}
	}
	return false
}
