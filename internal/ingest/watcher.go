// Package ingest feeds local documents into the pipeline: a recursive
// drop-folder watcher discovers files, the submitter uploads them to the
// source bucket and enqueues their ingest messages.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/docpipe/constants"
)

// WatchConfig controls the drop-folder watcher.
type WatchConfig struct {
	Roots       []string      // directories to watch, recursive
	InitialScan bool          // emit files already present under the roots
	Debounce    time.Duration // coalesce rapid write bursts before emitting
}

// StartWatcher watches the configured roots and emits paths of supported
// documents as they land. Subdirectories created later are picked up too.
// Both channels close when ctx is cancelled.
func StartWatcher(ctx context.Context, logger *slog.Logger, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no watch roots configured")
	}

	paths := make(chan string, 256)
	errs := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	addRoot := func(root string) error {
		return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(p)
			}
			if cfg.InitialScan && constants.ExtensionAllowed(p) {
				select {
				case paths <- p:
				default:
					logger.Warn("watcher buffer full, dropping initial-scan path", "path", p)
				}
			}
			return nil
		})
	}
	for _, root := range cfg.Roots {
		if err := addRoot(root); err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(paths)
		defer close(errs)
		defer func() {
			_ = w.Close()
		}()

		// All pending-map access stays on this goroutine; the debounce timer
		// only signals through its channel.
		var (
			timer   *time.Timer
			timerCh <-chan time.Time
		)
		pending := map[string]struct{}{}
		flush := func() {
			for p := range pending {
				select {
				case paths <- p:
				default:
					logger.Warn("watcher buffer full, dropping path", "path", p)
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op.Has(fsnotify.Create) {
					if info, statErr := os.Stat(e.Name); statErr == nil && info.IsDir() {
						if addErr := w.Add(e.Name); addErr != nil {
							logger.Warn("failed to watch new directory", "path", e.Name, "error", addErr)
						}
						continue
					}
				}
				if !constants.ExtensionAllowed(e.Name) {
					continue
				}
				if !e.Op.Has(fsnotify.Create) && !e.Op.Has(fsnotify.Write) {
					continue
				}

				pending[e.Name] = struct{}{}
				if cfg.Debounce <= 0 {
					flush()
					continue
				}
				if timer == nil {
					timer = time.NewTimer(cfg.Debounce)
				} else {
					timer.Stop()
					timer.Reset(cfg.Debounce)
				}
				timerCh = timer.C
			case <-timerCh:
				timerCh = nil
				flush()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return paths, errs, nil
}
