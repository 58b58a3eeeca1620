// Package watch reports changes to a single source document on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spherical/content-pipeline/internal/observability"
)

// Config configures a watcher.
type Config struct {
	// Path is the file to watch. Its parent directory is watched so
	// editors that replace the file through a rename are still seen.
	Path string
	// Debounce coalesces bursts of events into one notification.
	Debounce time.Duration
	// InitialEvent emits one notification right after the watch starts.
	InitialEvent bool
}

// Start watches cfg.Path until ctx is done. The returned channel receives
// the watched path after each debounced change and is closed on exit.
func Start(ctx context.Context, cfg Config, logger *observability.Logger) (<-chan string, error) {
	if cfg.Path == "" {
		return nil, errors.New("no path to watch")
	}
	if logger == nil {
		logger = observability.Nop()
	}
	logger = logger.WithComponent("watch")

	target, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	out := make(chan string, 1)
	if cfg.InitialEvent {
		out <- target
	}

	go func() {
		defer close(out)
		defer w.Close()

		var (
			timer   *time.Timer
			timerC  <-chan time.Time
			pending bool
		)
		emit := func() {
			pending = false
			select {
			case out <- target:
			default:
				// a notification is already queued
			}
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) != target {
					continue
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				logger.Debug().Str("path", e.Name).Str("op", e.Op.String()).Msg("Source changed")
				if cfg.Debounce <= 0 {
					emit()
					continue
				}
				pending = true
				if timer == nil {
					timer = time.NewTimer(cfg.Debounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(cfg.Debounce)
				}
				timerC = timer.C

			case <-timerC:
				timerC = nil
				if pending {
					emit()
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("Watcher error")
			}
		}
	}()

	return out, nil
}
