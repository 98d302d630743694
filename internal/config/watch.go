// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/sun-lab-nbb/axtl/internal/log"
)

// Watch re-reads the configuration file on change and applies the log level
// live. Other fields require a restart; only LogLevel is hot-reloaded.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Watch the directory, not the file: editors replace files on save,
	// which removes the original watch target.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	logger := log.WithComponent("config")
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg := Default()
			if err := cfg.applyFile(path); err != nil {
				logger.Warn().
					Str("event", "config.reload.failed").
					Err(err).
					Msg("ignoring unreadable config update")
				continue
			}
			// Same precedence as Load: an environment pin beats the file.
			cfg.applyEnv()
			log.SetLevel(cfg.LogLevel)
			logger.Info().
				Str("event", "config.reload").
				Str("log_level", cfg.LogLevel).
				Msg("applied updated log level")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().
				Str("event", "config.watch.error").
				Err(err).
				Msg("config watcher error")
		}
	}
}
