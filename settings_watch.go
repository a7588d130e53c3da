package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settingsDebounce collapses the burst of events an editor produces for a
// single save into one reload.
const settingsDebounce = 200 * time.Millisecond

// settingsMaxDelay bounds how long a stream of writes can postpone a reload.
const settingsMaxDelay = 1 * time.Second

// watchSettingsFile calls reload after each change to path, and on SIGHUP,
// until ctx is done. The parent directory is watched so a file replaced by
// rename is still seen.
func watchSettingsFile(ctx context.Context, path string, logger *slog.Logger, reload func() error) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	return settingsWatchLoop(ctx, watchSources{
		events: watcher.Events,
		errs:   watcher.Errors,
		hup:    hup,
	}, path, settingsDebounce, settingsMaxDelay, logger, reload)
}

// watchSources are the inputs of settingsWatchLoop.
type watchSources struct {
	events <-chan fsnotify.Event
	errs   <-chan error
	hup    <-chan os.Signal
}

// settingsWatchLoop is the select loop behind watchSettingsFile. File
// events are debounced, but a reload happens at most maxDelay after the
// first event of a burst. SIGHUP reloads at once. Reload failures are
// logged and watching continues.
func settingsWatchLoop(
	ctx context.Context,
	src watchSources,
	path string,
	debounce, maxDelay time.Duration,
	logger *slog.Logger,
	reload func() error,
) error {
	target := filepath.Clean(path)

	var timer *time.Timer

	var fire <-chan time.Time

	var deadline time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-src.events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			wait := debounce

			if fire == nil {
				deadline = time.Now().Add(maxDelay)
			} else if left := time.Until(deadline); left < wait {
				wait = max(left, 0)
			}

			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}

			fire = timer.C

		case watchErr, ok := <-src.errs:
			if !ok {
				return nil
			}

			logger.Warn("settings watcher error", slog.String("error", watchErr.Error()))

		case <-src.hup:
			logger.Info("SIGHUP received, reloading settings", slog.String("path", path))

			if err := reload(); err != nil {
				logger.Error("settings reload failed",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}

		case <-fire:
			fire = nil

			if err := reload(); err != nil {
				logger.Error("settings reload failed",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
