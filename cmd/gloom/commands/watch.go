package commands

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settle is how long a burst of file events must be quiet before a rerun.
const settle = 200 * time.Millisecond

// watch calls run whenever a file below paths changes, until ctx is done.
// Events below ignore do not count.
func watch(ctx context.Context, log *zap.Logger, paths []string, ignore string, run func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer w.Close()

	for _, p := range paths {
		if err := addTree(w, p); err != nil {
			return err
		}
	}
	if ignore != "" {
		ignore = filepath.Clean(ignore)
	}
	log.Info("watching for changes", zap.Strings("paths", paths))
	return watchLoop(ctx, log, w.Events, w.Errors, ignore, settle, run)
}

// addTree watches p and, for a directory, every directory below it.
func addTree(w *fsnotify.Watcher, p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return errors.Wrapf(err, "watching %s", p)
	}
	if !info.IsDir() {
		return errors.Wrapf(w.Add(p), "watching %s", p)
	}
	return filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return errors.Wrapf(w.Add(path), "watching %s", path)
		}
		return nil
	})
}

func watchLoop(ctx context.Context, log *zap.Logger, events <-chan fsnotify.Event, errs <-chan error,
	ignore string, delay time.Duration, run func() error) error {
	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if ignore != "" && (ev.Name == ignore || strings.HasPrefix(ev.Name, ignore+string(filepath.Separator))) {
				continue
			}
			log.Debug("file changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			timer = time.After(delay)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "watching files")
		case <-timer:
			timer = nil
			if err := run(); err != nil {
				log.Error("apply failed", zap.Error(err))
			}
		}
	}
}
