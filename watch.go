package blog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/johntipper/blog/plugin"
)

// watchDirs returns the directories whose changes require a rebuild: the
// content trees of every theme plus the static folder.
func (s *Site) watchDirs() []string {
	dirs := []string{filepath.Join(s.root, StaticDir)}
	for _, r := range s.plugins {
		if cp, ok := r.Plugin.(plugin.ContentPaths); ok {
			posts, authors := cp.ContentPaths()
			dirs = append(dirs, filepath.Join(s.root, posts), filepath.Join(s.root, authors))
		}
	}
	return dirs
}

// debouncer coalesces bursts of calls into one signal after a quiet period.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	C     chan struct{}
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, C: make(chan struct{}, 1)}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		select {
		case d.C <- struct{}{}:
		default:
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// watch rebuilds through rebuild whenever a watched file changes, until ctx
// is cancelled. Failed rebuilds are logged; the previous output keeps being
// served until a build succeeds.
func (srv *server) watch(ctx context.Context, rebuild plugin.RebuildFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	for _, dir := range srv.site.watchDirs() {
		addDirsRecursive(srv, w, dir)
	}

	d := newDebouncer(srv.cfg.Debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignoreEvent(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					addDirsRecursive(srv, w, ev.Name)
				}
			}
			srv.logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("File change detected")
			d.trigger()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			srv.logger.Warn().Err(err).Msg("Watcher error")
		case <-d.C:
			srv.logger.Info().Msg("Change detected; rebuilding site")
			if err := rebuild(ctx); err != nil {
				srv.logger.Warn().Err(err).Msg("Rebuild failed")
			}
		}
	}
}

func addDirsRecursive(srv *server, w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.Add(p); err != nil {
				srv.logger.Warn().Err(err).Str("dir", p).Msg("Watch add failed")
			}
		}
		return nil
	})
}

// ignoreEvent skips hidden files and editor swap files.
func ignoreEvent(p string) bool {
	base := filepath.Base(p)
	return strings.HasPrefix(base, ".") ||
		strings.HasPrefix(base, "#") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		base == "Thumbs.db"
}
