// ffwatcher/watch/watch.go

// Package watch turns raw filesystem notifications on the configured input
// roots into job submissions.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ffwatcher/config"

	"github.com/fsnotify/fsnotify"
)

type Submitter interface {
	Submit(path string)
}

type Dispatcher struct {
	cfg   *config.Config
	sched Submitter
	log   *slog.Logger

	// Delay between a file event and the submission, letting the initial
	// write burst begin before the stability gate starts counting.
	Delay time.Duration

	watcher *fsnotify.Watcher
}

func NewDispatcher(cfg *config.Config, sched Submitter, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		sched: sched,
		log:   log,
		Delay: cfg.EventDelay,
	}
}

// Start registers every input root, submits all pre-existing files once and
// then consumes live events until the context is canceled. Failure to set
// up a watch root is fatal; later watch errors are only logged.
func (d *Dispatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	d.watcher = w

	for _, in := range d.cfg.Inputs {
		d.log.Info("watching directory", "path", in.Path)
		if err := d.watchTree(in.Path); err != nil {
			w.Close()
			return fmt.Errorf("watch directory %s: %w", in.Path, err)
		}
	}

	// Catch up on files that existed before the watch began.
	for _, in := range d.cfg.Inputs {
		d.submitExisting(in.Path)
	}

	go d.loop(ctx)
	d.log.Info("directory watcher started")
	return nil
}

// watchTree registers root and every directory below it. fsnotify watches
// are not recursive.
func (d *Dispatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return d.watcher.Add(path)
		}
		return nil
	})
}

func (d *Dispatcher) submitExisting(root string) {
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			d.log.Debug("found existing file", "path", path)
			d.sched.Submit(path)
		}
		return nil
	})
	if err != nil {
		d.log.Error("failed to scan existing files", "path", root, "error", err)
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.watcher.Close()
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handle(event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn("watch error", "error", err)
		}
	}
}

// handle forwards creation and data/metadata modification events on regular
// files, after the debounce delay. Newly created directories are added to
// the watch set.
func (d *Dispatcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) == 0 {
		return
	}

	info, err := os.Lstat(event.Name)
	if err != nil {
		// Gone already, a later event will resubmit it if it comes back.
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := d.watchTree(event.Name); err != nil {
				d.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			// A directory moved into the root arrives with its contents
			// already in place; those files never get their own events.
			d.submitExisting(event.Name)
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	d.log.Debug("file event", "op", event.Op.String(), "path", event.Name)
	path := event.Name
	time.AfterFunc(d.Delay, func() { d.sched.Submit(path) })
}
