package mission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/description"
	"github.com/autopeer-io/houston/internal/mission/report"
	"github.com/autopeer-io/houston/pkg/log"
)

const DefaultDebounce = 500 * time.Millisecond

// MissionRunner runs a single mission.
type MissionRunner interface {
	Run(ctx context.Context, doc *description.Document) (*report.Report, error)
}

// Watcher runs every mission description written to a directory, one at
// a time, in the order the writes settle.
type Watcher struct {
	dir      string
	runner   MissionRunner
	debounce time.Duration
	clock    clock.WithTicker
	log      log.Logger
	ignore   map[string]bool

	// OnReport, when set, receives the report of every mission run.
	OnReport func(path string, rep *report.Report)
	// OnError, when set, receives every file that could not be run.
	OnError func(path string, err error)
}

func NewWatcher(dir string, runner MissionRunner, debounce time.Duration, clk clock.WithTicker) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Watcher{
		dir:      dir,
		runner:   runner,
		debounce: debounce,
		clock:    clk,
		log:      log.WithName("watcher"),
		ignore:   map[string]bool{},
	}
}

// Ignore excludes files from the watch, such as a report file kept in the
// watched directory.
func (w *Watcher) Ignore(paths ...string) {
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			w.ignore[abs] = true
		}
	}
}

func (w *Watcher) watched(name string) bool {
	if !isMissionFile(name) {
		return false
	}
	abs, err := filepath.Abs(name)
	return err != nil || !w.ignore[abs]
}

// Run watches the directory until ctx is done. A mission that is running
// when ctx is cancelled is stopped as a user cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.log.Info("Watching for missions", "dir", w.dir)

	queue := make(chan string, 64)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return w.collect(ctx, fw, queue)
	})
	g.Go(func() error {
		for path := range queue {
			w.runFile(ctx, path)
		}
		return nil
	})
	return g.Wait()
}

// collect turns bursts of file events into one queued path per file once
// the file has not changed for the debounce period.
func (w *Watcher) collect(ctx context.Context, fw *fsnotify.Watcher, queue chan<- string) error {
	ticker := w.clock.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	pending := map[string]time.Time{}
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.watched(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = w.clock.Now()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("File events were dropped", "dir", w.dir)
				continue
			}
			w.log.Error(err, "File watcher error")

		case <-ticker.C():
			now := w.clock.Now()
			for path, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, path)
				select {
				case queue <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) runFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	logger := w.log.WithValues("file", filepath.Base(path))

	doc, err := description.LoadFile(path)
	if err != nil {
		logger.Error(err, "Mission file rejected")
		w.fail(path, err)
		return
	}
	rep, err := w.runner.Run(ctx, doc)
	if err != nil {
		logger.Error(err, "Mission failed to run")
		w.fail(path, err)
		return
	}
	logger.Info("Mission file done", "run", rep.RunID, "failure", rep.FailureFlags)
	if w.OnReport != nil {
		w.OnReport(path, rep)
	}
}

func (w *Watcher) fail(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

func isMissionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
