// Package watch drives re-bundling on file change: it derives the
// minimal set of files to observe from a scenario's recorded `references`
// set and re-runs affected scenarios on each debounced batch of changes.
package watch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Scenario is anything watch mode can re-run: its Run method is called
// once up front and again after every debounced batch of changes to its
// watch set.
type Scenario struct {
	Name  string
	Files []string // absolute file:// URIs recorded by the scenario's verify Closure
	Run   func(ctx context.Context) error
}

// Driver runs scenarios once, then re-runs them on file change until its
// context is cancelled.
type Driver struct {
	log      *logrus.Logger
	debounce time.Duration
}

// New builds a Driver. debounceWindow defaults to 100ms when zero.
func New(log *logrus.Logger, debounceWindow time.Duration) *Driver {
	if debounceWindow <= 0 {
		debounceWindow = 100 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{log: log, debounce: debounceWindow}
}

// Run executes every scenario once, then — if any scenario names at
// least one file:// reference — subscribes to filesystem change events
// for the union of those paths and re-runs the affected scenarios on
// each debounced batch. With no local references to watch, it warns and
// returns after the single run, degrading to one-shot mode.
func (d *Driver) Run(ctx context.Context, scenarios []Scenario) error {
	for _, s := range scenarios {
		if err := s.Run(ctx); err != nil {
			d.log.WithField("scenario", s.Name).WithError(err).Error("scenario failed")
		}
	}

	watchSet := pathsByFile(scenarios)
	if len(watchSet) == 0 {
		d.log.Warn("no file:// references recorded by any scenario; watch mode has nothing to observe, running once")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for path := range watchSet {
		if err := watcher.Add(path); err != nil {
			d.log.WithField("path", path).WithError(err).Warn("could not watch path")
		}
	}

	debounced := debounce.New(d.debounce)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed := ev.Name
			debounced(func() {
				d.rerunAffected(ctx, scenarios, watchSet[changed])
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.WithError(err).Warn("watch error")
		}
	}
}

// rerunAffected re-runs every scenario whose watch set includes the
// changed file. If the change can't be attributed to a specific scenario
// (path bookkeeping miss), every scenario re-runs — conservative, never
// silently stale.
func (d *Driver) rerunAffected(ctx context.Context, scenarios []Scenario, names []string) {
	affected := make(map[string]bool, len(names))
	for _, n := range names {
		affected[n] = true
	}
	for _, s := range scenarios {
		if len(affected) > 0 && !affected[s.Name] {
			continue
		}
		if err := s.Run(ctx); err != nil {
			d.log.WithField("scenario", s.Name).WithError(err).Error("scenario failed")
		}
	}
}

// pathsByFile derives the minimal set of local filesystem paths to watch,
// and which scenarios each path should trigger a re-run for.
func pathsByFile(scenarios []Scenario) map[string][]string {
	out := make(map[string][]string)
	for _, s := range scenarios {
		for _, uri := range s.Files {
			if !strings.HasPrefix(uri, "file://") {
				continue
			}
			p, err := filePath(uri)
			if err != nil {
				continue
			}
			out[p] = append(out[p], s.Name)
		}
	}
	return out
}

func filePath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}
