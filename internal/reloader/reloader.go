// Package reloader provides support for live configuration reloading.
package reloader

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
)

const (
	// reloadInterval debounces bursts of filesystem events. At most one
	// configuration change is applied per interval.
	reloadInterval = 10 * time.Second

	// tickerInterval is the maximum latency between a write and the reload.
	tickerInterval = reloadInterval / 10
)

type ConfigFunc func(*conf.GlobalConfiguration)

// Reloader watches the directory holding the configuration file and calls
// back with a freshly loaded configuration once writes settle. The watch is
// on the directory, not the file, so editors and orchestrators that replace
// the file by rename are still observed.
type Reloader struct {
	configFile string

	reloadIval time.Duration
	tickerIval time.Duration
	watchFn    func() (watcher, error)
	reloadFn   func(configFile string) (*conf.GlobalConfiguration, error)
}

func NewReloader(configFile string) *Reloader {
	return &Reloader{
		configFile: configFile,
		reloadIval: reloadInterval,
		tickerIval: tickerInterval,
		watchFn:    newFSWatcher,
		reloadFn:   conf.LoadGlobal,
	}
}

// reloadCheckAt reports whether a pending update has settled for a full
// reload interval.
func (rl *Reloader) reloadCheckAt(at, lastUpdate time.Time) bool {
	if lastUpdate.IsZero() {
		return false
	}
	return at.Sub(lastUpdate) >= rl.reloadIval
}

// Watch blocks until ctx is done, invoking fn with a newly loaded
// configuration after each settled change to the config file. A change that
// fails to load is logged and skipped; the previous configuration stays
// active.
func (rl *Reloader) Watch(ctx context.Context, fn ConfigFunc) error {
	wr, err := rl.watchFn()
	if err != nil {
		logrus.WithError(err).Error("reloader: error creating fsnotify watcher")
		return err
	}
	defer wr.Close()

	watchDir := filepath.Dir(rl.configFile)
	if err := wr.Add(watchDir); err != nil {
		logrus.WithError(err).Error("reloader: error watching config directory")
		return err
	}

	tr := time.NewTicker(rl.tickerIval)
	defer tr.Stop()

	var lastUpdate time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-tr.C:
			if !rl.reloadCheckAt(time.Now(), lastUpdate) {
				continue
			}
			lastUpdate = time.Time{}

			cfg, err := rl.reloadFn(rl.configFile)
			if err != nil {
				logrus.WithError(err).Error("reloader: error loading config")
				continue
			}
			fn(cfg)

		case evt, ok := <-wr.Events():
			if !ok {
				err := errors.New("reloader: fsnotify event channel was closed")
				logrus.Error(err)
				return err
			}
			if filepath.Clean(evt.Name) != filepath.Clean(rl.configFile) {
				continue
			}
			switch {
			case evt.Op.Has(fsnotify.Create),
				evt.Op.Has(fsnotify.Remove),
				evt.Op.Has(fsnotify.Rename),
				evt.Op.Has(fsnotify.Write):
				lastUpdate = time.Now()
			}

		case err, ok := <-wr.Errors():
			if !ok {
				err := errors.New("reloader: fsnotify error channel was closed")
				logrus.Error(err)
				return err
			}
			logrus.WithError(err).Error("reloader: fsnotify has reported an error")
		}
	}
}

type watcher interface {
	Add(path string) error
	Close() error
	Events() chan fsnotify.Event
	Errors() chan error
}

type fsNotifyWatcher struct {
	wr *fsnotify.Watcher
}

func newFSWatcher() (watcher, error) {
	wr, err := fsnotify.NewWatcher()
	return &fsNotifyWatcher{wr}, err
}

func (o *fsNotifyWatcher) Add(path string) error       { return o.wr.Add(path) }
func (o *fsNotifyWatcher) Close() error                { return o.wr.Close() }
func (o *fsNotifyWatcher) Events() chan fsnotify.Event { return o.wr.Events }
func (o *fsNotifyWatcher) Errors() chan error          { return o.wr.Errors }
