package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldware/fieldsync/internal/connectivity"
)

// DefaultAutoSyncInterval matches the cadence reps expect in the field:
// frequent enough that a short signal window gets used, cheap enough to run
// all day.
const DefaultAutoSyncInterval = 30 * time.Second

// Runner drives autonomous synchronization: a periodic full sync while
// online, plus an immediate sync whenever connectivity returns. It shares
// the engine's in-flight guard, so an autonomous cycle overlapping a manual
// one is skipped rather than stacked.
type Runner struct {
	engine   *Engine
	oracle   connectivity.Oracle
	interval time.Duration
	logger   *logrus.Entry
}

// NewRunner creates an autosync runner. A zero interval means
// DefaultAutoSyncInterval.
func NewRunner(eng *Engine, oracle connectivity.Oracle, interval time.Duration, logger *logrus.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultAutoSyncInterval
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Runner{
		engine:   eng,
		oracle:   oracle,
		interval: interval,
		logger:   logger.WithField("component", "autosync"),
	}
}

// Run blocks until ctx is cancelled, syncing on the configured interval and
// on every offline-to-online transition. It returns ctx.Err() on shutdown.
func (r *Runner) Run(ctx context.Context) error {
	events, cancel := r.oracle.Subscribe()
	defer cancel()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Catch-up pass for mutations queued while the daemon was down.
	r.sync(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			r.sync(ctx, "interval")

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Online {
				r.logger.Info("connectivity restored, syncing")
				r.sync(ctx, "reconnect")
			} else {
				r.logger.Info("connectivity lost, pausing sync")
			}
		}
	}
}

// sync runs one full sync, treating offline and already-running as normal
// idle conditions rather than errors.
func (r *Runner) sync(ctx context.Context, trigger string) {
	if !r.oracle.Online() {
		return
	}

	report, err := r.engine.FullSync(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline):
		r.logger.WithField("trigger", trigger).Debug("skipping autosync cycle")
	case err != nil:
		r.logger.WithError(err).WithField("trigger", trigger).Warn("autosync cycle failed")
	case report.Push != nil && (len(report.Push.Succeeded) > 0 || len(report.Push.Failed) > 0):
		r.logger.WithFields(logrus.Fields{
			"trigger":   trigger,
			"succeeded": len(report.Push.Succeeded),
			"failed":    len(report.Push.Failed),
			"skipped":   len(report.Push.Skipped),
		}).Info("autosync cycle complete")
	}
}
