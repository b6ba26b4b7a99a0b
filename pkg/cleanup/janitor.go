// Package cleanup runs the background retention sweeps: expired auth
// rows and aged-out analytics events.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/waitroomhq/waitroom/pkg/config"
)

// sweepTimeout bounds one full sweep.
const sweepTimeout = 30 * time.Second

// Store is the slice of the persistence layer the janitor sweeps.
type Store interface {
	DeleteExpiredOAuthStates(ctx context.Context) (int64, error)
	DeleteSpentExchangeTokens(ctx context.Context) (int64, error)
	DeleteExpiredUserSessions(ctx context.Context) (int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically deletes rows past their useful life. Sweeps are
// independent; one failing does not stop the others.
type Janitor struct {
	store  Store
	cfg    config.RetentionConfig
	logger *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts the janitor's sweep loop.
func New(st Store, cfg config.RetentionConfig) *Janitor {
	j := &Janitor{
		store:  st,
		cfg:    cfg,
		logger: slog.With("component", "janitor"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

// Stop halts the loop; an in-flight sweep completes first.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
}

func (j *Janitor) run() {
	defer close(j.done)

	interval := j.cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			j.Sweep(ctx)
			cancel()
		case <-j.stop:
			return
		}
	}
}

// Sweep runs every retention pass once.
func (j *Janitor) Sweep(ctx context.Context) {
	j.sweepOne(ctx, "oauth_states", j.store.DeleteExpiredOAuthStates)
	j.sweepOne(ctx, "exchange_tokens", j.store.DeleteSpentExchangeTokens)
	j.sweepOne(ctx, "user_sessions", j.store.DeleteExpiredUserSessions)

	if j.cfg.EventTTL > 0 {
		cutoff := time.Now().Add(-j.cfg.EventTTL)
		n, err := j.store.DeleteEventsBefore(ctx, cutoff)
		if err != nil {
			j.logger.Error("Retention sweep failed", "target", "events", "error", err)
		} else if n > 0 {
			j.logger.Info("Pruned aged rows", "target", "events", "rows", n)
		}
	}
}

func (j *Janitor) sweepOne(ctx context.Context, target string, fn func(context.Context) (int64, error)) {
	n, err := fn(ctx)
	if err != nil {
		j.logger.Error("Retention sweep failed", "target", target, "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("Pruned aged rows", "target", target, "rows", n)
	}
}
