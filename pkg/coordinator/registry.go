package coordinator

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/metrics"
)

// shardCount spreads registry locking so one queue's cold start does not
// serialize unrelated lookups.
const shardCount = 16

type registryShard struct {
	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

// Registry owns the live coordinator set: one coordinator per active
// queue, created on first touch and reaped after sitting idle with no
// subscribers.
type Registry struct {
	store    Store
	cfg      config.QueueConfig
	recorder EventRecorder
	notifier Notifier
	logger   *slog.Logger

	shards [shardCount]*registryShard

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry builds a registry and starts its idle reaper.
func NewRegistry(st Store, cfg config.QueueConfig, recorder EventRecorder, notifier Notifier) *Registry {
	r := &Registry{
		store:    st,
		cfg:      cfg,
		recorder: recorder,
		notifier: notifier,
		logger:   slog.With("component", "coordinator_registry"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{coordinators: make(map[string]*Coordinator)}
	}
	go r.reapLoop()
	return r
}

func (r *Registry) shard(sessionID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return r.shards[h.Sum32()%shardCount]
}

// Get returns the coordinator for a queue, loading it from durable state
// on first touch. The shard lock covers the cold start, so concurrent
// callers observe exactly one coordinator per queue.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Coordinator, error) {
	s := r.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.coordinators[sessionID]; ok {
		return c, nil
	}

	c, err := New(ctx, r.store, sessionID, r.cfg, r.recorder, r.notifier)
	if err != nil {
		return nil, err
	}
	s.coordinators[sessionID] = c
	metrics.CoordinatorsLive.Inc()
	r.logger.Debug("Coordinator loaded", "session_id", sessionID)
	return c, nil
}

// Peek returns the coordinator if it is already resident, without loading.
func (r *Registry) Peek(sessionID string) *Coordinator {
	s := r.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinators[sessionID]
}

// Evict stops and removes a coordinator. Used after close so a dead queue
// does not sit resident until the reaper finds it.
func (r *Registry) Evict(sessionID string) {
	s := r.shard(sessionID)
	s.mu.Lock()
	c, ok := s.coordinators[sessionID]
	if ok {
		delete(s.coordinators, sessionID)
	}
	s.mu.Unlock()

	if ok {
		c.Stop()
		metrics.CoordinatorsLive.Dec()
	}
}

// Shutdown stops the reaper and every resident coordinator.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done

	for _, s := range r.shards {
		s.mu.Lock()
		cs := make([]*Coordinator, 0, len(s.coordinators))
		for id, c := range s.coordinators {
			cs = append(cs, c)
			delete(s.coordinators, id)
		}
		s.mu.Unlock()
		for _, c := range cs {
			c.Stop()
			metrics.CoordinatorsLive.Dec()
		}
	}
}

// reapLoop unloads coordinators that have had no subscribers and no
// activity for the idle TTL. State is durable, so unloading loses nothing;
// the next touch reloads it.
func (r *Registry) reapLoop() {
	defer close(r.done)

	interval := r.cfg.IdleTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapIdle()
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.cfg.IdleTTL)
	for _, s := range r.shards {
		s.mu.Lock()
		var idle []*Coordinator
		for id, c := range s.coordinators {
			if c.SubscriberCount() == 0 && c.IdleSince().Before(cutoff) {
				idle = append(idle, c)
				delete(s.coordinators, id)
			}
		}
		s.mu.Unlock()

		for _, c := range idle {
			c.Stop()
			metrics.CoordinatorsLive.Dec()
			r.logger.Info("Reaped idle coordinator", "session_id", c.SessionID())
		}
	}
}
