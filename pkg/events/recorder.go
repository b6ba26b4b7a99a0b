package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/waitroomhq/waitroom/pkg/metrics"
	"github.com/waitroomhq/waitroom/pkg/models"
)

// appendTimeout bounds one analytics insert so a stalled database cannot
// wedge the recorder goroutine.
const appendTimeout = 5 * time.Second

// EventStore is the slice of the store the recorder needs.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *models.Event) error
}

// Recorder appends analytics events off the critical path. Record never
// blocks: events flow through a buffered channel to a single writer
// goroutine, and both overflow and store failures are logged and swallowed.
type Recorder struct {
	store  EventStore
	ch     chan *models.Event
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
}

// NewRecorder starts the recorder's writer goroutine.
func NewRecorder(store EventStore, bufferSize int) *Recorder {
	if bufferSize < 1 {
		bufferSize = 256
	}
	r := &Recorder{
		store:  store,
		ch:     make(chan *models.Event, bufferSize),
		done:   make(chan struct{}),
		logger: slog.With("component", "recorder"),
	}
	go r.run()
	return r
}

// Record enqueues one event. Drops the event when the buffer is full.
func (r *Recorder) Record(eventType string, sessionID, partyID *string, details map[string]any) {
	ev := &models.Event{
		SessionID: sessionID,
		PartyID:   partyID,
		Type:      eventType,
		Details:   details,
		CreatedAt: time.Now(),
	}
	select {
	case r.ch <- ev:
	default:
		metrics.EventsDropped.Inc()
		r.logger.Warn("Event buffer full, dropping event", "type", eventType)
	}
}

// RecordQueue enqueues a queue-scoped event.
func (r *Recorder) RecordQueue(eventType, sessionID string, details map[string]any) {
	r.Record(eventType, &sessionID, nil, details)
}

// RecordParty enqueues a party-scoped event.
func (r *Recorder) RecordParty(eventType, sessionID, partyID string, details map[string]any) {
	r.Record(eventType, &sessionID, &partyID, details)
}

// Close stops intake and drains buffered events before returning.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.ch)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := r.store.InsertEvent(ctx, ev); err != nil {
			r.logger.Error("Failed to append event", "type", ev.Type, "error", err)
		} else {
			metrics.EventsRecorded.Inc()
		}
		cancel()
	}
}
