// Package push delivers Web Push notifications. The dispatcher consumes
// notification events from the coordinators on its own goroutine, dedups
// against the durable push_sent ledger, and prunes subscriptions the push
// service reports gone.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/metrics"
	"github.com/waitroomhq/waitroom/pkg/models"
)

// deliverTimeout bounds one notification's fan-out, dedup check included.
const deliverTimeout = 15 * time.Second

// ErrSubscriptionGone is returned by a Sender when the push service says
// the endpoint no longer exists (HTTP 404/410).
var ErrSubscriptionGone = errors.New("subscription gone")

// Sender posts one encrypted payload to one endpoint.
type Sender interface {
	Send(ctx context.Context, sub *models.PushSubscription, payload []byte) error
}

// SubscriptionStore is the slice of the store the dispatcher needs.
// InsertEvent is here because push_sent rows double as the dedup ledger
// and must land before the next notification for the party is examined.
type SubscriptionStore interface {
	ListSubscriptionsForParty(ctx context.Context, sessionID, partyID string) ([]*models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
	HasPushEvent(ctx context.Context, sessionID, partyID, kind string) (bool, error)
	InsertEvent(ctx context.Context, ev *models.Event) error
}

// EventRecorder appends push outcome events that carry no dedup weight.
type EventRecorder interface {
	RecordParty(eventType, sessionID, partyID string, details map[string]any)
}

// payload is the JSON body the service worker receives.
type payload struct {
	Kind  events.NotificationKind `json:"kind"`
	Title string                  `json:"title"`
	Body  string                  `json:"body"`
	URL   string                  `json:"url,omitempty"`
}

// Dispatcher consumes notification events and fans them out to the
// party's subscriptions. Notify never blocks; overflow drops the event.
type Dispatcher struct {
	store    SubscriptionStore
	recorder EventRecorder
	sender   Sender
	logger   *slog.Logger

	ch   chan events.Notification
	done chan struct{}

	closeOnce sync.Once
}

// NewDispatcher starts the dispatcher goroutine. A nil sender disables
// delivery (no VAPID keys); events are consumed and dropped so the rest
// of the service is unaffected.
func NewDispatcher(st SubscriptionStore, recorder EventRecorder, sender Sender, queueSize int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 256
	}
	d := &Dispatcher{
		store:    st,
		recorder: recorder,
		sender:   sender,
		logger:   slog.With("component", "push"),
		ch:       make(chan events.Notification, queueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues one notification. Drops it when the buffer is full.
func (d *Dispatcher) Notify(n events.Notification) {
	select {
	case d.ch <- n:
	default:
		metrics.PushesTotal.WithLabelValues(string(n.Kind), "overflow").Inc()
		d.logger.Warn("Push buffer full, dropping notification",
			"session_id", n.SessionID, "party_id", n.PartyID, "kind", n.Kind)
	}
}

// Close stops intake and drains buffered notifications before returning.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.ch)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for n := range d.ch {
		if d.sender == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		d.deliver(ctx, n)
		cancel()
	}
}

// deliver fans one notification out to the party's endpoints. Each
// (queue, party, kind) is delivered at most once: the push_sent ledger is
// checked first, and any successful send writes it.
func (d *Dispatcher) deliver(ctx context.Context, n events.Notification) {
	if !n.NoDedup && n.Kind != events.KindTest {
		sent, err := d.store.HasPushEvent(ctx, n.SessionID, n.PartyID, string(n.Kind))
		if err != nil {
			d.logger.Error("Failed to check push ledger, skipping notification",
				"party_id", n.PartyID, "kind", n.Kind, "error", err)
			return
		}
		if sent {
			return
		}
	}

	subs, err := d.store.ListSubscriptionsForParty(ctx, n.SessionID, n.PartyID)
	if err != nil {
		d.logger.Error("Failed to list push subscriptions",
			"party_id", n.PartyID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(payload{Kind: n.Kind, Title: n.Title, Body: n.Body, URL: n.URL})
	if err != nil {
		d.logger.Error("Failed to marshal push payload", "kind", n.Kind, "error", err)
		return
	}

	delivered := false
	for _, sub := range subs {
		err := d.sender.Send(ctx, sub, body)
		switch {
		case err == nil:
			delivered = true
			metrics.PushesTotal.WithLabelValues(string(n.Kind), "sent").Inc()
		case errors.Is(err, ErrSubscriptionGone):
			metrics.PushesTotal.WithLabelValues(string(n.Kind), "pruned").Inc()
			if derr := d.store.DeletePushSubscription(ctx, sub.Endpoint); derr != nil {
				d.logger.Error("Failed to prune gone subscription", "error", derr)
			}
			d.recorder.RecordParty(events.TypePushPruned, n.SessionID, n.PartyID, map[string]any{
				"kind": string(n.Kind),
			})
		default:
			metrics.PushesTotal.WithLabelValues(string(n.Kind), "failed").Inc()
			d.logger.Warn("Push delivery failed",
				"party_id", n.PartyID, "kind", n.Kind, "error", err)
			d.recorder.RecordParty(events.TypePushFailed, n.SessionID, n.PartyID, map[string]any{
				"kind": string(n.Kind), "error": err.Error(),
			})
		}
	}

	if delivered {
		// Written synchronously, not through the batching recorder: the
		// ledger row has to be durable before deliver can run again for
		// this party, or a re-emitted event slips past the dedup check.
		sid, pid := n.SessionID, n.PartyID
		ev := &models.Event{
			SessionID: &sid,
			PartyID:   &pid,
			Type:      events.TypePushSent,
			Details:   map[string]any{"kind": string(n.Kind)},
			CreatedAt: time.Now(),
		}
		if err := d.store.InsertEvent(ctx, ev); err != nil {
			d.logger.Error("Failed to write push ledger",
				"party_id", n.PartyID, "kind", n.Kind, "error", err)
		}
	}
}
