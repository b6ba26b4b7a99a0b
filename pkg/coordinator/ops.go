package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/models"
)

// abandonWindow is how soon after joining a voluntary leave counts as an
// abandon_after_eta funnel marker.
const abandonWindow = 2 * time.Minute

// JoinRequest carries a validated-at-the-edge join. UserID is set when the
// caller was authenticated.
type JoinRequest struct {
	Name   string
	Size   int
	UserID *string
}

// AdvanceRequest optionally pins which party was served and which to call
// next. Empty fields mean "the current one" and "the head of the line".
type AdvanceRequest struct {
	ServedParty string
	NextParty   string
}

// Join admits a new party at the tail of the waiting order.
func (c *Coordinator) Join(ctx context.Context, req JoinRequest) (*models.Party, error) {
	if err := validateJoin(&req); err != nil {
		return nil, err
	}

	val, err := c.do(ctx, "join", func(ctx context.Context) (any, error) {
		if c.queue.Closed() {
			return nil, ErrQueueClosed
		}
		if c.queue.RequiresAuth && req.UserID == nil {
			return nil, ErrAuthRequired
		}
		if c.liveCount() >= c.queue.MaxGuests {
			return nil, ErrQueueFull
		}
		if c.queue.RequiresAuth && req.UserID != nil {
			for _, p := range c.parties {
				if p.Status.Live() && p.UserID != nil && *p.UserID == *req.UserID {
					return nil, ErrAlreadyJoined
				}
			}
		}

		now := time.Now()
		eta := c.estimator.estimate(len(c.waitingOrder()) + 1).Milliseconds()
		p := &models.Party{
			ID:              uuid.New().String(),
			SessionID:       c.queue.SessionID,
			UserID:          req.UserID,
			Name:            req.Name,
			Size:            req.Size,
			Status:          models.PartyStatusWaiting,
			JoinedAt:        now,
			EstimatedWaitMs: &eta,
		}
		if err := c.store.InsertParty(ctx, p); err != nil {
			return nil, storageErr(err)
		}

		c.parties[p.ID] = p
		c.recorder.RecordParty(events.TypeMemberJoined, c.queue.SessionID, p.ID, map[string]any{"size": p.Size})
		c.afterMutation()
		return clonedParty(p), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*models.Party), nil
}

// DeclareNearby flags a party as close to the venue. Idempotent: repeats
// change nothing and publish no new snapshot.
func (c *Coordinator) DeclareNearby(ctx context.Context, partyID string) error {
	_, err := c.do(ctx, "declare_nearby", func(ctx context.Context) (any, error) {
		p := c.parties[partyID]
		if p == nil {
			return nil, ErrPartyNotFound
		}
		if p.Nearby || p.Status.Terminal() {
			return nil, nil
		}
		if err := c.store.SetPartyNearby(ctx, c.queue.SessionID, partyID); err != nil {
			return nil, storageErr(err)
		}
		p.Nearby = true
		c.afterMutation()
		return nil, nil
	})
	return err
}

// Leave removes a live party at its own request, recording where it stood
// and how long it had waited. Leaving an already-terminal party is a
// successful no-op.
func (c *Coordinator) Leave(ctx context.Context, partyID string) error {
	_, err := c.do(ctx, "leave", func(ctx context.Context) (any, error) {
		p := c.parties[partyID]
		if p == nil {
			return nil, ErrPartyNotFound
		}
		if p.Status.Terminal() {
			return nil, nil
		}

		now := time.Now()
		pos := c.position(partyID)
		waitMs := now.Sub(p.JoinedAt).Milliseconds()
		if err := c.store.MarkPartyLeft(ctx, c.queue.SessionID, partyID, now, pos, waitMs); err != nil {
			return nil, storageErr(err)
		}

		wasCalled := p.Status == models.PartyStatusCalled
		p.Status = models.PartyStatusLeft
		p.CompletedAt = &now
		p.PositionAtLeave = &pos
		p.WaitMsAtLeave = &waitMs
		if wasCalled {
			c.clearNowServing()
		}

		c.recorder.RecordParty(events.TypeMemberLeft, c.queue.SessionID, partyID, map[string]any{
			"position_at_leave": pos,
			"wait_ms":           waitMs,
		})
		// A quick exit from the waiting line is the "saw the wait, walked
		// away" funnel marker.
		if !wasCalled && waitMs < abandonWindow.Milliseconds() {
			c.recorder.RecordParty(events.TypeAbandonAfterETA, c.queue.SessionID, partyID, map[string]any{
				"wait_ms": waitMs,
			})
		}
		c.afterMutation()
		return nil, nil
	})
	return err
}

// Advance completes the current call and calls the next party. The served
// step requires the named party (or the implicit current one) to actually
// be called; the next step falls back to the head of the waiting order.
func (c *Coordinator) Advance(ctx context.Context, req AdvanceRequest) error {
	_, err := c.do(ctx, "advance", func(ctx context.Context) (any, error) {
		if c.queue.Closed() {
			return nil, ErrQueueClosed
		}

		// Resolve the serve step. A stale servedParty (no longer called)
		// is a conflict: the host is acting on an outdated view.
		if req.ServedParty != "" {
			p := c.parties[req.ServedParty]
			if p == nil {
				return nil, ErrPartyNotFound
			}
			if p.Status != models.PartyStatusCalled {
				return nil, ErrTerminalState
			}
		}

		if c.calledID != "" {
			if err := c.serv(ctx, c.calledID); err != nil {
				return nil, err
			}
		}

		// Select the next party to call.
		next := c.parties[req.NextParty]
		if next == nil || next.Status != models.PartyStatusWaiting {
			if waiting := c.waitingOrder(); len(waiting) > 0 {
				next = waiting[0]
			} else {
				next = nil
			}
		}
		if next == nil {
			c.clearNowServing()
			c.afterMutation()
			return nil, nil
		}

		now := time.Now()
		if err := c.store.MarkPartyCalled(ctx, c.queue.SessionID, next.ID, now); err != nil {
			return nil, storageErr(err)
		}
		next.Status = models.PartyStatusCalled
		next.CalledAt = &now
		c.calledID = next.ID
		c.callDeadline = now.Add(c.cfg.CallWindow)
		c.scheduleTimerAt(c.callDeadline)

		c.recorder.RecordParty(events.TypeMemberCalled, c.queue.SessionID, next.ID, map[string]any{
			"deadline": c.callDeadline,
		})
		c.notifyOnce(next.ID, events.KindCalled, "It's your turn!",
			fmt.Sprintf("Please come to the front within %d minutes.", int(c.cfg.CallWindow.Minutes())))
		c.afterMutation()
		return nil, nil
	})
	return err
}

// Kick removes a live party by host action. Kicking the called party
// clears now-serving without auto-advancing.
func (c *Coordinator) Kick(ctx context.Context, partyID string) error {
	_, err := c.do(ctx, "kick", func(ctx context.Context) (any, error) {
		if c.queue.Closed() {
			return nil, ErrQueueClosed
		}
		p := c.parties[partyID]
		if p == nil {
			return nil, ErrPartyNotFound
		}
		if p.Status.Terminal() {
			return nil, ErrTerminalState
		}

		now := time.Now()
		if err := c.store.MarkPartyKicked(ctx, c.queue.SessionID, partyID, now); err != nil {
			return nil, storageErr(err)
		}

		wasCalled := p.Status == models.PartyStatusCalled
		p.Status = models.PartyStatusKicked
		p.CompletedAt = &now
		if wasCalled {
			c.clearNowServing()
		}

		c.recorder.RecordParty(events.TypeMemberKicked, c.queue.SessionID, partyID, nil)
		c.afterMutation()
		return nil, nil
	})
	return err
}

// CloseStats summarizes a queue at close time for the host.
type CloseStats struct {
	Served    int   `json:"served"`
	NoShows   int   `json:"noShows"`
	Left      int   `json:"left"`
	Kicked    int   `json:"kicked"`
	Remaining int   `json:"remaining"`
	AvgWaitMs int64 `json:"avgWaitMs"`
}

// Close makes the queue terminal. Existing parties stay readable; joins
// and further host mutations are rejected.
func (c *Coordinator) Close(ctx context.Context) (*CloseStats, error) {
	val, err := c.do(ctx, "close", func(ctx context.Context) (any, error) {
		if c.queue.Closed() {
			return nil, ErrQueueClosed
		}
		if err := c.store.CloseQueue(ctx, c.queue.SessionID); err != nil {
			return nil, storageErr(err)
		}

		c.queue.Status = models.QueueStatusClosed
		c.stopTimer()
		c.calledID = ""
		c.callDeadline = time.Time{}

		stats := c.closeStats()
		c.recorder.RecordQueue(events.TypeQueueClosed, c.queue.SessionID, map[string]any{
			"served": stats.Served, "no_shows": stats.NoShows, "left": stats.Left,
		})
		c.afterMutation()
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*CloseStats), nil
}

// PartyState returns the current view of one party, for reconnecting
// guests. Served from loop state so terminal parties are visible too.
func (c *Coordinator) PartyState(ctx context.Context, partyID string) (*models.Party, int, error) {
	val, err := c.do(ctx, "party_state", func(ctx context.Context) (any, error) {
		p := c.parties[partyID]
		if p == nil {
			return nil, ErrPartyNotFound
		}
		return &partyStateResult{party: clonedParty(p), position: c.position(partyID)}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	res := val.(*partyStateResult)
	return res.party, res.position, nil
}

type partyStateResult struct {
	party    *models.Party
	position int
}

// serv completes the currently called party as served and feeds the
// estimator.
func (c *Coordinator) serv(ctx context.Context, partyID string) error {
	p := c.parties[partyID]
	now := time.Now()
	if err := c.store.MarkPartyServed(ctx, c.queue.SessionID, partyID, now); err != nil {
		return storageErr(err)
	}
	p.Status = models.PartyStatusServed
	p.CompletedAt = &now
	c.estimator.observe(now.Sub(p.JoinedAt))
	c.clearNowServing()

	c.recorder.RecordParty(events.TypeMemberServed, c.queue.SessionID, partyID, map[string]any{
		"wait_ms": now.Sub(p.JoinedAt).Milliseconds(),
	})
	return nil
}

func (c *Coordinator) clearNowServing() {
	c.calledID = ""
	c.callDeadline = time.Time{}
	c.stopTimer()
}

// liveCount counts parties holding capacity (waiting or called).
func (c *Coordinator) liveCount() int {
	n := 0
	for _, p := range c.parties {
		if p.Status.Live() {
			n += 1
		}
	}
	return n
}

func (c *Coordinator) closeStats() *CloseStats {
	stats := &CloseStats{}
	var totalWait int64
	var waits int64
	for _, p := range c.parties {
		switch p.Status {
		case models.PartyStatusServed:
			stats.Served++
			if p.CompletedAt != nil {
				totalWait += p.CompletedAt.Sub(p.JoinedAt).Milliseconds()
				waits++
			}
		case models.PartyStatusNoShow:
			stats.NoShows++
		case models.PartyStatusLeft:
			stats.Left++
		case models.PartyStatusKicked:
			stats.Kicked++
		default:
			stats.Remaining++
		}
	}
	if waits > 0 {
		stats.AvgWaitMs = totalWait / waits
	}
	return stats
}

func validateJoin(req *JoinRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Size < models.MinPartySize || req.Size > models.MaxPartySize {
		return NewValidationError("size", fmt.Sprintf("must be between %d and %d", models.MinPartySize, models.MaxPartySize))
	}
	if len(req.Name) > models.MaxPartyNameLength {
		return NewValidationError("name", fmt.Sprintf("must be at most %d characters", models.MaxPartyNameLength))
	}
	return nil
}

func clonedParty(p *models.Party) *models.Party {
	out := *p
	return &out
}
