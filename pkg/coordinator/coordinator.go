package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/metrics"
	"github.com/waitroomhq/waitroom/pkg/models"
)

// Store is the slice of the persistence layer the coordinator writes
// through. Every mutation is durable before it is applied in memory.
type Store interface {
	GetQueue(ctx context.Context, sessionID string) (*models.Queue, error)
	CloseQueue(ctx context.Context, sessionID string) error
	InsertParty(ctx context.Context, p *models.Party) error
	ListParties(ctx context.Context, sessionID string) ([]*models.Party, error)
	ListRecentServed(ctx context.Context, sessionID string, limit int) ([]*models.Party, error)
	MarkPartyCalled(ctx context.Context, sessionID, partyID string, calledAt time.Time) error
	MarkPartyServed(ctx context.Context, sessionID, partyID string, completedAt time.Time) error
	MarkPartyNoShow(ctx context.Context, sessionID, partyID string, completedAt time.Time) error
	MarkPartyLeft(ctx context.Context, sessionID, partyID string, completedAt time.Time, positionAtLeave int, waitMs int64) error
	MarkPartyKicked(ctx context.Context, sessionID, partyID string, completedAt time.Time) error
	SetPartyNearby(ctx context.Context, sessionID, partyID string) error
}

// EventRecorder appends analytics events; implementations never block.
type EventRecorder interface {
	RecordQueue(eventType, sessionID string, details map[string]any)
	RecordParty(eventType, sessionID, partyID string, details map[string]any)
}

// Notifier accepts push notification events; implementations never block.
type Notifier interface {
	Notify(n events.Notification)
}

// noShowRetryDelay is how long the coordinator waits before retrying a
// call-window expiry whose persistence failed.
const noShowRetryDelay = 5 * time.Second

// command is one envelope in the coordinator's mailbox.
type command struct {
	run   func(ctx context.Context) (any, error)
	reply chan result
}

type result struct {
	val any
	err error
}

// Coordinator is the single writer for one queue. All mutations execute
// one at a time on the run loop, in mailbox acceptance order; readers use
// the lock-free published snapshot.
type Coordinator struct {
	queue    *models.Queue
	store    Store
	cfg      config.QueueConfig
	recorder EventRecorder
	notifier Notifier
	logger   *slog.Logger

	mailbox chan *command
	stop    chan struct{}
	done    chan struct{}

	// Loop-owned state; never touched off the run goroutine.
	parties      map[string]*models.Party
	calledID     string
	callDeadline time.Time
	timer        *time.Timer
	estimator    *waitEstimator
	notified     map[string]map[events.NotificationKind]bool

	version uint64
	latest  atomic.Pointer[models.Snapshot]

	subMu     sync.Mutex
	subs      map[uint64]chan *models.Snapshot
	nextSubID uint64

	lastActive atomic.Int64

	stopOnce sync.Once
}

// New loads a queue's durable state and starts its run loop. Overdue call
// windows fire immediately; the timer is reconstructed from the persisted
// calledAt, never from process state.
func New(ctx context.Context, st Store, sessionID string, cfg config.QueueConfig, recorder EventRecorder, notifier Notifier) (*Coordinator, error) {
	q, err := st.GetQueue(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	parties, err := st.ListParties(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		queue:     q,
		store:     st,
		cfg:       cfg,
		recorder:  recorder,
		notifier:  notifier,
		logger:    slog.With("component", "coordinator", "session_id", sessionID),
		mailbox:   make(chan *command, cfg.MailboxSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		parties:   make(map[string]*models.Party, len(parties)),
		estimator: newWaitEstimator(cfg.WaitPrior, cfg.WaitFloor, cfg.WaitCeiling),
		notified:  make(map[string]map[events.NotificationKind]bool),
		subs:      make(map[uint64]chan *models.Snapshot),
	}

	for _, p := range parties {
		c.parties[p.ID] = p
		if p.Status == models.PartyStatusCalled {
			c.calledID = p.ID
			if p.CalledAt != nil {
				c.callDeadline = p.CalledAt.Add(cfg.CallWindow)
			} else {
				c.callDeadline = time.Now().Add(cfg.CallWindow)
			}
		}
	}

	served, err := st.ListRecentServed(ctx, sessionID, ewmaWindow)
	if err != nil {
		return nil, err
	}
	for _, p := range served {
		if p.CompletedAt != nil {
			c.estimator.observe(p.CompletedAt.Sub(p.JoinedAt))
		}
	}

	c.touch()
	c.publishSnapshot()
	if c.calledID != "" {
		c.scheduleTimerAt(c.callDeadline)
	}
	go c.run()
	return c, nil
}

// SessionID returns the queue identity this coordinator owns.
func (c *Coordinator) SessionID() string {
	return c.queue.SessionID
}

// ShortCode returns the queue's short code.
func (c *Coordinator) ShortCode() string {
	return c.queue.ShortCode
}

// OwnerID returns the owning user id, nil for anonymous queues. Immutable
// after creation, so safe to read off the loop.
func (c *Coordinator) OwnerID() *string {
	return c.queue.OwnerID
}

// Snapshot returns the latest published snapshot without blocking the
// writer.
func (c *Coordinator) Snapshot() *models.Snapshot {
	return c.latest.Load()
}

// Subscribe attaches a snapshot stream. The current snapshot is delivered
// first unless the subscriber has already seen it (since >= its version).
// Slow subscribers are dropped by having their channel closed.
func (c *Coordinator) Subscribe(since uint64) (<-chan *models.Snapshot, func()) {
	ch := make(chan *models.Snapshot, c.cfg.SubscriberBuffer)

	c.subMu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = ch
	if cur := c.latest.Load(); cur != nil && cur.Version > since {
		ch <- cur
	}
	c.subMu.Unlock()

	metrics.SubscribersActive.Inc()
	c.touch()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subMu.Lock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
			c.subMu.Unlock()
			metrics.SubscribersActive.Dec()
		})
	}
	return ch, cancel
}

// SubscriberCount reports attached snapshot streams.
func (c *Coordinator) SubscriberCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}

// IdleSince returns the last time an action or subscription touched this
// coordinator.
func (c *Coordinator) IdleSince() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Stop shuts the run loop down. Queued commands fail with ErrBusy; the
// in-flight command, if any, completes first.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// do submits a mutation to the run loop and waits for its result. The
// mutation completes even if the caller's context is canceled after
// acceptance; only the response is discarded.
func (c *Coordinator) do(ctx context.Context, name string, run func(ctx context.Context) (any, error)) (any, error) {
	cmd := &command{run: run, reply: make(chan result, 1)}

	select {
	case c.mailbox <- cmd:
	case <-c.stop:
		return nil, ErrBusy
	default:
		metrics.MailboxRejections.Inc()
		metrics.ActionsTotal.WithLabelValues(name, "rejected").Inc()
		return nil, ErrBusy
	}

	c.touch()

	select {
	case res := <-cmd.reply:
		outcome := "ok"
		if res.err != nil {
			outcome = "error"
		}
		metrics.ActionsTotal.WithLabelValues(name, outcome).Inc()
		return res.val, res.err
	case <-ctx.Done():
		metrics.ActionsTotal.WithLabelValues(name, "abandoned").Inc()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrBusy
	}
}

// run is the single-writer loop.
func (c *Coordinator) run() {
	defer close(c.done)
	defer c.drainMailbox()

	for {
		var timerC <-chan time.Time
		if c.timer != nil {
			timerC = c.timer.C
		}

		select {
		case cmd := <-c.mailbox:
			val, err := cmd.run(context.Background())
			cmd.reply <- result{val: val, err: err}
		case <-timerC:
			c.timer = nil
			c.handleCallExpiry()
		case <-c.stop:
			if c.timer != nil {
				c.timer.Stop()
			}
			return
		}
	}
}

// drainMailbox fails commands that were accepted but never ran.
func (c *Coordinator) drainMailbox() {
	for {
		select {
		case cmd := <-c.mailbox:
			cmd.reply <- result{err: ErrBusy}
		default:
			return
		}
	}
}

func (c *Coordinator) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// scheduleTimerAt arms the call-window timer. Loop-owned except during
// construction, before the loop can possibly race.
func (c *Coordinator) scheduleTimerAt(deadline time.Time) {
	c.stopTimer()
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	c.timer = time.NewTimer(d)
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// handleCallExpiry turns an expired call window into a no_show. Runs on
// the loop, so it observes and mutates state atomically with actions.
func (c *Coordinator) handleCallExpiry() {
	if c.calledID == "" {
		return
	}
	p := c.parties[c.calledID]
	if p == nil || p.Status != models.PartyStatusCalled {
		c.calledID = ""
		return
	}
	if time.Now().Before(c.callDeadline) {
		// Rescheduled call; not due yet.
		c.scheduleTimerAt(c.callDeadline)
		return
	}

	now := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := c.store.MarkPartyNoShow(ctx, c.queue.SessionID, p.ID, now)
	cancel()
	if err != nil {
		c.logger.Error("Failed to persist no_show, retrying", "party_id", p.ID, "error", err)
		c.scheduleTimerAt(time.Now().Add(noShowRetryDelay))
		return
	}

	p.Status = models.PartyStatusNoShow
	p.CompletedAt = &now
	c.calledID = ""
	c.callDeadline = time.Time{}

	c.recorder.RecordParty(events.TypeMemberNoShow, c.queue.SessionID, p.ID, nil)
	c.afterMutation()
}

// afterMutation recomputes waiting positions and ETAs, publishes a new
// snapshot, and emits threshold notifications. Runs after every applied
// state change and timer fire.
func (c *Coordinator) afterMutation() {
	waiting := c.waitingOrder()
	for i, p := range waiting {
		eta := c.estimator.estimate(i + 1).Milliseconds()
		p.EstimatedWaitMs = &eta
	}
	c.publishSnapshot()
	c.emitPositionNotifications(waiting)
}

// waitingOrder returns waiting parties sorted by (joinedAt, id).
func (c *Coordinator) waitingOrder() []*models.Party {
	out := make([]*models.Party, 0, len(c.parties))
	for _, p := range c.parties {
		if p.Status == models.PartyStatusWaiting {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// position returns the 1-based waiting position of a party, 0 when it is
// not waiting.
func (c *Coordinator) position(partyID string) int {
	for i, p := range c.waitingOrder() {
		if p.ID == partyID {
			return i + 1
		}
	}
	return 0
}

// emitPositionNotifications fires pos_5/pos_2 once per party as it first
// reaches each threshold. The dispatcher enforces at-most-once against the
// durable ledger too; this in-memory set just avoids flooding it.
func (c *Coordinator) emitPositionNotifications(waiting []*models.Party) {
	for i, p := range waiting {
		pos := i + 1
		if pos <= 5 {
			c.notifyOnce(p.ID, events.KindPos5, "Almost there", "You're in the top 5 — time to head back.")
		}
		if pos <= 2 {
			c.notifyOnce(p.ID, events.KindPos2, "You're up soon", "2 parties or fewer ahead of you — stay close.")
		}
	}
}

func (c *Coordinator) notifyOnce(partyID string, kind events.NotificationKind, title, body string) {
	kinds := c.notified[partyID]
	if kinds == nil {
		kinds = make(map[events.NotificationKind]bool)
		c.notified[partyID] = kinds
	}
	if kinds[kind] {
		return
	}
	kinds[kind] = true
	c.notifier.Notify(events.Notification{
		SessionID: c.queue.SessionID,
		PartyID:   partyID,
		Kind:      kind,
		Title:     title,
		Body:      body,
	})
}

// publishSnapshot builds and broadcasts the next version.
func (c *Coordinator) publishSnapshot() {
	c.version++
	snap := c.buildSnapshot(c.version)
	c.latest.Store(snap)
	c.broadcast(snap)
}

func (c *Coordinator) buildSnapshot(version uint64) *models.Snapshot {
	waiting := c.waitingOrder()
	views := make([]models.PartyView, 0, len(waiting))
	for i, p := range waiting {
		views = append(views, partyView(p, i+1))
	}

	snap := &models.Snapshot{
		Version:         version,
		SessionID:       c.queue.SessionID,
		ShortCode:       c.queue.ShortCode,
		Status:          c.queue.Status,
		EventName:       c.queue.EventName,
		MaxGuests:       c.queue.MaxGuests,
		Location:        c.queue.Location,
		ContactInfo:     c.queue.ContactInfo,
		OpenTime:        c.queue.OpenTime,
		CloseTime:       c.queue.CloseTime,
		RequiresAuth:    c.queue.RequiresAuth,
		Waiting:         views,
		WaitingCount:    len(views),
		EstimatedWaitMs: c.estimator.estimate(len(views) + 1).Milliseconds(),
		UpdatedAt:       time.Now(),
	}
	if c.calledID != "" {
		if p := c.parties[c.calledID]; p != nil {
			v := partyView(p, 0)
			snap.NowServing = &v
			deadline := c.callDeadline
			snap.CallDeadline = &deadline
		}
	}
	return snap
}

func partyView(p *models.Party, position int) models.PartyView {
	v := models.PartyView{
		ID:       p.ID,
		Name:     p.Name,
		Size:     p.Size,
		Status:   p.Status,
		Nearby:   p.Nearby,
		Position: position,
		JoinedAt: p.JoinedAt,
		CalledAt: p.CalledAt,
	}
	if p.EstimatedWaitMs != nil {
		v.EstimatedWaitMs = *p.EstimatedWaitMs
	}
	return v
}

// broadcast delivers a snapshot to every subscriber. A subscriber whose
// buffer is full is dropped rather than back-pressuring the writer.
func (c *Coordinator) broadcast(snap *models.Snapshot) {
	c.subMu.Lock()
	for id, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			delete(c.subs, id)
			close(ch)
			metrics.SubscribersDropped.Inc()
			c.logger.Warn("Dropped slow snapshot subscriber", "subscriber_id", id)
		}
	}
	c.subMu.Unlock()
	metrics.SnapshotBroadcasts.Inc()
}
