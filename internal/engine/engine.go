package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"techcomm/internal/apperr"
	"techcomm/internal/config"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/metrics"
	"techcomm/internal/notify"
	"techcomm/internal/store"
)

type Engine struct {
	Store  store.Adapter
	Config *config.Config
	Auth   auth.Checker
	Notify notify.Sink
	Log    *slog.Logger
	Now    func() time.Time

	locks *lockTable
}

func New(st store.Adapter, cfg *config.Config, sink notify.Sink, log *slog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if sink == nil {
		sink = notify.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return Engine{
		Store:  st,
		Config: cfg,
		Auth:   auth.Checker{Roles: cfg.Roles},
		Notify: sink,
		Log:    log,
		Now:    time.Now,
		locks:  newLockTable(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() store.EventStore { return e.Store.Events() }

type lockTable struct {
	mu    sync.Mutex
	event map[string]*sync.Mutex
	xp    map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{event: map[string]*sync.Mutex{}, xp: map[string]*sync.Mutex{}}
}

func (t *lockTable) get(m map[string]*sync.Mutex, id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := m[id]
	if !ok {
		l = &sync.Mutex{}
		m[id] = l
	}
	return l
}

// lock sequences operations on one event id. The empty id guards event
// creation.
func (e Engine) lock(id string) func() {
	if e.locks == nil {
		return func() {}
	}
	l := e.locks.get(e.locks.event, id)
	l.Lock()
	return l.Unlock
}

// mutation computes the patch for one operation on ev, mutating ev to the
// resulting state. A nil patch means the operation is a no-op.
type mutation func(ev *domain.Event) (store.Patch, error)

// mutate loads the event, applies fn and writes the result as one patch
// after the invariants hold.
func (e Engine) mutate(ctx context.Context, op string, actor auth.Actor, id string, fn mutation) (domain.Event, error) {
	if err := e.Auth.Authenticated(op, actor); err != nil {
		return domain.Event{}, err
	}
	unlock := e.lock(id)
	defer unlock()
	ev, err := e.events().GetByID(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	before := ev
	patch, err := fn(&ev)
	if err != nil {
		return before, err
	}
	if patch == nil {
		return ev, nil
	}
	ev.LastUpdatedAt = e.timestamp()
	patch["lastUpdatedAt"] = ev.LastUpdatedAt
	if err := ev.CheckInvariants(); err != nil {
		return before, apperr.New(apperr.KindConstraint, op, "event %s would break an invariant: %v", id, err)
	}
	if err := e.events().Update(ctx, id, patch); err != nil {
		return before, err
	}
	return ev, nil
}

var successMessages = map[string]string{
	"requestEvent":          "Event request submitted.",
	"editRequest":           "Event request updated.",
	"deleteRequest":         "Event request deleted.",
	"approve":               "Event approved.",
	"reject":                "Event request rejected.",
	"close":                 "Event closed.",
	"join":                  "You joined the event.",
	"joinPhase":             "You joined the phase.",
	"leave":                 "You left the event.",
	"autoGenerateTeams":     "Teams generated.",
	"setTeams":              "Teams saved.",
	"submitProject":         "Project submitted.",
	"openVoting":            "Voting is open.",
	"submitCriteriaVote":    "Vote recorded.",
	"submitWinnerVote":      "Vote recorded.",
	"submitManualSelection": "Winners saved.",
	"closeVoting":           "Voting closed and winners selected.",
	"awardXP":               "XP awarded.",
	"rateOrganizers":        "Thanks for rating the organizers.",
}

// report emits exactly one notification and records metrics for a
// finished mutation.
func (e Engine) report(ctx context.Context, op string, err error) {
	outcome := "ok"
	n := notify.Notification{Severity: notify.SeveritySuccess, Message: successMessages[op]}
	if err != nil {
		kind := apperr.KindOf(err)
		outcome = string(kind)
		n = notify.Notification{Severity: notify.SeverityError, Message: apperr.UserMessage(err)}
		switch kind {
		case apperr.KindInvalidTransition, apperr.KindConstraint:
			e.logger().Warn("engine operation rejected", "op", op, "err", err)
		case apperr.KindStorageUnavailable, apperr.KindNotInitialized, apperr.KindUnknown:
			e.logger().Error("engine operation failed", "op", op, "err", err)
		default:
			e.logger().Debug("engine operation refused", "op", op, "err", err)
		}
	}
	if n.Message == "" {
		n.Message = "Done."
	}
	n.Op = op
	n.DurationHint = notify.DefaultDuration(n.Severity)
	metrics.EngineOperations.WithLabelValues(op, outcome).Inc()
	if e.Notify != nil {
		e.Notify.Notify(ctx, n)
	}
}

func (e Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// ensureStatus enforces the state machine for an operation that needs one
// of the allowed statuses.
func ensureStatus(op string, ev domain.Event, allowed ...domain.EventStatus) error {
	for _, s := range allowed {
		if ev.Status == s {
			return nil
		}
	}
	return apperr.InvalidTransition(op, "event %s is %s", ev.ID, ev.Status)
}

func ensureTransition(op string, from, to domain.EventStatus) error {
	switch from {
	case domain.StatusPending:
		if to == domain.StatusApproved || to == domain.StatusRejected {
			return nil
		}
	case domain.StatusApproved:
		if to == domain.StatusClosed {
			return nil
		}
	}
	return apperr.InvalidTransition(op, "invalid event status transition %s -> %s", from, to)
}

// stamp sets a lifecycle timestamp once, never earlier than any timestamp
// already recorded.
func (e Engine) stamp(ts *domain.LifecycleTimestamps, field *string) {
	if *field != "" {
		return
	}
	now := e.now().UTC()
	for _, existing := range []string{ts.CreatedAt, ts.ApprovedAt, ts.StartedAt, ts.RejectedAt, ts.CompletedAt, ts.CancelledAt, ts.ClosedAt} {
		if existing == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, existing); err == nil && t.After(now) {
			now = t
		}
	}
	*field = now.Format(time.RFC3339)
}
