package engine

import (
	"context"
	"sort"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

// ListEvents returns the events matching every filter.
func (e Engine) ListEvents(ctx context.Context, filters ...store.Filter) ([]domain.Event, error) {
	return e.events().Query(ctx, filters...)
}

// PublicEvents lists events any member may see.
func (e Engine) PublicEvents(ctx context.Context) ([]domain.Event, error) {
	return e.events().Query(ctx, store.OneOf("status", domain.StatusApproved, domain.StatusClosed))
}

// MyRequests lists the events requested by uid, newest first.
func (e Engine) MyRequests(ctx context.Context, uid string) ([]domain.Event, error) {
	if uid == "" {
		return []domain.Event{}, nil
	}
	out, err := e.events().Query(ctx, store.Equals("requestedBy", uid))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LifecycleTimestamps.CreatedAt > out[j].LifecycleTimestamps.CreatedAt
	})
	return out, nil
}

func (e Engine) HasPendingRequest(ctx context.Context, uid string) (bool, error) {
	if uid == "" {
		return false, nil
	}
	out, err := e.events().Query(ctx, store.Equals("requestedBy", uid), store.Equals("status", domain.StatusPending))
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

// EventForViewer returns the event if viewer may see it. Pending and
// rejected requests are visible to the requester, the event organizers and
// moderators only; everyone else gets NotFound.
func (e Engine) EventForViewer(ctx context.Context, id string, viewer auth.Actor) (domain.Event, error) {
	const op = "eventForViewer"
	ev, err := e.events().GetByID(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	switch ev.Status {
	case domain.StatusApproved, domain.StatusClosed:
		return ev, nil
	}
	if !viewer.Anonymous() && (ev.RequestedBy == viewer.UID || e.Auth.CanManage(viewer, ev)) {
		return ev, nil
	}
	return domain.Event{}, apperr.NotFound(op, "event %s not found", id)
}

// StudentEvents lists the public events uid organizes or takes part in.
func (e Engine) StudentEvents(ctx context.Context, uid string) ([]domain.Event, error) {
	all, err := e.PublicEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Event{}
	for _, ev := range all {
		if ev.IsOrganizer(uid) || contains(eventMembers(ev), uid) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// StudentXP aggregates uid's XP over every event with completed awards.
func (e Engine) StudentXP(ctx context.Context, uid string) (domain.XPData, error) {
	data := domain.XPData{UID: uid, ByRole: map[string]int{}, Events: []string{}}
	done, err := e.events().Query(ctx, store.Equals("xpAwardingStatus", domain.XPCompleted))
	if err != nil {
		return data, err
	}
	for _, ev := range done {
		roles, ok := ev.XPAwards[uid]
		if !ok {
			continue
		}
		data.Events = append(data.Events, ev.ID)
		for role, points := range roles {
			data.ByRole[role] += points
			data.TotalXP += points
		}
	}
	return data, nil
}
