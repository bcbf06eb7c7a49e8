package engine

import (
	"context"
	"strings"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

// EventRequest is the member-supplied part of a new or edited event.
type EventRequest struct {
	Details  domain.EventDetails `json:"details"`
	Criteria []domain.Criterion  `json:"criteria,omitempty"`
}

// RequestEvent creates a Pending event requested by actor.
func (e Engine) RequestEvent(ctx context.Context, actor auth.Actor, req EventRequest) (domain.Event, error) {
	const op = "requestEvent"
	ev, err := e.requestEvent(ctx, op, actor, req)
	e.report(ctx, op, err)
	return ev, err
}

func (e Engine) requestEvent(ctx context.Context, op string, actor auth.Actor, req EventRequest) (domain.Event, error) {
	if err := e.Auth.Authenticated(op, actor); err != nil {
		return domain.Event{}, err
	}
	normalizeDetails(&req.Details, actor.UID)
	unlock := e.lock("")
	defer unlock()
	if err := e.validateRequest(ctx, op, req, nil, ""); err != nil {
		return domain.Event{}, err
	}
	ev := domain.Event{
		Details:            req.Details,
		Status:             domain.StatusPending,
		RequestedBy:        actor.UID,
		Participants:       []string{},
		Teams:              []domain.Team{},
		TeamMemberFlatList: []string{},
		Criteria:           req.Criteria,
		Submissions:        []domain.Submission{},
		XPAwardingStatus:   domain.XPPending,
	}
	if ev.Criteria == nil {
		ev.Criteria = []domain.Criterion{}
	}
	e.stamp(&ev.LifecycleTimestamps, &ev.LifecycleTimestamps.CreatedAt)
	ev.LastUpdatedAt = ev.LifecycleTimestamps.CreatedAt
	if err := ev.CheckInvariants(); err != nil {
		return domain.Event{}, apperr.Validation(op, "%v", err)
	}
	return e.events().Create(ctx, ev)
}

// EditRequest replaces the details of a Pending request. Only the requester
// may edit.
func (e Engine) EditRequest(ctx context.Context, actor auth.Actor, id string, req EventRequest) (domain.Event, error) {
	const op = "editRequest"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureRequester(op, actor, *ev); err != nil {
			return nil, err
		}
		normalizeDetails(&req.Details, ev.RequestedBy)
		if err := e.validateRequest(ctx, op, req, ev.Participants, ev.ID); err != nil {
			return nil, err
		}
		ev.Details = req.Details
		patch := store.Patch{"details": ev.Details}
		if req.Criteria != nil {
			ev.Criteria = req.Criteria
			patch["criteria"] = ev.Criteria
		}
		return patch, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// DeleteRequest removes a Pending request. Only the requester may delete.
func (e Engine) DeleteRequest(ctx context.Context, actor auth.Actor, id string) error {
	const op = "deleteRequest"
	err := e.deleteRequest(ctx, op, actor, id)
	e.report(ctx, op, err)
	return err
}

func (e Engine) deleteRequest(ctx context.Context, op string, actor auth.Actor, id string) error {
	if err := e.Auth.Authenticated(op, actor); err != nil {
		return err
	}
	unlock := e.lock(id)
	defer unlock()
	ev, err := e.events().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureRequester(op, actor, ev); err != nil {
		return err
	}
	return e.events().Delete(ctx, id)
}

func ensureRequester(op string, actor auth.Actor, ev domain.Event) error {
	if ev.RequestedBy != actor.UID {
		return auth.Deny(op, auth.CapRequester)
	}
	if ev.Status != domain.StatusPending {
		return apperr.Forbidden(op, "event %s is no longer pending", ev.ID)
	}
	return nil
}

// Approve moves a Pending event to Approved.
func (e Engine) Approve(ctx context.Context, actor auth.Actor, id string) (domain.Event, error) {
	const op = "approve"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireModerator(op, actor); err != nil {
			return nil, err
		}
		if err := ensureTransition(op, ev.Status, domain.StatusApproved); err != nil {
			return nil, err
		}
		ev.Status = domain.StatusApproved
		e.stamp(&ev.LifecycleTimestamps, &ev.LifecycleTimestamps.ApprovedAt)
		return store.Patch{"status": ev.Status, "lifecycleTimestamps": ev.LifecycleTimestamps}, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// Reject moves a Pending event to the terminal Rejected status. The record
// is kept.
func (e Engine) Reject(ctx context.Context, actor auth.Actor, id, reason string) (domain.Event, error) {
	const op = "reject"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireModerator(op, actor); err != nil {
			return nil, err
		}
		if err := ensureTransition(op, ev.Status, domain.StatusRejected); err != nil {
			return nil, err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return nil, apperr.Validation(op, "a rejection reason is required")
		}
		ev.Status = domain.StatusRejected
		ev.RejectionReason = reason
		e.stamp(&ev.LifecycleTimestamps, &ev.LifecycleTimestamps.RejectedAt)
		return store.Patch{
			"status":              ev.Status,
			"rejectionReason":     ev.RejectionReason,
			"lifecycleTimestamps": ev.LifecycleTimestamps,
		}, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// Close moves an Approved event to Closed and freezes voting. Votes still
// untallied are tallied first.
func (e Engine) Close(ctx context.Context, actor auth.Actor, id string) (domain.Event, error) {
	const op = "close"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireManager(op, actor, *ev); err != nil {
			return nil, err
		}
		if err := ensureTransition(op, ev.Status, domain.StatusClosed); err != nil {
			return nil, err
		}
		patch := store.Patch{}
		if ev.VotingOpen && len(ev.Winners) == 0 {
			if winners := tally(*ev); len(winners) > 0 {
				ev.Winners = winners
				patch["winners"] = ev.Winners
			}
		}
		ev.Status = domain.StatusClosed
		ev.VotingOpen = false
		e.stamp(&ev.LifecycleTimestamps, &ev.LifecycleTimestamps.ClosedAt)
		e.stamp(&ev.LifecycleTimestamps, &ev.LifecycleTimestamps.CompletedAt)
		if ev.XPAwardingStatus == "" {
			ev.XPAwardingStatus = domain.XPPending
			patch["xpAwardingStatus"] = ev.XPAwardingStatus
		}
		patch["status"] = ev.Status
		patch["votingOpen"] = false
		patch["lifecycleTimestamps"] = ev.LifecycleTimestamps
		return patch, nil
	})
	e.report(ctx, op, err)
	return ev, err
}
