package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/metrics"
	"techcomm/internal/store"
)

// XP roles used besides the criteria's own role tags.
const (
	RoleParticipation = "xp_participation"
	RoleOrganizer     = "xp_organizer"
	RoleBestPerformer = "xp_bestPerformer"
)

// AwardXP computes and stores the XP of a Closed event. It is idempotent:
// a completed event is returned unchanged. A concurrent call for the same
// event fails with AlreadyInProgress.
//
// The in-process lock covers callers sharing this engine. Across processes
// the status is re-read right before the in_progress write, which leaves a
// narrow race window on backends without transactions. An in_progress award
// older than the lease is treated as failed and awarded again.
func (e Engine) AwardXP(ctx context.Context, actor auth.Actor, id string) (domain.Event, error) {
	const op = "awardXP"
	ev, result, err := e.awardXP(ctx, op, actor, id)
	metrics.XPAwards.WithLabelValues(result).Inc()
	e.report(ctx, op, err)
	return ev, err
}

func (e Engine) awardXP(ctx context.Context, op string, actor auth.Actor, id string) (domain.Event, string, error) {
	if err := e.Auth.Authenticated(op, actor); err != nil {
		return domain.Event{}, "rejected", err
	}
	if e.locks != nil {
		l := e.locks.get(e.locks.xp, id)
		if !l.TryLock() {
			return domain.Event{}, "in_progress", apperr.New(apperr.KindAlreadyInProgress, op, "XP awarding for event %s is already running", id)
		}
		defer l.Unlock()
	}
	ev, err := e.events().GetByID(ctx, id)
	if err != nil {
		return domain.Event{}, "error", err
	}
	if err := e.Auth.RequireManager(op, actor, ev); err != nil {
		return ev, "rejected", err
	}
	if err := ensureStatus(op, ev, domain.StatusClosed); err != nil {
		return ev, "rejected", err
	}
	from := ev.XPAwardingStatus
	switch from {
	case domain.XPCompleted:
		return ev, "noop", nil
	case domain.XPInProgress:
		if !e.staleAward(ev) {
			return ev, "in_progress", apperr.New(apperr.KindAlreadyInProgress, op, "XP awarding for event %s is already running", id)
		}
		e.logger().Warn("reclaiming stale XP award", "event", id, "started_at", ev.XPAwardStartedAt)
		reason := fmt.Sprintf("award started at %s did not finish", ev.XPAwardStartedAt)
		if _, err := e.writeXPStatus(ctx, op, id, domain.XPInProgress, domain.XPFailed, store.Patch{"xpAwardError": reason}); err != nil {
			return ev, "error", err
		}
		from = domain.XPFailed
	}

	started, err := e.writeXPStatus(ctx, op, id, from, domain.XPInProgress, store.Patch{
		"xpAwardError":     "",
		"xpAwardStartedAt": e.timestamp(),
	})
	if err != nil {
		return ev, "error", err
	}
	awards, calcErr := e.computeXP(ctx, op, started)
	if calcErr != nil {
		failed, releaseErr := e.releaseAward(ctx, op, started, calcErr)
		return failed, "failed", releaseErr
	}
	done, err := e.writeXPStatus(ctx, op, id, domain.XPInProgress, domain.XPCompleted, store.Patch{
		"xpAwards":     awards,
		"xpAwardedAt":  e.timestamp(),
		"xpAwardError": "",
	})
	if err != nil {
		failed, releaseErr := e.releaseAward(ctx, op, started, err)
		return failed, "error", releaseErr
	}
	return done, "completed", nil
}

// releaseAward moves an unfinished award from in_progress to failed so a
// later call may retry it. When that write fails too the award stays
// in_progress until its lease runs out.
func (e Engine) releaseAward(ctx context.Context, op string, started domain.Event, cause error) (domain.Event, error) {
	failed, err := e.writeXPStatus(ctx, op, started.ID, domain.XPInProgress, domain.XPFailed, store.Patch{"xpAwardError": cause.Error()})
	if err != nil {
		e.logger().Error("XP award left in progress", "event", started.ID, "error", err)
		return started, multierr.Append(cause, err)
	}
	return failed, cause
}

// xpLease bounds how long an in_progress award may stand before another
// call takes it over.
func (e Engine) xpLease() time.Duration {
	timeout := e.Config.Data.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return xpLeaseFactor * timeout
}

const xpLeaseFactor = 6

// staleAward reports whether an in_progress award outlived its lease. An
// award without a readable start time is stale.
func (e Engine) staleAward(ev domain.Event) bool {
	if ev.XPAwardingStatus != domain.XPInProgress {
		return false
	}
	started, err := time.Parse(time.RFC3339, ev.XPAwardStartedAt)
	if err != nil {
		return true
	}
	return e.now().Sub(started) > e.xpLease()
}

// writeXPStatus moves xpAwardingStatus from one value to the next after
// re-reading the stored value, together with any extra fields.
func (e Engine) writeXPStatus(ctx context.Context, op, id string, from, to domain.XPAwardingStatus, extra store.Patch) (domain.Event, error) {
	unlock := e.lock(id)
	defer unlock()
	ev, err := e.events().GetByID(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	current := ev.XPAwardingStatus
	if current == "" {
		current = domain.XPPending
	}
	if from == "" {
		from = domain.XPPending
	}
	if current != from {
		return ev, apperr.New(apperr.KindAlreadyInProgress, op, "XP awarding status of event %s changed to %s", id, current)
	}
	if !domain.ValidXPTransition(from, to) {
		return ev, apperr.InvalidTransition(op, "invalid XP awarding transition %s -> %s", from, to)
	}
	patch := store.Patch{}
	for k, v := range extra {
		patch[k] = v
	}
	ev.XPAwardingStatus = to
	ev.LastUpdatedAt = e.timestamp()
	patch["xpAwardingStatus"] = to
	patch["lastUpdatedAt"] = ev.LastUpdatedAt
	if v, ok := patch["xpAwardError"].(string); ok {
		ev.XPAwardError = v
	}
	if v, ok := patch["xpAwardStartedAt"].(string); ok {
		ev.XPAwardStartedAt = v
	}
	if v, ok := patch["xpAwardedAt"].(string); ok {
		ev.XPAwardedAt = v
	}
	if v, ok := patch["xpAwards"].(map[string]map[string]int); ok {
		ev.XPAwards = v
	}
	if err := e.events().Update(ctx, id, patch); err != nil {
		return ev, err
	}
	return ev, nil
}

// computeXP returns uid -> role -> points. Every recipient must be a known
// student and every winner id must resolve to a team or a participant.
func (e Engine) computeXP(ctx context.Context, op string, ev domain.Event) (map[string]map[string]int, error) {
	xp := e.Config.XP
	awards := map[string]map[string]int{}
	add := func(uid, role string, points int) {
		if uid == "" || points <= 0 {
			return
		}
		if awards[uid] == nil {
			awards[uid] = map[string]int{}
		}
		awards[uid][role] += points
	}

	for _, uid := range eventMembers(ev) {
		add(uid, RoleParticipation, xp.Participation)
	}
	for _, uid := range dedupe(ev.Details.Organizers) {
		add(uid, RoleOrganizer, xp.Organizer)
	}

	var errs error
	award := func(scope string, winners map[string][]string, criteria []domain.Criterion, teams []domain.Team, members []string) {
		for _, c := range criteria {
			for _, w := range winners[c.Key()] {
				uids, ok := resolveWinner(w, teams, members)
				if !ok {
					errs = multierr.Append(errs, fmt.Errorf("%s winner %s for criterion %s does not resolve", scope, w, c.Key()))
					continue
				}
				for _, uid := range uids {
					add(uid, c.Role, c.Points)
				}
			}
		}
		for _, w := range winners[domain.BestPerformerKey] {
			uids, ok := resolveWinner(w, teams, members)
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("%s best performer %s does not resolve", scope, w))
				continue
			}
			for _, uid := range uids {
				add(uid, RoleBestPerformer, xp.BestPerformer)
			}
		}
	}
	all := eventMembers(ev)
	award("event", ev.Winners, ev.Criteria, ev.Teams, all)
	for _, ph := range ev.Details.Phases {
		teams := ph.Teams
		if len(teams) == 0 {
			teams = ev.Teams
		}
		award("phase "+ph.ID, ph.Winners, ph.Criteria, teams, all)
	}
	if errs != nil {
		return nil, apperr.Constraint(op, "%v", errs)
	}

	recipients := make([]string, 0, len(awards))
	for uid := range awards {
		recipients = append(recipients, uid)
	}
	sort.Strings(recipients)
	if len(recipients) == 0 {
		return awards, nil
	}
	found, err := e.Store.Students().Query(ctx, store.OneOf(store.StudentIDField, recipients...))
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	for _, s := range found {
		known[s.UID] = true
	}
	var missing []string
	for _, uid := range recipients {
		if !known[uid] {
			missing = append(missing, uid)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Constraint(op, "unknown students %v", missing)
	}
	return awards, nil
}

// eventMembers lists everyone taking part in ev: direct participants, team
// members and phase participants.
func eventMembers(ev domain.Event) []string {
	ids := appendCopy(ev.Participants, ev.TeamMemberFlatList...)
	for _, ph := range ev.Details.Phases {
		ids = append(ids, ph.Participants...)
		ids = append(ids, domain.FlattenTeamMembers(ph.Teams)...)
	}
	return dedupe(ids)
}

func resolveWinner(id string, teams []domain.Team, members []string) ([]string, bool) {
	for _, t := range teams {
		if t.ID == id {
			return t.Members, true
		}
	}
	if contains(members, id) {
		return []string{id}, true
	}
	return nil, false
}

// PendingAwards lists Closed events whose XP is pending, failed or stuck
// in_progress past its lease.
func (e Engine) PendingAwards(ctx context.Context) ([]domain.Event, error) {
	candidates, err := e.events().Query(ctx,
		store.Equals("status", domain.StatusClosed),
		store.OneOf("xpAwardingStatus", domain.XPPending, domain.XPFailed, domain.XPInProgress),
	)
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, ev := range candidates {
		if ev.XPAwardingStatus == domain.XPInProgress && !e.staleAward(ev) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// SweepXP awards XP for every event PendingAwards lists, as the system
// actor. Events already being awarded are skipped.
func (e Engine) SweepXP(ctx context.Context) (int, error) {
	pending, err := e.PendingAwards(ctx)
	if err != nil {
		return 0, err
	}
	awarded := 0
	var errs error
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return awarded, multierr.Append(errs, err)
		}
		_, err := e.AwardXP(ctx, auth.System, ev.ID)
		switch {
		case err == nil:
			awarded++
		case errors.Is(err, apperr.ErrAlreadyInProgress):
		default:
			errs = multierr.Append(errs, err)
		}
	}
	return awarded, errs
}
