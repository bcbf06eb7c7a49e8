package engine

import (
	"context"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

// Join adds the actor to the event's participants. Joining twice is a
// no-op. Team events require the actor to be on a team already.
func (e Engine) Join(ctx context.Context, actor auth.Actor, id string) (domain.Event, error) {
	const op = "join"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		if ev.Details.Format == domain.FormatTeam && !contains(ev.TeamMemberFlatList, actor.UID) {
			return nil, apperr.Constraint(op, "join a team before joining event %s", ev.ID)
		}
		if contains(ev.Participants, actor.UID) {
			return nil, nil
		}
		ev.Participants = appendCopy(ev.Participants, actor.UID)
		return store.Patch{"participants": ev.Participants}, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// JoinPhase adds the actor to one phase of a MultiEvent, joining the event
// as well when needed.
func (e Engine) JoinPhase(ctx context.Context, actor auth.Actor, id, phaseID string) (domain.Event, error) {
	const op = "joinPhase"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		idx := phaseIndex(*ev, phaseID)
		if idx < 0 {
			return nil, apperr.NotFound(op, "phase %s not found in event %s", phaseID, ev.ID)
		}
		phase := ev.Details.Phases[idx]
		if phase.Format == domain.FormatTeam && !teamsContain(phase.Teams, actor.UID) {
			return nil, apperr.Constraint(op, "join a team before joining phase %s", phaseID)
		}
		patch := store.Patch{}
		if !ev.IsParticipant(actor.UID) {
			ev.Participants = appendCopy(ev.Participants, actor.UID)
			patch["participants"] = ev.Participants
		}
		if contains(phase.Participants, actor.UID) {
			if len(patch) == 0 {
				return nil, nil
			}
		} else {
			phases := clonePhases(ev.Details.Phases)
			phases[idx].Participants = appendCopy(phases[idx].Participants, actor.UID)
			ev.Details.Phases = phases
			patch["details"] = ev.Details
		}
		return patch, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// Leave removes the actor from the event, its team and every phase.
// Leaving when not a member is a no-op.
func (e Engine) Leave(ctx context.Context, actor auth.Actor, id string) (domain.Event, error) {
	const op = "leave"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		uid := actor.UID
		patch := store.Patch{}
		if contains(ev.Participants, uid) {
			ev.Participants = without(ev.Participants, uid)
			patch["participants"] = ev.Participants
		}
		if teamsContain(ev.Teams, uid) {
			ev.Teams = removeFromTeams(ev.Teams, uid)
			ev.TeamMemberFlatList = domain.FlattenTeamMembers(ev.Teams)
			patch["teams"] = ev.Teams
			patch["teamMemberFlatList"] = ev.TeamMemberFlatList
		}
		phaseChanged := false
		phases := clonePhases(ev.Details.Phases)
		for i := range phases {
			if contains(phases[i].Participants, uid) {
				phases[i].Participants = without(phases[i].Participants, uid)
				phaseChanged = true
			}
			if teamsContain(phases[i].Teams, uid) {
				phases[i].Teams = removeFromTeams(phases[i].Teams, uid)
				phaseChanged = true
			}
		}
		if phaseChanged {
			ev.Details.Phases = phases
			patch["details"] = ev.Details
		}
		if len(patch) == 0 {
			return nil, nil
		}
		return patch, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// removeFromTeams drops uid from its team, reassigning the lead and
// dropping teams left empty.
func removeFromTeams(teams []domain.Team, uid string) []domain.Team {
	out := make([]domain.Team, 0, len(teams))
	for _, t := range teams {
		if contains(t.Members, uid) {
			t.Members = without(t.Members, uid)
			if len(t.Members) == 0 {
				continue
			}
			if t.TeamLead == uid {
				t.TeamLead = t.Members[0]
			}
		}
		out = append(out, t)
	}
	return out
}

func teamsContain(teams []domain.Team, uid string) bool {
	for _, t := range teams {
		if contains(t.Members, uid) {
			return true
		}
	}
	return false
}

func phaseIndex(ev domain.Event, phaseID string) int {
	for i, p := range ev.Details.Phases {
		if p.ID == phaseID {
			return i
		}
	}
	return -1
}

func clonePhases(in []domain.EventPhase) []domain.EventPhase {
	if in == nil {
		return nil
	}
	out := make([]domain.EventPhase, len(in))
	copy(out, in)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// appendCopy appends to a fresh slice so the loaded event stays untouched.
func appendCopy(list []string, v ...string) []string {
	out := make([]string, 0, len(list)+len(v))
	out = append(out, list...)
	return append(out, v...)
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
