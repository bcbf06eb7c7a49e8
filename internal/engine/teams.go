package engine

import (
	"context"
	"fmt"
	"strings"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

// PartitionTeams splits ids into ceil(n/maxSize) teams by round-robin in input
// order. Every team size lands in [minSize, maxSize] or a Constraint error is
// returned; the result is the same for the same input.
func PartitionTeams(op string, ids []string, minSize, maxSize int) ([]domain.Team, error) {
	if minSize < 1 {
		return nil, apperr.Constraint(op, "minimum team size must be at least 1")
	}
	if minSize > maxSize {
		return nil, apperr.Constraint(op, "minimum team size %d exceeds maximum %d", minSize, maxSize)
	}
	members := dedupe(ids)
	n := len(members)
	if n < minSize {
		return nil, apperr.Constraint(op, "%d participants cannot fill a team of at least %d", n, minSize)
	}
	k := (n + maxSize - 1) / maxSize
	if n/k < minSize {
		return nil, apperr.Constraint(op, "%d participants cannot be split into teams of %d to %d", n, minSize, maxSize)
	}
	teams := make([]domain.Team, k)
	for i := range teams {
		teams[i] = domain.Team{
			ID:       fmt.Sprintf("team-%d", i+1),
			TeamName: fmt.Sprintf("Team %d", i+1),
			Members:  []string{},
		}
	}
	for i, uid := range members {
		t := &teams[i%k]
		t.Members = append(t.Members, uid)
	}
	for i := range teams {
		teams[i].TeamLead = teams[i].Members[0]
	}
	return teams, nil
}

// AutoGenerateTeams replaces the teams of a Team event with a deterministic
// partition of studentIDs. Every student becomes a participant.
func (e Engine) AutoGenerateTeams(ctx context.Context, actor auth.Actor, id string, studentIDs []string, minSize, maxSize int) (domain.Event, error) {
	const op = "autoGenerateTeams"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireManager(op, actor, *ev); err != nil {
			return nil, err
		}
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		if ev.Details.Format != domain.FormatTeam {
			return nil, apperr.Constraint(op, "event %s is not a Team event", ev.ID)
		}
		teams, err := PartitionTeams(op, studentIDs, minSize, maxSize)
		if err != nil {
			return nil, err
		}
		return e.assignTeams(ev, teams), nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// SetTeams replaces the teams of a Team event with manually composed ones.
func (e Engine) SetTeams(ctx context.Context, actor auth.Actor, id string, teams []domain.Team) (domain.Event, error) {
	const op = "setTeams"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireManager(op, actor, *ev); err != nil {
			return nil, err
		}
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		if ev.Details.Format != domain.FormatTeam {
			return nil, apperr.Constraint(op, "event %s is not a Team event", ev.ID)
		}
		normalized, err := normalizeTeams(op, teams)
		if err != nil {
			return nil, err
		}
		return e.assignTeams(ev, normalized), nil
	})
	e.report(ctx, op, err)
	return ev, err
}

func (e Engine) assignTeams(ev *domain.Event, teams []domain.Team) store.Patch {
	ev.Teams = teams
	ev.TeamMemberFlatList = domain.FlattenTeamMembers(teams)
	participants := appendCopy(ev.Participants)
	for _, t := range teams {
		for _, m := range t.Members {
			if !contains(participants, m) {
				participants = append(participants, m)
			}
		}
	}
	ev.Participants = participants
	return store.Patch{
		"teams":              ev.Teams,
		"teamMemberFlatList": ev.TeamMemberFlatList,
		"participants":       ev.Participants,
	}
}

func normalizeTeams(op string, teams []domain.Team) ([]domain.Team, error) {
	out := make([]domain.Team, 0, len(teams))
	ids := map[string]bool{}
	owner := map[string]string{}
	for i, t := range teams {
		if t.ID == "" {
			t.ID = fmt.Sprintf("team-%d", i+1)
		}
		if ids[t.ID] {
			return nil, apperr.Validation(op, "duplicate team id %s", t.ID)
		}
		ids[t.ID] = true
		t.TeamName = strings.TrimSpace(t.TeamName)
		if t.TeamName == "" {
			return nil, apperr.Validation(op, "team %s needs a name", t.ID)
		}
		t.Members = dedupe(t.Members)
		if len(t.Members) == 0 {
			return nil, apperr.Validation(op, "team %s has no members", t.ID)
		}
		for _, m := range t.Members {
			if prev, ok := owner[m]; ok {
				return nil, apperr.Constraint(op, "member %s is on teams %s and %s", m, prev, t.ID)
			}
			owner[m] = t.ID
		}
		if t.TeamLead == "" {
			t.TeamLead = t.Members[0]
		} else if !contains(t.Members, t.TeamLead) {
			return nil, apperr.Validation(op, "team lead %s is not a member of %s", t.TeamLead, t.ID)
		}
		out = append(out, t)
	}
	return out, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
