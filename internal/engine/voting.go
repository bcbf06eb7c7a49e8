package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

// WinnerSelection is a manual pick of winners. Phases maps a phase id to
// that phase's winners.
type WinnerSelection struct {
	Winners map[string][]string            `json:"winners"`
	Phases  map[string]map[string][]string `json:"phases,omitempty"`
}

// OpenVoting starts peer voting on an Approved event with criteria.
func (e Engine) OpenVoting(ctx context.Context, actor auth.Actor, id string) (domain.Event, error) {
	const op = "openVoting"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireManager(op, actor, *ev); err != nil {
			return nil, err
		}
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		if ev.VotingOpen {
			return nil, nil
		}
		if len(ev.Winners) > 0 {
			return nil, apperr.InvalidTransition(op, "winners of event %s are already selected", ev.ID)
		}
		if len(ev.Criteria) == 0 {
			return nil, apperr.Constraint(op, "event %s has no criteria to vote on", ev.ID)
		}
		ev.VotingOpen = true
		return store.Patch{"votingOpen": true}, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// SubmitCriteriaVote records a voter's team pick per criterion on a Team
// event, plus an optional best performer. Votes overwrite earlier ones for
// the same criterion.
func (e Engine) SubmitCriteriaVote(ctx context.Context, actor auth.Actor, id string, votes map[string]string, bestPerformer string) (domain.Event, error) {
	const op = "submitCriteriaVote"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureVoter(op, actor, *ev); err != nil {
			return nil, err
		}
		if ev.Details.Format != domain.FormatTeam {
			return nil, apperr.Constraint(op, "criteria votes are for Team events, use a winner vote")
		}
		for key, teamID := range votes {
			if _, ok := ev.CriterionByKey(key); !ok {
				return nil, apperr.Validation(op, "unknown criterion %s", key)
			}
			if !hasTeam(ev.Teams, teamID) {
				return nil, apperr.Validation(op, "unknown team %s", teamID)
			}
		}
		if bestPerformer != "" && !contains(ev.TeamMemberFlatList, bestPerformer) {
			return nil, apperr.Validation(op, "best performer %s is not on a team", bestPerformer)
		}
		patch := recordVotes(ev, actor.UID, votes)
		if bestPerformer != "" {
			sel := make(map[string]string, len(ev.BestPerformerSelections)+1)
			for k, v := range ev.BestPerformerSelections {
				sel[k] = v
			}
			sel[actor.UID] = bestPerformer
			ev.BestPerformerSelections = sel
			patch["bestPerformerSelections"] = sel
		}
		if len(patch) == 0 {
			return nil, apperr.Validation(op, "no votes given")
		}
		return patch, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// SubmitWinnerVote records a voter's participant pick per criterion on an
// Individual event.
func (e Engine) SubmitWinnerVote(ctx context.Context, actor auth.Actor, id string, votes map[string]string) (domain.Event, error) {
	const op = "submitWinnerVote"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureVoter(op, actor, *ev); err != nil {
			return nil, err
		}
		if ev.Details.Format != domain.FormatIndividual {
			return nil, apperr.Constraint(op, "winner votes are for Individual events")
		}
		if len(votes) == 0 {
			return nil, apperr.Validation(op, "no votes given")
		}
		for key, uid := range votes {
			if _, ok := ev.CriterionByKey(key); !ok {
				return nil, apperr.Validation(op, "unknown criterion %s", key)
			}
			if !contains(ev.Participants, uid) {
				return nil, apperr.Validation(op, "%s is not a participant", uid)
			}
		}
		return recordVotes(ev, actor.UID, votes), nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// SubmitManualWinnerSelection sets winners directly, bypassing the tally,
// and closes voting.
func (e Engine) SubmitManualWinnerSelection(ctx context.Context, actor auth.Actor, id string, sel WinnerSelection) (domain.Event, error) {
	const op = "submitManualSelection"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireManager(op, actor, *ev); err != nil {
			return nil, err
		}
		if err := ensureVotingOpen(op, *ev); err != nil {
			return nil, err
		}
		winners, err := cleanWinners(op, sel.Winners)
		if err != nil {
			return nil, err
		}
		if len(winners) == 0 && len(sel.Phases) == 0 {
			return nil, apperr.Validation(op, "no winners selected")
		}
		members := eventMembers(*ev)
		if err := checkWinners(op, "event", winners, ev.Criteria, ev.Teams, members); err != nil {
			return nil, err
		}
		patch := store.Patch{}
		if len(sel.Phases) > 0 {
			phases := clonePhases(ev.Details.Phases)
			for phaseID, pw := range sel.Phases {
				idx := phaseIndex(*ev, phaseID)
				if idx < 0 {
					return nil, apperr.NotFound(op, "phase %s not found in event %s", phaseID, ev.ID)
				}
				cleaned, err := cleanWinners(op, pw)
				if err != nil {
					return nil, err
				}
				teams := phases[idx].Teams
				if len(teams) == 0 {
					teams = ev.Teams
				}
				if err := checkWinners(op, "phase "+phaseID, cleaned, phases[idx].Criteria, teams, members); err != nil {
					return nil, err
				}
				phases[idx].Winners = cleaned
			}
			ev.Details.Phases = phases
			patch["details"] = ev.Details
		}
		ev.Winners = winners
		ev.ManuallySelectedBy = actor.UID
		ev.VotingOpen = false
		patch["winners"] = ev.Winners
		patch["manuallySelectedBy"] = ev.ManuallySelectedBy
		patch["votingOpen"] = false
		return patch, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// CloseVoting ends voting and tallies the recorded votes into winners.
func (e Engine) CloseVoting(ctx context.Context, actor auth.Actor, id string) (domain.Event, error) {
	const op = "closeVoting"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := e.Auth.RequireManager(op, actor, *ev); err != nil {
			return nil, err
		}
		if err := ensureVotingOpen(op, *ev); err != nil {
			return nil, err
		}
		ev.Winners = tally(*ev)
		ev.VotingOpen = false
		return store.Patch{"winners": ev.Winners, "votingOpen": false}, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

// tally picks the most voted candidate per criterion and the most selected
// best performer. Ties go to the lowest candidate id.
func tally(ev domain.Event) map[string][]string {
	winners := map[string][]string{}
	perCriterion := map[string]map[string]int{}
	for _, votes := range ev.CriteriaVotes {
		for key, candidate := range votes {
			if perCriterion[key] == nil {
				perCriterion[key] = map[string]int{}
			}
			perCriterion[key][candidate]++
		}
	}
	for key, counts := range perCriterion {
		if w, ok := topCandidate(counts); ok {
			winners[key] = []string{w}
		}
	}
	best := map[string]int{}
	for _, candidate := range ev.BestPerformerSelections {
		best[candidate]++
	}
	if w, ok := topCandidate(best); ok {
		winners[domain.BestPerformerKey] = []string{w}
	}
	return winners
}

func topCandidate(counts map[string]int) (string, bool) {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	top := ids[0]
	for _, id := range ids[1:] {
		if counts[id] > counts[top] {
			top = id
		}
	}
	return top, true
}

func ensureVotingOpen(op string, ev domain.Event) error {
	if err := ensureStatus(op, ev, domain.StatusApproved); err != nil {
		return err
	}
	if !ev.VotingOpen {
		return apperr.InvalidTransition(op, "voting is not open for event %s", ev.ID)
	}
	return nil
}

func ensureVoter(op string, actor auth.Actor, ev domain.Event) error {
	if err := ensureVotingOpen(op, ev); err != nil {
		return err
	}
	if !ev.IsParticipant(actor.UID) {
		return auth.Deny(op, auth.CapParticipant)
	}
	return nil
}

// recordVotes merges votes into the voter's ballot, copying the maps so the
// loaded event stays untouched.
func recordVotes(ev *domain.Event, voter string, votes map[string]string) store.Patch {
	if len(votes) == 0 {
		return store.Patch{}
	}
	all := make(map[string]map[string]string, len(ev.CriteriaVotes)+1)
	for k, v := range ev.CriteriaVotes {
		all[k] = v
	}
	ballot := map[string]string{}
	for k, v := range all[voter] {
		ballot[k] = v
	}
	for k, v := range votes {
		ballot[k] = v
	}
	all[voter] = ballot
	ev.CriteriaVotes = all
	return store.Patch{"criteriaVotes": all}
}

func cleanWinners(op string, in map[string][]string) (map[string][]string, error) {
	out := make(map[string][]string, len(in))
	for key, ids := range in {
		if key == "" {
			return nil, apperr.Validation(op, "winner key is required")
		}
		ids = dedupe(ids)
		if len(ids) == 0 {
			continue
		}
		out[key] = ids
	}
	return out, nil
}

// checkWinners verifies that every winner key names a criterion or the best
// performer and that every winner resolves to a team or a member.
func checkWinners(op, scope string, winners map[string][]string, criteria []domain.Criterion, teams []domain.Team, members []string) error {
	known := map[string]bool{domain.BestPerformerKey: true}
	for _, c := range criteria {
		known[c.Key()] = true
	}
	keys := make([]string, 0, len(winners))
	for key := range winners {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var errs error
	for _, key := range keys {
		if !known[key] {
			errs = multierr.Append(errs, fmt.Errorf("%s has no criterion %s", scope, key))
			continue
		}
		for _, id := range winners[key] {
			if _, ok := resolveWinner(id, teams, members); !ok {
				errs = multierr.Append(errs, fmt.Errorf("%s winner %s is neither a team nor a participant", scope, id))
			}
		}
	}
	if errs != nil {
		return apperr.Validation(op, "%v", errs)
	}
	return nil
}

func hasTeam(teams []domain.Team, id string) bool {
	for _, t := range teams {
		if t.ID == id {
			return true
		}
	}
	return false
}
