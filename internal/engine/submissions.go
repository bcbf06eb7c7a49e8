package engine

import (
	"context"
	"net/url"
	"strings"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

type SubmissionInput struct {
	ProjectName string `json:"projectName"`
	Link        string `json:"link"`
	Description string `json:"description,omitempty"`
	PhaseID     string `json:"phaseId,omitempty"`
}

// SubmitProject records the actor's project. Team formats submit on behalf
// of the actor's team. A later submission by the same author for the same
// phase replaces the earlier one.
func (e Engine) SubmitProject(ctx context.Context, actor auth.Actor, id string, in SubmissionInput) (domain.Event, error) {
	const op = "submitProject"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		if err := validateSubmission(op, in); err != nil {
			return nil, err
		}
		format := ev.Details.Format
		allow := ev.Details.AllowProjectSubmission
		teams := ev.Teams
		member := ev.IsParticipant(actor.UID)
		if in.PhaseID != "" {
			phase, ok := ev.Phase(in.PhaseID)
			if !ok {
				return nil, apperr.NotFound(op, "phase %s not found in event %s", in.PhaseID, ev.ID)
			}
			format, allow, teams = phase.Format, phase.AllowProjectSubmission, phase.Teams
			member = contains(phase.Participants, actor.UID) || teamsContain(phase.Teams, actor.UID)
		} else if format == domain.FormatMultiEvent {
			return nil, apperr.Validation(op, "choose a phase to submit to")
		}
		if !allow {
			return nil, apperr.Constraint(op, "project submission is not enabled")
		}
		if !member {
			return nil, auth.Deny(op, auth.CapParticipant)
		}
		if err := e.ensureWindowOpen(op, ev.Details.Date); err != nil {
			return nil, err
		}
		sub := domain.Submission{
			ProjectName:   strings.TrimSpace(in.ProjectName),
			Link:          strings.TrimSpace(in.Link),
			Description:   in.Description,
			SubmittedBy:   actor.UID,
			SubmittedAt:   e.timestamp(),
			ParticipantID: actor.UID,
			PhaseID:       in.PhaseID,
		}
		if format == domain.FormatTeam {
			team, ok := teamOf(teams, actor.UID)
			if !ok {
				return nil, apperr.Constraint(op, "join a team before submitting")
			}
			sub.ParticipantID = team.ID
			sub.TeamName = team.TeamName
		}
		subs := make([]domain.Submission, 0, len(ev.Submissions)+1)
		for _, s := range ev.Submissions {
			if s.ParticipantID == sub.ParticipantID && s.PhaseID == sub.PhaseID {
				continue
			}
			subs = append(subs, s)
		}
		ev.Submissions = append(subs, sub)
		return store.Patch{"submissions": ev.Submissions}, nil
	})
	e.report(ctx, op, err)
	return ev, err
}

func validateSubmission(op string, in SubmissionInput) error {
	if strings.TrimSpace(in.ProjectName) == "" {
		return apperr.Validation(op, "project name is required")
	}
	u, err := url.Parse(strings.TrimSpace(in.Link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation(op, "project link must be an http(s) URL")
	}
	return nil
}

// ensureWindowOpen checks now against the event date window. Open bounds
// never block; a calendar end date covers the whole day.
func (e Engine) ensureWindowOpen(op string, d domain.EventDate) error {
	now := e.now()
	if d.Start != nil && *d.Start != "" {
		start, err := parseDate(*d.Start, false)
		if err == nil && now.Before(start) {
			return apperr.InvalidTransition(op, "submissions open on %s", *d.Start)
		}
	}
	if d.End != nil && *d.End != "" {
		end, err := parseDate(*d.End, true)
		if err == nil && now.After(end) {
			return apperr.InvalidTransition(op, "submissions closed on %s", *d.End)
		}
	}
	return nil
}

func teamOf(teams []domain.Team, uid string) (domain.Team, bool) {
	for _, t := range teams {
		if contains(t.Members, uid) {
			return t, true
		}
	}
	return domain.Team{}, false
}
