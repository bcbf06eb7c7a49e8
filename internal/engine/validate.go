package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/text/cases"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/store"
)

// foldName normalizes an event name for case-insensitive comparison. A
// Caser keeps state, so each call gets its own.
func foldName(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// ensureUniqueName rejects names already used by a non-rejected event other
// than selfID.
func (e Engine) ensureUniqueName(ctx context.Context, name, selfID string) error {
	existing, err := e.events().Query(ctx, store.OneOf("status", domain.StatusPending, domain.StatusApproved, domain.StatusClosed))
	if err != nil {
		return err
	}
	want := foldName(name)
	for _, ev := range existing {
		if ev.ID == selfID {
			continue
		}
		if foldName(ev.Details.EventName) == want {
			return fmt.Errorf("an event named %q already exists", strings.TrimSpace(name))
		}
	}
	return nil
}

// parseDate accepts a calendar date or an RFC3339 timestamp. A calendar
// date used as an end bound covers the whole day.
func parseDate(v string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func validateDates(d domain.EventDate) error {
	var start, end time.Time
	var errs error
	if d.Start != nil && *d.Start != "" {
		t, err := parseDate(*d.Start, false)
		errs = multierr.Append(errs, err)
		start = t
	}
	if d.End != nil && *d.End != "" {
		t, err := parseDate(*d.End, true)
		errs = multierr.Append(errs, err)
		end = t
	}
	if errs != nil {
		return errs
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("end date must not be before start date")
	}
	return nil
}

func validateCriteria(scope string, criteria []domain.Criterion) error {
	var errs error
	seen := map[string]bool{}
	for i, c := range criteria {
		if strings.TrimSpace(c.Title) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s criterion %d: title is required", scope, i))
		}
		if c.Points < 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s criterion %d: points must not be negative", scope, i))
		}
		if strings.TrimSpace(c.Role) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s criterion %d: role is required", scope, i))
		}
		key := c.Key()
		if key == domain.BestPerformerKey {
			errs = multierr.Append(errs, fmt.Errorf("%s criterion %d: key %s is reserved", scope, i, key))
		}
		if seen[key] {
			errs = multierr.Append(errs, fmt.Errorf("%s criterion %d: duplicate key %s", scope, i, key))
		}
		seen[key] = true
	}
	return errs
}

// normalizeDetails fills defaults and generates missing phase ids.
func normalizeDetails(d *domain.EventDetails, requester string) {
	d.EventName = strings.TrimSpace(d.EventName)
	if len(d.Organizers) == 0 {
		d.Organizers = []string{requester}
	}
	for i := range d.Phases {
		if d.Phases[i].ID == "" {
			d.Phases[i].ID = uuid.NewString()
		}
	}
}

// validateRequest checks an event request and aggregates every problem
// into one Validation error.
func (e Engine) validateRequest(ctx context.Context, op string, req EventRequest, participants []string, selfID string) error {
	d := req.Details
	var errs error
	if d.EventName == "" {
		errs = multierr.Append(errs, fmt.Errorf("event name is required"))
	} else if err := e.ensureUniqueName(ctx, d.EventName, selfID); err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return err
		}
		errs = multierr.Append(errs, err)
	}
	switch d.Format {
	case domain.FormatIndividual, domain.FormatTeam, domain.FormatMultiEvent:
	default:
		errs = multierr.Append(errs, fmt.Errorf("format must be Individual, Team or MultiEvent"))
	}
	if err := validateDates(d.Date); err != nil {
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, validateCriteria("event", req.Criteria))
	if d.Format == domain.FormatMultiEvent {
		errs = multierr.Append(errs, validatePhases(d.Phases, participants))
	} else if len(d.Phases) > 0 {
		errs = multierr.Append(errs, fmt.Errorf("phases are only allowed for MultiEvent format"))
	}
	if errs == nil {
		return nil
	}
	msgs := make([]string, 0)
	for _, err := range multierr.Errors(errs) {
		msgs = append(msgs, err.Error())
	}
	return &apperr.Error{Kind: apperr.KindValidation, Op: op, Message: strings.Join(msgs, "; "), Err: errs}
}

func validatePhases(phases []domain.EventPhase, participants []string) error {
	if len(phases) == 0 {
		return fmt.Errorf("MultiEvent format requires at least one phase")
	}
	var errs error
	ids := map[string]bool{}
	allowed := map[string]bool{}
	for _, p := range participants {
		allowed[p] = true
	}
	for i, ph := range phases {
		if ids[ph.ID] {
			errs = multierr.Append(errs, fmt.Errorf("phase %d: duplicate id %s", i, ph.ID))
		}
		ids[ph.ID] = true
		if strings.TrimSpace(ph.PhaseName) == "" {
			errs = multierr.Append(errs, fmt.Errorf("phase %d: name is required", i))
		}
		if ph.Format != domain.FormatIndividual && ph.Format != domain.FormatTeam {
			errs = multierr.Append(errs, fmt.Errorf("phase %d: format must be Individual or Team", i))
		}
		for _, p := range ph.Participants {
			if !allowed[p] {
				errs = multierr.Append(errs, fmt.Errorf("phase %d: participant %s is not an event participant", i, p))
			}
		}
		errs = multierr.Append(errs, validateCriteria(fmt.Sprintf("phase %d", i), ph.Criteria))
	}
	return errs
}
