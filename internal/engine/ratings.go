package engine

import (
	"context"
	"strings"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

// RateOrganizers stores the actor's 1-5 rating of the event organizers. A
// second rating replaces the first.
func (e Engine) RateOrganizers(ctx context.Context, actor auth.Actor, id string, score int, feedback string) (domain.Event, error) {
	const op = "rateOrganizers"
	ev, err := e.mutate(ctx, op, actor, id, func(ev *domain.Event) (store.Patch, error) {
		if err := ensureStatus(op, *ev, domain.StatusApproved); err != nil {
			return nil, err
		}
		if !ev.IsParticipant(actor.UID) {
			return nil, auth.Deny(op, auth.CapParticipant)
		}
		if score < 1 || score > 5 {
			return nil, apperr.Validation(op, "rating must be between 1 and 5")
		}
		ratings := make(map[string]domain.OrganizerRating, len(ev.OrganizerRatings)+1)
		for k, v := range ev.OrganizerRatings {
			ratings[k] = v
		}
		ratings[actor.UID] = domain.OrganizerRating{
			UserID:   actor.UID,
			Rating:   score,
			Feedback: strings.TrimSpace(feedback),
			RatedAt:  e.timestamp(),
		}
		ev.OrganizerRatings = ratings
		return store.Patch{"organizerRatings": ratings}, nil
	})
	e.report(ctx, op, err)
	return ev, err
}
