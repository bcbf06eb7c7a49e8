package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
)

func TestMatchFilters(t *testing.T) {
	doc := map[string]any{
		"status":     "Approved",
		"votingOpen": false,
		"details":    map[string]any{"format": "Team", "isCompetition": true},
		"teams":      []any{map[string]any{"id": "t1"}},
		"batchYear":  float64(2025),
	}
	cases := []struct {
		name    string
		filters []Filter
		want    bool
	}{
		{"empty", nil, true},
		{"equals", []Filter{Equals("status", domain.StatusApproved)}, true},
		{"equalsMiss", []Filter{Equals("status", "Pending")}, false},
		{"oneOf", []Filter{OneOf("status", "Pending", "Approved")}, true},
		{"nested", []Filter{Equals("details.format", "Team")}, true},
		{"number", []Filter{Equals("batchYear", 2025)}, true},
		{"boolVsNumber", []Filter{Equals("votingOpen", 0)}, false},
		{"missing", []Filter{Equals("nope", "x")}, false},
		{"throughArray", []Filter{Equals("teams.id", "t1")}, false},
		{"objectField", []Filter{Equals("details", "Team")}, false},
		{"and", []Filter{Equals("status", "Approved"), Equals("details.isCompetition", false)}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(doc, tc.filters), tc.name)
	}
}

func TestValidateFilters(t *testing.T) {
	assert.NoError(t, ValidateFilters("q", []Filter{Equals("a.b_c", 1), OneOf("x", true, false)}))
	assert.True(t, apperr.Is(ValidateFilters("q", []Filter{Equals("a b", 1)}), apperr.KindValidation))
	assert.True(t, apperr.Is(ValidateFilters("q", []Filter{Equals("a", map[string]any{})}), apperr.KindValidation))
	assert.True(t, apperr.Is(ValidateFilters("q", []Filter{{Field: "a", Op: "<", Values: []any{1}}}), apperr.KindValidation))
	assert.True(t, Unsatisfiable([]Filter{OneOf[string]("status")}))
	assert.True(t, Unsatisfiable([]Filter{Equals("status", nil)}))
	assert.False(t, Unsatisfiable([]Filter{Equals("status", "")}))
}

func TestPatchValidationAndApply(t *testing.T) {
	assert.True(t, apperr.Is(ValidatePatch("u", Patch{}, "id"), apperr.KindValidation))
	assert.True(t, apperr.Is(ValidatePatch("u", Patch{"id": "x"}, "id"), apperr.KindValidation))
	assert.True(t, apperr.Is(ValidatePatch("u", Patch{"details.eventName": "x"}, "id"), apperr.KindValidation))
	require.NoError(t, ValidatePatch("u", Patch{"status": "Closed"}, "id"))

	doc := map[string]any{"id": "e1", "details": map[string]any{"eventName": "A", "format": "Team"}}
	out, err := ApplyPatch(doc, Patch{"details": domain.EventDetails{EventName: "B"}})
	require.NoError(t, err)
	details := out["details"].(map[string]any)
	assert.Equal(t, "B", details["eventName"])
	assert.Equal(t, "", details["format"])
	assert.Equal(t, "A", doc["details"].(map[string]any)["eventName"], "source document untouched")
	assert.Equal(t, []string{"details", "status"}, Patch{"status": 1, "details": 2}.Fields())
}

type slowAdapter struct {
	delay time.Duration
	err   error
}

func (s slowAdapter) Events() EventStore     { return slowEvents(s) }
func (s slowAdapter) Students() StudentStore { return nil }
func (s slowAdapter) Backend() string        { return "slow" }
func (s slowAdapter) Close() error           { return nil }

type slowEvents slowAdapter

func (s slowEvents) wait(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s slowEvents) GetAll(ctx context.Context) ([]domain.Event, error) {
	return nil, s.wait(ctx)
}
func (s slowEvents) GetByID(ctx context.Context, id string) (domain.Event, error) {
	return domain.Event{}, s.wait(ctx)
}
func (s slowEvents) Create(ctx context.Context, e domain.Event) (domain.Event, error) {
	return e, s.wait(ctx)
}
func (s slowEvents) Update(ctx context.Context, id string, p Patch) error { return s.wait(ctx) }
func (s slowEvents) Delete(ctx context.Context, id string) error          { return s.wait(ctx) }
func (s slowEvents) Query(ctx context.Context, f ...Filter) ([]domain.Event, error) {
	return nil, s.wait(ctx)
}

func TestGuardTimesOutAsStorageUnavailable(t *testing.T) {
	g := Guard(slowAdapter{delay: time.Second}, 20*time.Millisecond)
	_, err := g.Events().GetAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	assert.True(t, apperr.KindOf(err).Retryable())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardKeepsClassifiedErrors(t *testing.T) {
	g := Guard(slowAdapter{err: apperr.NotFound("events.getById", "missing")}, time.Second)
	_, err := g.Events().GetByID(context.Background(), "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	g = Guard(slowAdapter{err: errors.New("disk I/O error")}, time.Second)
	err = g.Events().Delete(context.Background(), "x")
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
}

func TestGuardSeedRequiresSeeder(t *testing.T) {
	g := Guard(slowAdapter{}, time.Second)
	s, ok := g.(Seeder)
	require.True(t, ok)
	err := s.Seed(context.Background(), nil, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
