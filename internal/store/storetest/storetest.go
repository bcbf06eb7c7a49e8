// Package storetest holds the behavior every store.Adapter must share.
// Backend packages run Run against their own adapter and Parity against
// pairs of adapters seeded with the same Fixtures.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/store"
)

// Factory returns a fresh, empty adapter.
type Factory func(t *testing.T) store.Adapter

func strPtr(s string) *string { return &s }

// Fixtures returns a small data set covering every filter shape.
func Fixtures() ([]domain.Event, []domain.Student) {
	events := []domain.Event{
		{
			ID:          "e1",
			Status:      domain.StatusApproved,
			RequestedBy: "u1",
			Details: domain.EventDetails{
				EventName:  "Hack Day",
				Format:     domain.FormatTeam,
				Organizers: []string{"u1"},
				Date:       domain.EventDate{Start: strPtr("2026-03-01"), End: strPtr("2026-03-02")},
			},
			Participants:       []string{"u2", "u3"},
			Teams:              []domain.Team{{ID: "team-1", TeamName: "Team 1", Members: []string{"u2", "u3"}, TeamLead: "u2"}},
			TeamMemberFlatList: []string{"u2", "u3"},
			Criteria:           []domain.Criterion{{ConstraintIndex: 0, Title: "Best design", Points: 50, Role: "xp_design"}},
		},
		{
			ID:          "e2",
			Status:      domain.StatusPending,
			RequestedBy: "u2",
			Details:     domain.EventDetails{EventName: "Study Jam", Format: domain.FormatIndividual, Organizers: []string{"u2"}},
		},
		{
			ID:           "e3",
			Status:       domain.StatusClosed,
			RequestedBy:  "u1",
			VotingOpen:   false,
			Details:      domain.EventDetails{EventName: "Code Golf", Format: domain.FormatIndividual, Organizers: []string{"u1"}, IsCompetition: true},
			Participants: []string{"u2"},
		},
	}
	students := []domain.Student{
		{UID: "u1", Name: "Asha", Batch: "CS", BatchYear: 2024},
		{UID: "u2", Name: "Bruno", Batch: "CS", BatchYear: 2025, HasLaptop: true},
		{UID: "u3", Name: "Chen", Batch: "EE", BatchYear: 2025},
	}
	return events, students
}

func seed(t *testing.T, a store.Adapter) {
	t.Helper()
	s, ok := a.(store.Seeder)
	require.True(t, ok, "adapter %s does not support seeding", a.Backend())
	events, students := Fixtures()
	require.NoError(t, s.Seed(context.Background(), events, students))
}

// Run exercises the adapter contract.
func Run(t *testing.T, newAdapter Factory) {
	t.Run("CreateAssignsID", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()
		created, err := a.Events().Create(ctx, domain.Event{
			Status:      domain.StatusPending,
			RequestedBy: "u1",
			Details:     domain.EventDetails{EventName: "Launch", Format: domain.FormatIndividual},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		got, err := a.Events().GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)

		other, err := a.Events().Create(ctx, domain.Event{
			Status:      domain.StatusPending,
			RequestedBy: "u1",
			Details:     domain.EventDetails{EventName: "Launch 2", Format: domain.FormatIndividual},
		})
		require.NoError(t, err)
		assert.NotEqual(t, created.ID, other.ID)
	})

	t.Run("CreateRequiresFields", func(t *testing.T) {
		a := newAdapter(t)
		_, err := a.Events().Create(context.Background(), domain.Event{Status: domain.StatusPending})
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		_, err = a.Students().Create(context.Background(), domain.Student{UID: "x"})
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	})

	t.Run("MissingIDsAreNotFound", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()
		_, err := a.Events().GetByID(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		err = a.Events().Update(ctx, "missing", store.Patch{"status": "Approved"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		err = a.Events().Delete(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = a.Students().GetByID(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("UpdateReplacesTopLevelFields", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)
		ctx := context.Background()
		details := domain.EventDetails{EventName: "Hack Night", Format: domain.FormatTeam}
		require.NoError(t, a.Events().Update(ctx, "e1", store.Patch{
			"details":      details,
			"participants": []string{"u2"},
			"votingOpen":   true,
		}))
		got, err := a.Events().GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "Hack Night", got.Details.EventName)
		assert.Empty(t, got.Details.Organizers, "nested fields are replaced, not merged")
		assert.Equal(t, []string{"u2"}, got.Participants)
		assert.True(t, got.VotingOpen)
		assert.Equal(t, domain.StatusApproved, got.Status)
		assert.Len(t, got.Teams, 1)

		err = a.Events().Update(ctx, "e1", store.Patch{"id": "other"})
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		err = a.Students().Update(ctx, "u1", store.Patch{"uid": "other"})
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	})

	t.Run("DeleteRemovesEvent", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)
		ctx := context.Background()
		require.NoError(t, a.Events().Delete(ctx, "e2"))
		_, err := a.Events().GetByID(ctx, "e2")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		all, err := a.Events().GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e3"}, eventIDs(all))
	})

	t.Run("QueryFilters", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)
		ctx := context.Background()
		cases := []struct {
			name    string
			filters []store.Filter
			want    []string
		}{
			{"none", nil, []string{"e1", "e2", "e3"}},
			{"equals", []store.Filter{store.Equals("status", domain.StatusPending)}, []string{"e2"}},
			{"oneOf", []store.Filter{store.OneOf("status", domain.StatusApproved, domain.StatusClosed)}, []string{"e1", "e3"}},
			{"nested", []store.Filter{store.Equals("details.format", "Team")}, []string{"e1"}},
			{"and", []store.Filter{store.Equals("requestedBy", "u1"), store.Equals("status", "Closed")}, []string{"e3"}},
			{"bool", []store.Filter{store.Equals("details.isCompetition", true)}, []string{"e3"}},
			{"boolFalse", []store.Filter{store.Equals("votingOpen", false)}, []string{"e1", "e2", "e3"}},
			{"boolIsNotNumber", []store.Filter{store.Equals("votingOpen", 0)}, nil},
			{"unknownKey", []store.Filter{store.Equals("colour", "red")}, nil},
			{"emptyOneOf", []store.Filter{store.OneOf[string]("status")}, nil},
			{"nilValue", []store.Filter{store.Equals("status", nil)}, nil},
			{"arrayField", []store.Filter{store.Equals("participants", "u2")}, nil},
		}
		for _, tc := range cases {
			got, err := a.Events().Query(ctx, tc.filters...)
			require.NoError(t, err, tc.name)
			assert.Equal(t, tc.want, nilIfEmpty(eventIDs(got)), tc.name)
		}

		students, err := a.Students().Query(ctx, store.OneOf("uid", "u3", "u1", "nobody"))
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u3"}, studentIDs(students))
		students, err = a.Students().Query(ctx, store.Equals("batchYear", 2025))
		require.NoError(t, err)
		assert.Equal(t, []string{"u2", "u3"}, studentIDs(students))

		_, err = a.Events().Query(ctx, store.Equals("status", []string{"Approved"}))
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		_, err = a.Events().Query(ctx, store.Equals("details..format", "Team"))
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	})

	t.Run("ResultsAreCopies", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)
		ctx := context.Background()
		got, err := a.Events().GetByID(ctx, "e1")
		require.NoError(t, err)
		got.Participants[0] = "mutated"
		got.Teams[0].Members = nil
		again, err := a.Events().GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, []string{"u2", "u3"}, again.Participants)
		assert.Equal(t, []string{"u2", "u3"}, again.Teams[0].Members)
	})

	t.Run("StudentsCreateAndUpdate", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()
		created, err := a.Students().Create(ctx, domain.Student{UID: "u9", Name: "Dana", Skills: []string{"go"}})
		require.NoError(t, err)
		assert.Equal(t, "u9", created.UID)
		_, err = a.Students().Create(ctx, domain.Student{UID: "u9", Name: "Dup"})
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		require.NoError(t, a.Students().Update(ctx, "u9", store.Patch{"bio": "hello"}))
		got, err := a.Students().GetByID(ctx, "u9")
		require.NoError(t, err)
		assert.Equal(t, "hello", got.Bio)
		assert.Equal(t, []string{"go"}, got.Skills)
		generated, err := a.Students().Create(ctx, domain.Student{Name: "Eve"})
		require.NoError(t, err)
		assert.NotEmpty(t, generated.UID)
	})
}

// Parity checks that two adapters holding the same Fixtures answer reads
// identically.
func Parity(t *testing.T, left, right store.Adapter) {
	seed(t, left)
	seed(t, right)
	ctx := context.Background()

	le, err := left.Events().GetAll(ctx)
	require.NoError(t, err)
	re, err := right.Events().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, le, re, "events.getAll")

	for _, id := range []string{"e1", "e2", "e3"} {
		l, err := left.Events().GetByID(ctx, id)
		require.NoError(t, err)
		r, err := right.Events().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, l, r, "events.getById %s", id)
	}
	_, lerr := left.Events().GetByID(ctx, "missing")
	_, rerr := right.Events().GetByID(ctx, "missing")
	assert.Equal(t, apperr.KindOf(lerr), apperr.KindOf(rerr))

	queries := [][]store.Filter{
		{store.OneOf("status", domain.StatusApproved, domain.StatusClosed)},
		{store.Equals("details.format", domain.FormatIndividual)},
		{store.Equals("requestedBy", "u1"), store.Equals("votingOpen", false)},
		{store.Equals("unknown", "x")},
	}
	for _, q := range queries {
		l, err := left.Events().Query(ctx, q...)
		require.NoError(t, err)
		r, err := right.Events().Query(ctx, q...)
		require.NoError(t, err)
		assert.Equal(t, l, r, "events.query %v", q)
	}

	ls, err := left.Students().GetAll(ctx)
	require.NoError(t, err)
	rs, err := right.Students().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ls, rs, "students.getAll")
	lq, err := left.Students().Query(ctx, store.Equals("batch", "CS"))
	require.NoError(t, err)
	rq, err := right.Students().Query(ctx, store.Equals("batch", "CS"))
	require.NoError(t, err)
	assert.Equal(t, lq, rq, "students.query")
}

func eventIDs(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func studentIDs(students []domain.Student) []string {
	out := make([]string, 0, len(students))
	for _, s := range students {
		out = append(out, s.UID)
	}
	return out
}

func nilIfEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return in
}
