package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techcomm/internal/apperr"
	"techcomm/internal/store"
	"techcomm/internal/store/storetest"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(context.Background(), filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAdapterContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Adapter { return newTestAdapter(t) })
}

func TestOpenWithoutDSNIsNotInitialized(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.ErrorIs(t, err, apperr.ErrNotInitialized)
}

func TestWhereClauseTypesEveryValue(t *testing.T) {
	where, args, err := whereClause([]store.Filter{
		store.Equals("details.format", "Team"),
		store.OneOf[any]("votingOpen", true, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(where, " AND ("))
	assert.Contains(t, where, "'text'")
	assert.Contains(t, where, "('integer','real')")
	assert.Equal(t, []any{"$.details.format", "$.details.format", "Team", "$.votingOpen", "true", "$.votingOpen", "$.votingOpen", float64(1)}, args)
}

func TestUpdateIsSingleStatement(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	events, students := storetest.Fixtures()
	require.NoError(t, a.Seed(ctx, events, students))
	err := a.Events().Update(ctx, "e1", store.Patch{"status": "Closed", "votingOpen": false, "participants": []string{}})
	require.NoError(t, err)
	got, err := a.Events().GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Closed", string(got.Status))
	assert.Empty(t, got.Participants)
	assert.Equal(t, "Hack Day", got.Details.EventName)
}
