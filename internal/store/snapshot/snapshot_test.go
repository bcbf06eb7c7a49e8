package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techcomm/internal/domain"
	"techcomm/internal/store"
	"techcomm/internal/store/storetest"
)

func TestAdapterContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Adapter {
		return New(t.TempDir(), filepath.Join(t.TempDir(), "scratch"))
	})
}

func TestMemoryOnlyContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Adapter {
		return New(t.TempDir(), "")
	})
}

func writeSeed(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestLazyLoadServesFromCache(t *testing.T) {
	seedDir := t.TempDir()
	events, students := storetest.Fixtures()
	writeSeed(t, seedDir, "events.json", events)
	writeSeed(t, seedDir, "students.json", students)

	a := New(seedDir, "")
	ctx := context.Background()
	all, err := a.Events().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Later changes to the seed are not observed once loaded.
	writeSeed(t, seedDir, "events.json", events[:1])
	all, err = a.Events().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	st, err := a.Students().GetByID(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bruno", st.Name)
}

func TestScratchCopyWinsOverSeed(t *testing.T) {
	seedDir := t.TempDir()
	scratch := filepath.Join(t.TempDir(), "scratch")
	events, _ := storetest.Fixtures()
	writeSeed(t, seedDir, "events.json", events)

	first := New(seedDir, scratch)
	ctx := context.Background()
	require.NoError(t, first.Events().Update(ctx, "e2", store.Patch{"status": domain.StatusApproved}))
	require.NoError(t, first.Events().Delete(ctx, "e3"))

	_, err := os.Stat(filepath.Join(scratch, "events.json"))
	require.NoError(t, err)

	second := New(seedDir, scratch)
	got, err := second.Events().GetByID(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	all, err := second.Events().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotRegexp(t, `-\d+\.json$`, e.Name(), "temporary files must not linger")
	}
}

func TestGeneratedIDShape(t *testing.T) {
	a := New(t.TempDir(), "")
	a.Now = func() time.Time { return time.UnixMilli(1700000000000) }
	created, err := a.Events().Create(context.Background(), domain.Event{
		Status:      domain.StatusPending,
		RequestedBy: "u1",
		Details:     domain.EventDetails{EventName: "Launch"},
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^1700000000000-[0-9a-z]{9}$`), created.ID)
}

func TestCancelledContext(t *testing.T) {
	a := New(t.TempDir(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Events().GetAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorruptSeedIsStorageError(t *testing.T) {
	seedDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "events.json"), []byte("{not json"), 0o644))
	a := New(seedDir, "")
	_, err := a.Events().GetAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}
