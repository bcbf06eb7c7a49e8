package profile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techcomm/internal/apperr"
	"techcomm/internal/config"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store/snapshot"
	"techcomm/internal/store/storetest"
)

type countingFetcher struct {
	calls   atomic.Int32
	batches [][]string
	mu      sync.Mutex
	names   map[string]string
	err     error
	delay   time.Duration
}

func (f *countingFetcher) FetchNames(ctx context.Context, ids []string) (map[string]string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, id := range ids {
		if n, ok := f.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func testCache(f Fetcher) *NameCache {
	return NewNameCache(f, config.Profile{TTL: time.Hour, Size: 16, FetchTimeout: time.Second})
}

func TestFetchNamesBatchCachesAndDedupes(t *testing.T) {
	f := &countingFetcher{names: map[string]string{"u1": "Asha", "u2": "Bruno"}}
	c := testCache(f)
	ctx := context.Background()

	got, err := c.FetchNamesBatch(ctx, []string{"u2", "", "u1", "u2", "abcdefgh"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Asha", "u2": "Bruno", "abcdefgh": "User (abcde)"}, got)
	require.Len(t, f.batches, 1)
	assert.Equal(t, []string{"abcdefgh", "u1", "u2"}, f.batches[0])

	got, err = c.FetchNamesBatch(ctx, []string{"u1", "u3"})
	require.NoError(t, err)
	assert.Equal(t, "Asha", got["u1"])
	assert.Equal(t, "User (u3)", got["u3"])
	require.Len(t, f.batches, 2)
	assert.Equal(t, []string{"u3"}, f.batches[1], "only uncached ids are fetched")

	_, err = c.FetchNamesBatch(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestFetchNamesBatchReturnsPartialOnError(t *testing.T) {
	f := &countingFetcher{names: map[string]string{"u1": "Asha"}}
	c := testCache(f)
	ctx := context.Background()
	_, err := c.FetchNamesBatch(ctx, []string{"u1"})
	require.NoError(t, err)

	f.err = apperr.New(apperr.KindStorageUnavailable, "names", "down")
	got, err := c.FetchNamesBatch(ctx, []string{"u1", "u9"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrStorageUnavailable))
	assert.Equal(t, map[string]string{"u1": "Asha"}, got)
}

func TestConcurrentBatchesShareOneFetch(t *testing.T) {
	f := &countingFetcher{names: map[string]string{"u1": "Asha"}, delay: 50 * time.Millisecond}
	c := testCache(f)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.FetchNamesBatch(context.Background(), []string{"u1"})
			assert.NoError(t, err)
			assert.Equal(t, "Asha", got["u1"])
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, f.calls.Load(), int32(5))
	assert.GreaterOrEqual(t, f.calls.Load(), int32(1))
}

func TestExpiredEntriesAreRefetched(t *testing.T) {
	f := &countingFetcher{names: map[string]string{"u1": "Asha"}}
	c := NewNameCache(f, config.Profile{TTL: 20 * time.Millisecond, Size: 4})
	ctx := context.Background()
	_, err := c.FetchNamesBatch(ctx, []string{"u1"})
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.FetchNamesBatch(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())
}

func newService(t *testing.T) (Service, *NameCache) {
	t.Helper()
	st := snapshot.New(t.TempDir(), "")
	_, students := storetest.Fixtures()
	require.NoError(t, st.Seed(context.Background(), nil, students))
	names := testCache(StoreFetcher{Students: st.Students()})
	svc := Service{
		Students: st.Students(),
		Names:    names,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	}
	return svc, names
}

func TestUpdateProfile(t *testing.T) {
	svc, names := newService(t)
	ctx := context.Background()
	owner := auth.Actor{UID: "u1"}

	name, err := names.Name(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Asha", name)

	newName := "Asha K"
	_, err = svc.UpdateProfile(ctx, auth.Actor{UID: "u2"}, "u1", ProfileUpdate{Name: &newName})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	bad := "ftp://nope"
	_, err = svc.UpdateProfile(ctx, owner, "u1", ProfileUpdate{PhotoURL: &bad})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	st, err := svc.UpdateProfile(ctx, owner, "u1", ProfileUpdate{
		Name:   &newName,
		Skills: []string{"Go", " go ", "SQL", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "SQL"}, st.Skills)
	assert.Equal(t, "2026-03-01T09:00:00Z", st.ProfileUpdatedAt)
	assert.Equal(t, 2024, st.BatchYear)

	stored, err := svc.Students.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha K", stored.Name)

	name, err = names.Name(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha K", name, "update invalidates the cached name")
}

func TestEnsureProfile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	st, err := svc.EnsureProfile(ctx, auth.Actor{UID: "new-user", DisplayName: "Nia"}, "nia@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Nia", st.Name)
	assert.Equal(t, st.CreatedAt, st.LastLogin)

	st, err = svc.EnsureProfile(ctx, auth.Actor{UID: "u2"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Bruno", st.Name)
	assert.Equal(t, "2026-03-01T09:00:00Z", st.LastLogin)

	_, err = svc.EnsureProfile(ctx, auth.Actor{}, "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = svc.EnsureProfile(ctx, auth.Actor{UID: auth.SystemUID, DisplayName: "System"}, "")
	assert.True(t, errors.Is(err, apperr.ErrValidation), "system uid is reserved")
}
