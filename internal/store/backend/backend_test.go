package backend

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techcomm/internal/apperr"
	"techcomm/internal/config"
	"techcomm/internal/store/snapshot"
	"techcomm/internal/store/sqlite"
	"techcomm/internal/store/storetest"
)

func staticConfig(t *testing.T) config.Data {
	cfg := config.Default().Data
	cfg.Static.Path = t.TempDir()
	cfg.Static.Scratch = ""
	return cfg
}

func TestOpenSelectsBySource(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, staticConfig(t))
	require.NoError(t, err)
	assert.Equal(t, snapshot.Backend, a.Backend())

	remote := staticConfig(t)
	remote.Source = config.SourceRemote
	remote.Remote.Driver = config.DriverSQLite
	remote.Remote.DSN = filepath.Join(t.TempDir(), "r.db")
	b, err := Open(ctx, remote)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, sqlite.Backend, b.Backend())

	unknown := staticConfig(t)
	unknown.Source = "firebase"
	_, err = Open(ctx, unknown)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
}

func TestRemoteWithoutConnectionIsNotInitialized(t *testing.T) {
	ctx := context.Background()
	cfg := staticConfig(t)
	cfg.Source = config.SourceRemote
	cfg.Remote.DSN = ""
	_, err := Open(ctx, cfg)
	assert.ErrorIs(t, err, apperr.ErrNotInitialized)

	cfg.Remote.Driver = config.DriverMongo
	cfg.Remote.URI = ""
	_, err = Open(ctx, cfg)
	assert.ErrorIs(t, err, apperr.ErrNotInitialized)
}

func TestProviderSharesOneAdapter(t *testing.T) {
	p := NewProvider(staticConfig(t))
	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := p.Adapter(ctx)
			require.NoError(t, err)
			results[i] = a
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	require.NoError(t, p.Close())
}

func TestSnapshotAndSQLiteParity(t *testing.T) {
	ctx := context.Background()
	left, err := Open(ctx, staticConfig(t))
	require.NoError(t, err)

	cfg := staticConfig(t)
	cfg.Source = config.SourceRemote
	cfg.Remote.DSN = filepath.Join(t.TempDir(), "parity.db")
	right, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer right.Close()

	storetest.Parity(t, left, right)
}
