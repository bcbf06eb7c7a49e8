// Package backend selects the data adapter named by configuration.
package backend

import (
	"context"
	"sync"

	"techcomm/internal/apperr"
	"techcomm/internal/config"
	"techcomm/internal/store"
	"techcomm/internal/store/mongo"
	"techcomm/internal/store/snapshot"
	"techcomm/internal/store/sqlite"
)

// Open builds the adapter for cfg.Source, wrapped in store.Guard. It keeps
// no state; use Provider to share one adapter per process.
func Open(ctx context.Context, cfg config.Data) (store.Adapter, error) {
	var (
		a   store.Adapter
		err error
	)
	switch cfg.Source {
	case config.SourceStatic:
		a = snapshot.New(cfg.Static.Path, cfg.Static.Scratch)
	case config.SourceRemote:
		a, err = openRemote(ctx, cfg)
	default:
		return nil, apperr.Validation("backend.open", "unknown data source %q", cfg.Source)
	}
	if err != nil {
		return nil, err
	}
	return store.Guard(a, cfg.Timeout), nil
}

func openRemote(ctx context.Context, cfg config.Data) (store.Adapter, error) {
	switch cfg.Remote.Driver {
	case "", config.DriverSQLite:
		return sqlite.Open(ctx, cfg.Remote.DSN)
	case config.DriverMongo:
		return mongo.Open(ctx, cfg.Remote.URI, cfg.Remote.Database)
	}
	return nil, apperr.Validation("backend.open", "unknown remote driver %q", cfg.Remote.Driver)
}

// Provider resolves the adapter once and hands the same instance to every
// caller.
type Provider struct {
	Config config.Data

	once    sync.Once
	adapter store.Adapter
	err     error
}

func NewProvider(cfg config.Data) *Provider {
	return &Provider{Config: cfg}
}

// Adapter returns the shared adapter, opening it on first use. A failed
// open is remembered too.
func (p *Provider) Adapter(ctx context.Context) (store.Adapter, error) {
	p.once.Do(func() {
		p.adapter, p.err = Open(ctx, p.Config)
	})
	return p.adapter, p.err
}

// Close releases the adapter if it was opened.
func (p *Provider) Close() error {
	if p.adapter == nil {
		return nil
	}
	return p.adapter.Close()
}
