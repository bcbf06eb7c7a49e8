// Package app assembles a running TechComm instance from a workspace: the
// configured data adapter, the lifecycle engine, the profile services and
// the notification sinks.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"techcomm/internal/config"
	"techcomm/internal/engine"
	"techcomm/internal/notify"
	"techcomm/internal/profile"
	"techcomm/internal/scheduler"
	"techcomm/internal/store"
	"techcomm/internal/store/backend"
)

type App struct {
	Workspace string
	Config    *config.Config
	Store     store.Adapter
	Engine    engine.Engine
	Names     *profile.NameCache
	Profiles  profile.Service
	Log       *slog.Logger

	provider *backend.Provider
	webhooks *notify.WebhookSink
	sweeper  *scheduler.XPSweeper
}

// Open loads the workspace config (defaults when the file is missing) and
// wires every component. Relative data paths resolve against workspace.
func Open(ctx context.Context, workspace string, log *slog.Logger) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	return New(ctx, workspace, cfg, log)
}

// New wires an App around an already loaded config.
func New(ctx context.Context, workspace string, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	data := ResolveData(workspace, cfg.Data)
	provider := backend.NewProvider(data)
	st, err := provider.Adapter(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s data source: %w", data.Source, err)
	}

	sinks := notify.Multi{notify.LogSink{Log: log}}
	var webhooks *notify.WebhookSink
	if len(cfg.Notify.Webhooks) > 0 {
		webhooks = notify.NewWebhookSink(cfg.Notify.Webhooks, log)
		sinks = append(sinks, webhooks)
	}

	names := profile.NewNameCache(profile.StoreFetcher{Students: st.Students()}, cfg.Profile)
	return &App{
		Workspace: workspace,
		Config:    cfg,
		Store:     st,
		Engine:    engine.New(st, cfg, sinks, log),
		Names:     names,
		Profiles:  profile.Service{Students: st.Students(), Names: names},
		Log:       log,
		provider:  provider,
		webhooks:  webhooks,
	}, nil
}

// ResolveData makes static paths and a file-path sqlite DSN relative to
// workspace.
func ResolveData(workspace string, d config.Data) config.Data {
	if workspace == "" {
		return d
	}
	d.Static.Path = within(workspace, d.Static.Path)
	d.Static.Scratch = within(workspace, d.Static.Scratch)
	if d.Remote.Driver != config.DriverMongo && !strings.HasPrefix(d.Remote.DSN, "file:") {
		d.Remote.DSN = within(workspace, d.Remote.DSN)
	}
	return d
}

func within(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// StartBackground starts the XP sweeper when xp.auto_award is set.
func (a *App) StartBackground(ctx context.Context) error {
	if !a.Config.XP.AutoAward || a.sweeper != nil {
		return nil
	}
	sw, err := scheduler.StartXPSweeper(ctx, a.Engine, a.Config.XP.SweepInterval, a.Log)
	if err != nil {
		return err
	}
	a.sweeper = sw
	return nil
}

// Close stops background work, flushes webhook deliveries and releases the
// data adapter.
func (a *App) Close() error {
	var err error
	if a.sweeper != nil {
		err = multierr.Append(err, a.sweeper.Stop())
	}
	if a.webhooks != nil {
		a.webhooks.Close()
	}
	return multierr.Append(err, a.provider.Close())
}
