package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techcomm/internal/config"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store/snapshot"
)

func TestOpenDefaultsToStaticWorkspace(t *testing.T) {
	ws := t.TempDir()
	a, err := Open(context.Background(), ws, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, snapshot.Backend, a.Store.Backend())

	_, err = a.Profiles.EnsureProfile(context.Background(), auth.Actor{UID: "u1", DisplayName: "Asha"}, "")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(ws, ".techcomm", "scratch", "students.json"))
	assert.NoError(t, err, "writes land in the workspace scratch dir")
}

func TestResolveData(t *testing.T) {
	d := config.Data{}
	d.Static.Path = "data"
	d.Static.Scratch = "/abs/scratch"
	d.Remote.DSN = "db/techcomm.db"

	got := ResolveData("/ws", d)
	assert.Equal(t, filepath.Join("/ws", "data"), got.Static.Path)
	assert.Equal(t, "/abs/scratch", got.Static.Scratch)
	assert.Equal(t, filepath.Join("/ws", "db/techcomm.db"), got.Remote.DSN)

	d.Remote.DSN = "file:mem?mode=memory"
	assert.Equal(t, "file:mem?mode=memory", ResolveData("/ws", d).Remote.DSN)
}

func TestStartBackgroundOnlyWhenAutoAward(t *testing.T) {
	cfg := config.Default()
	a, err := New(context.Background(), t.TempDir(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.StartBackground(context.Background()))
	assert.Nil(t, a.sweeper)

	cfg.XP.AutoAward = true
	require.NoError(t, a.StartBackground(context.Background()))
	assert.NotNil(t, a.sweeper)
	assert.NoError(t, a.Close())
}
