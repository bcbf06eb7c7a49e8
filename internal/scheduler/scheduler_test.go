package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	runs atomic.Int32
	err  error
}

func (f *fakeSweeper) SweepXP(context.Context) (int, error) {
	f.runs.Add(1)
	return 1, f.err
}

func TestSweeperRunsImmediately(t *testing.T) {
	sw := &fakeSweeper{}
	s, err := StartXPSweeper(context.Background(), sw, time.Hour, nil)
	require.NoError(t, err)
	defer s.Stop()

	require.Eventually(t, func() bool { return sw.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.RunNow())
	require.Eventually(t, func() bool { return sw.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSweeperSurvivesErrors(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("store down")}
	s, err := StartXPSweeper(context.Background(), sw, time.Hour, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sw.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, s.Stop())
}

func TestSweeperRejectsBadInterval(t *testing.T) {
	_, err := StartXPSweeper(context.Background(), &fakeSweeper{}, 0, nil)
	assert.Error(t, err)
}
