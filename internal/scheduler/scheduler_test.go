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

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	s := New()
	err := s.Register("broken", "every now and then", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())

	assert.Error(t, s.Register("", "@every 1m", func(context.Context) error { return nil }))
	assert.Error(t, s.Register("nil", "@every 1m", nil))
}

func TestRegisterReplacesSameName(t *testing.T) {
	s := New()
	var first, second atomic.Int32
	require.NoError(t, s.Register("sync", "@every 1m", func(context.Context) error { first.Add(1); return nil }))
	require.NoError(t, s.Register("sync", "@every 5m", func(context.Context) error { second.Add(1); return nil }))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 5m", jobs[0].Spec)
	assert.Len(t, s.cron.Entries(), 1)

	require.NoError(t, s.RunNow(context.Background(), "sync"))
	assert.EqualValues(t, 0, first.Load())
	assert.EqualValues(t, 1, second.Load())
}

func TestStopAndStart(t *testing.T) {
	s := New()
	require.NoError(t, s.Register("b-job", "@every 1m", func(context.Context) error { return nil }))
	require.NoError(t, s.Register("a-job", "@every 1m", func(context.Context) error { return nil }))

	require.NoError(t, s.Stop("a-job"))
	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a-job", jobs[0].Name)
	assert.False(t, jobs[0].Active)
	assert.True(t, jobs[1].Active)
	assert.Len(t, s.cron.Entries(), 1)

	require.NoError(t, s.Start("a-job"))
	assert.True(t, s.Jobs()[0].Active)
	assert.Len(t, s.cron.Entries(), 2)

	assert.Error(t, s.Stop("missing"))
	assert.Error(t, s.Start("missing"))
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestRunNowRecoversPanics(t *testing.T) {
	s := New()
	require.NoError(t, s.Register("explode", "@every 1m", func(context.Context) error { panic("boom") }))

	err := s.RunNow(context.Background(), "explode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	require.NoError(t, s.Register("fails", "@every 1m", func(context.Context) error { return errors.New("db down") }))
	assert.EqualError(t, s.RunNow(context.Background(), "fails"), "db down")
}

func TestJobTimeoutIsApplied(t *testing.T) {
	s := New(WithJobTimeout(20 * time.Millisecond))
	require.NoError(t, s.Register("slow", "@every 1m", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), context.DeadlineExceeded)
}

type stubLocker struct {
	ok       bool
	err      error
	released atomic.Int32
}

func (l *stubLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released.Add(1) }, true, nil
}

func TestLockerGatesExecution(t *testing.T) {
	var runs atomic.Int32
	fn := func(context.Context) error { runs.Add(1); return nil }

	held := &stubLocker{ok: false}
	s := New(WithLocker(held))
	require.NoError(t, s.Register("job", "@every 1m", fn))
	require.NoError(t, s.RunNow(context.Background(), "job"))
	assert.EqualValues(t, 0, runs.Load(), "another instance holds the lock")

	free := &stubLocker{ok: true}
	s = New(WithLocker(free))
	require.NoError(t, s.Register("job", "@every 1m", fn))
	require.NoError(t, s.RunNow(context.Background(), "job"))
	assert.EqualValues(t, 1, runs.Load())
	assert.EqualValues(t, 1, free.released.Load())

	broken := &stubLocker{err: errors.New("redis unreachable")}
	s = New(WithLocker(broken))
	require.NoError(t, s.Register("job", "@every 1m", fn))
	require.NoError(t, s.RunNow(context.Background(), "job"))
	assert.EqualValues(t, 2, runs.Load(), "runs without the lock when redis is down")
}

func TestShutdownWaitsForRunningJobs(t *testing.T) {
	s := New()
	require.NoError(t, s.Register("job", "@every 1h", func(context.Context) error { return nil }))
	s.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
