package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("fails", func(ctx context.Context) error { return boom })
	s.Go0("loop", func(ctx context.Context) { <-ctx.Done() })

	err := s.Wait(waitCtx(t))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fails")
	assert.Error(t, s.Context().Err())
}

func TestCanceledIsNotAFailure(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, s.Stop(waitCtx(t)))
	assert.NoError(t, s.Err())
}

func TestPanicIsRecorded(t *testing.T) {
	s := New(context.Background())
	s.Go0("panics", func(ctx context.Context) { panic("oops") })
	err := s.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: oops")
	assert.NoError(t, s.Context().Err(), "cancel on error is off")
	s.Cancel()
}

func TestGoRestartRetriesUntilCleanExit(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithPublishFirstError(true))

	err := s.Wait(waitCtx(t))
	assert.Equal(t, int32(3), runs.Load())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not yet")
}

func TestGoRestartKeepsRunningOnCleanExit(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart0("poll", func(ctx context.Context) { runs.Add(1) },
		WithRestartBackoff(time.Millisecond, time.Millisecond), WithStopOnCleanExit(false))

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	assert.NoError(t, s.Stop(waitCtx(t)))
	assert.NoError(t, s.Err())
}

func TestWaitHonorsDeadline(t *testing.T) {
	s := New(context.Background())
	release := make(chan struct{})
	s.Go0("stuck", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
	close(release)
	assert.NoError(t, s.Wait(waitCtx(t)))
}
