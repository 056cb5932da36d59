package digest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingbot/internal/notifier"
	kit "pingbot/internal/transport"
	logx "pingbot/pkg/logx"
)

type fixedStats struct {
	text string
	err  error
}

func (f fixedStats) StatsText(context.Context) (string, error) { return f.text, f.err }

type countingNotifier struct {
	calls  atomic.Int32
	reason atomic.Value
	text   atomic.Value
}

func (n *countingNotifier) Notify(ctx context.Context, reason, text string, opt *kit.SendOptions) (notifier.Result, error) {
	n.calls.Add(1)
	n.reason.Store(reason)
	n.text.Store(text)
	return notifier.Result{BatchID: "b", Attempted: 2, Delivered: 2}, nil
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Config{}))
	assert.NoError(t, Validate(Config{Enabled: true, Schedule: "0 9 * * *"}))
	assert.NoError(t, Validate(Config{Enabled: true, Schedule: "@daily", Timezone: "Asia/Jakarta"}))
	assert.NoError(t, Validate(Config{Enabled: true, Schedule: "*/30 * * * * *"}))

	assert.Error(t, Validate(Config{Enabled: true}))
	assert.Error(t, Validate(Config{Enabled: true, Schedule: "not a cron"}))
	assert.Error(t, Validate(Config{Enabled: true, Schedule: "@daily", Timezone: "Mars/Base"}))
}

func TestRunOnce(t *testing.T) {
	n := &countingNotifier{}
	s := New(Config{}, fixedStats{text: "stats"}, n, logx.Nop())

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, "digest", n.reason.Load())
	assert.Equal(t, "stats", n.text.Load())
}

func TestRunOnce_StatsFailure(t *testing.T) {
	n := &countingNotifier{}
	s := New(Config{}, fixedStats{err: errors.New("down")}, n, logx.Nop())

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n.calls.Load())
}

func TestStartApplyStop(t *testing.T) {
	n := &countingNotifier{}
	s := New(Config{}, fixedStats{text: "stats"}, n, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	assert.False(t, s.Scheduled(), "disabled digest schedules nothing")

	s.Apply(Config{Enabled: true, Schedule: "* * * * * *"})
	assert.True(t, s.Scheduled())
	require.Eventually(t, func() bool { return n.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	s.Apply(Config{Enabled: false})
	assert.False(t, s.Scheduled())

	s.Apply(Config{Enabled: true, Schedule: "@daily"})
	assert.True(t, s.Scheduled())
	s.Stop(context.Background())
	assert.False(t, s.Scheduled())
}
