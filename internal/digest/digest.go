// Package digest periodically sends the directory statistics to every admin
// through the notification fan-out.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pingbot/internal/notifier"
	kit "pingbot/internal/transport"
	logx "pingbot/pkg/logx"
)

// parser accepts 5-field and 6-field (with seconds) specs plus descriptors
// such as "@daily" and "@every 6h".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Enabled  bool
	Schedule string
	// Timezone is an IANA name; empty means UTC.
	Timezone string
}

// StatsSource renders the digest body (HTML).
type StatsSource interface {
	StatsText(ctx context.Context) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, reason, text string, opt *kit.SendOptions) (notifier.Result, error)
}

// Validate checks the schedule and timezone of an enabled digest.
func Validate(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		return fmt.Errorf("digest.schedule required when digest is enabled")
	}
	if _, err := parser.Parse(strings.TrimSpace(cfg.Schedule)); err != nil {
		return fmt.Errorf("digest.schedule: %w", err)
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("digest.timezone: %w", err)
	}
	return nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
	ctx context.Context

	src    StatsSource
	notify Notifier
	log    logx.Logger
}

func New(cfg Config, src StatsSource, n Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, notify: n, log: log}
}

// Apply swaps the configuration and reschedules a running service when the
// schedule, timezone or enabled flag changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.ctx == nil || old == cfg {
		return
	}
	s.stopLocked()
	s.startLocked()
}

// Start begins triggering. Runs use ctx for their deadlines; Stop or ctx
// cancellation ends triggering.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
}

func (s *Service) startLocked() {
	cfg := s.cfg
	if !cfg.Enabled {
		s.log.Debug("digest disabled")
		return
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		s.log.Warn("digest timezone invalid; using UTC", logx.String("tz", cfg.Timezone), logx.Err(err))
		loc = time.UTC
	}
	ctx := s.ctx
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(strings.TrimSpace(cfg.Schedule), func() { s.run(ctx) }); err != nil {
		s.log.Warn("digest schedule invalid", logx.String("schedule", cfg.Schedule), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled", logx.String("schedule", cfg.Schedule), logx.String("tz", loc.String()))
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.ctx = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("digest stopped")
}

func (s *Service) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Warn("digest run failed", logx.Err(err))
	}
}

// RunOnce sends one digest immediately.
func (s *Service) RunOnce(ctx context.Context) (notifier.Result, error) {
	text, err := s.src.StatsText(ctx)
	if err != nil {
		return notifier.Result{}, fmt.Errorf("digest stats: %w", err)
	}
	res, err := s.notify.Notify(ctx, "digest", text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		return res, fmt.Errorf("digest fan-out: %w", err)
	}
	s.log.Info("digest sent",
		logx.String("batch", res.BatchID),
		logx.Int("attempted", res.Attempted),
		logx.Int("delivered", res.Delivered),
	)
	return res, nil
}

// Scheduled reports whether a cron trigger is active.
func (s *Service) Scheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}
