package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pingbot/internal/eventbus"
	kit "pingbot/internal/transport"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

// listPageSize is the directory page size used to enumerate admins.
const listPageSize = 100

type Service struct {
	mu sync.Mutex

	cfg     Config
	limiter *rate.Limiter

	dir    AdminLister
	sender kit.Sender
	bus    eventbus.Publisher
	log    logx.Logger
}

func New(cfg Config, dir AdminLister, sender kit.Sender, bus eventbus.Publisher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{dir: dir, sender: sender, bus: bus, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps the runtime configuration; batches in flight keep the old one.
func (s *Service) Apply(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = lim
	s.mu.Unlock()
}

// NotifyAdmins sends text as plain text to every admin.
func (s *Service) NotifyAdmins(ctx context.Context, text string) (Result, error) {
	return s.Notify(ctx, "notify", text, nil)
}

// Notify sends text to every admin. The error is non-nil only when the admin
// list could not be read; per-recipient failures are reported in Result.
func (s *Service) Notify(ctx context.Context, reason, text string, opt *kit.SendOptions) (Result, error) {
	start := time.Now()
	res := Result{BatchID: uuid.NewString()}
	log := s.log.With(logx.String("batch", res.BatchID), logx.String("reason", reason))

	admins, err := s.listAdmins(ctx)
	if err != nil {
		log.Error("fan-out aborted: cannot list admins", logx.Err(err))
		return res, err
	}
	if len(admins) == 0 {
		log.Warn("fan-out has no admin recipients")
		s.publish(reason, res)
		return res, nil
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	errs := make([]error, len(admins))
	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i, a := range admins {
		g.Go(func() error {
			errs[i] = s.sendOne(ctx, log, lim, a.ChatID, text, opt)
			// Never abort siblings.
			return nil
		})
	}
	_ = g.Wait()

	res.Attempted = len(admins)
	for i, e := range errs {
		if e == nil {
			res.Delivered++
			continue
		}
		res.Failed = append(res.Failed, Failure{ChatID: admins[i].ChatID, Err: e, Reason: e.Error()})
	}
	res.Took = time.Since(start)

	fields := []logx.Field{
		logx.Int("attempted", res.Attempted),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", len(res.Failed)),
		logx.Duration("dur", res.Took),
	}
	if len(res.Failed) > 0 {
		log.Warn("fan-out finished with failures", fields...)
	} else {
		log.Info("fan-out finished", fields...)
	}
	s.publish(reason, res)
	return res, nil
}

func (s *Service) listAdmins(ctx context.Context) ([]users.Identity, error) {
	var out []users.Identity
	for offset := 0; ; offset += listPageSize {
		items, total, err := s.dir.ListByRole(ctx, users.RoleAdmin, offset, listPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) == 0 || offset+listPageSize >= total {
			return out, nil
		}
	}
}

// sendOne makes a single attempt; a failure is final for this batch.
func (s *Service) sendOne(ctx context.Context, log logx.Logger, lim *rate.Limiter, chatID, text string, opt *kit.SendOptions) error {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		log.Warn("fan-out skipped non-numeric chat id", logx.String("chat_id", chatID))
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	to := kit.ChatTarget{ChatID: id}

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	if _, err := s.sender.SendText(ctx, to, text, opt); err != nil {
		log.Warn("fan-out delivery failed", logx.String("chat_id", chatID), logx.Err(err))
		return err
	}
	return nil
}

func (s *Service) publish(reason string, res Result) {
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeFanoutDone,
		Data: eventbus.FanoutDone{
			BatchID:   res.BatchID,
			Reason:    reason,
			Attempted: res.Attempted,
			Delivered: res.Delivered,
			Failed:    len(res.Failed),
			Took:      res.Took,
		},
	})
}
