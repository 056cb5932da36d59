package router

import (
	"context"
	"hash/fnv"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "pingbot/internal/runtime/supervisor"
	kit "pingbot/internal/transport"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
	"pingbot/pkg/tgui"
)

type Config struct {
	// Workers is the size of the handler pool. <=0 means NumCPU (min 2).
	Workers int
	// QueueSize bounds pending events per worker lane. <=0 means 256.
	QueueSize int
}

// CommandManager routes updates to handlers: slash commands, inline callbacks
// and Mini App data. Every event is gated on the role resolved at handling
// time and runs to completion on one worker of a bounded pool. Events from
// one chat always land on the same worker lane, so they run in arrival order;
// different chats proceed in parallel.
type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases
	ordered  []Command

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route
	webApp    HandlerFunc

	log      logx.Logger
	adapter  kit.Adapter
	resolver RoleResolver
	cfg      Config

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	lanes []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, resolver RoleResolver, cfg Config) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.NumCPU(), 2)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	lanes := make([]chan func(), cfg.Workers)
	for i := range lanes {
		lanes[i] = make(chan func(), cfg.QueueSize)
	}
	return &CommandManager{
		commands:  map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		resolver:  resolver,
		cfg:       cfg,
		lanes:     lanes,
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// lane picks the worker that owns chatID.
func (m *CommandManager) lane(chatID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return int(h.Sum32() % uint32(len(m.lanes)))
}

// tryEnqueue never blocks and tolerates a closed lane.
func (m *CommandManager) tryEnqueue(chatID string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.lanes[m.lane(chatID)] <- fn:
		return true
	default:
		return false
	}
}

// SetRegistry installs commands and callback routes, adds /help and
// publishes the command menu when the adapter supports it.
func (m *CommandManager) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "Show available commands",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, m.helpText(req.Role), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return err
		},
	})

	byName := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := normalizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		if _, dup := byName[name]; dup {
			m.log.Warn("duplicate command ignored", logx.String("cmd", name))
			continue
		}
		byName[name] = &cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			if a = normalizeCommand(a); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = &cc
				}
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		s := strings.TrimSpace(r.Scope)
		a := strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = r
	}

	m.mu.Lock()
	m.commands = byName
	m.ordered = ordered
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenuCommands(ordered)
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(mctx, menu); err != nil {
			m.log.Warn("menu commands update failed", logx.Err(err))
		}
	}
}

// SetWebAppHandler installs the handler for Mini App data. The raw payload
// is passed in Request.Payload.
func (m *CommandManager) SetWebAppHandler(h HandlerFunc) {
	m.cbMu.Lock()
	m.webApp = h
	m.cbMu.Unlock()
}

func normalizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "/")))
	if strings.ContainsAny(s, " \t\n") {
		return ""
	}
	return s
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := m.cfg.Workers
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("lane_cap", m.cfg.QueueSize))

	for i := range workers {
		name := "command.worker." + strconv.Itoa(i)
		jobs := m.lanes[i]
		sup.GoRestart(name, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					m.runJob(i, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		m.setSupervisor(sup, false)
		for _, l := range m.lanes {
			close(l)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.Route(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

// Route classifies one update and queues its handler. Updates that match no
// route are logged and dropped.
func (m *CommandManager) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	case kit.UpdateWebApp:
		m.routeWebApp(ctx, up)
	default:
		m.log.Debug("update ignored", logx.String("kind", string(up.Kind)))
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		m.log.Debug("non-command text ignored", logx.Int64("chat_id", msg.ChatID))
		return
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	m.mu.RLock()
	cmd, ok := m.commands[strings.ToLower(word)]
	m.mu.RUnlock()
	if !ok {
		m.log.Debug("unknown command ignored", logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID))
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID, msg.From, cmd.Name)
	req.Args = parts[1:]
	m.dispatch(ctx, req, Chain(cmd.Handle, m.middlewares(cmd.Timeout, cmd.Access)...))
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		m.log.Debug("malformed callback ignored", logx.String("data", cb.Data))
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	m.cbMu.RLock()
	route, ok := m.callbacks[scope][action]
	m.cbMu.RUnlock()
	if !ok {
		m.log.Debug("unknown callback ignored", logx.String("scope", scope), logx.String("action", action))
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, cb.From, "cb:"+scope+":"+action)
	req.Payload = payload
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	m.dispatch(ctx, req, Chain(h, m.middlewares(route.Timeout, route.Access)...))
}

func (m *CommandManager) routeWebApp(ctx context.Context, up kit.Update) {
	wa := up.WebApp
	if wa == nil {
		return
	}
	m.cbMu.RLock()
	h := m.webApp
	m.cbMu.RUnlock()
	if h == nil {
		m.log.Debug("web app data ignored: no handler")
		return
	}
	req := m.newRequest(up, kit.ChatTarget{ChatID: wa.ChatID}, wa.FromID, wa.From, "webapp")
	req.Payload = wa.Data
	m.dispatch(ctx, req, Chain(h, m.middlewares(0, AccessEveryone)...))
}

// middlewares puts the role gate inside the timeout so a slow directory is
// bounded like the handler itself.
func (m *CommandManager) middlewares(timeout time.Duration, access Access) []Middleware {
	return []Middleware{MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(timeout), MWAccess(m.resolver, access)}
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, fromID int64, from kit.Profile, cmd string) *Request {
	rid := uuid.NewString()
	chatID := strconv.FormatInt(chat.ChatID, 10)
	return &Request{
		Update:  up,
		Chat:    chat,
		ChatID:  chatID,
		FromID:  fromID,
		Sender:  users.Profile{Username: from.Username, FirstName: from.FirstName, LastName: from.LastName},
		Command: cmd,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.String("chat_id", chatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", cmd),
		),
	}
}

// dispatch queues the gated handler on the chat's lane. Role resolution
// happens on the worker so a slow directory never stalls the update loop.
func (m *CommandManager) dispatch(ctx context.Context, req *Request, h HandlerFunc) {
	job := func() {
		if err := h(ctx, req); err != nil {
			m.replyError(ctx, req, err)
			return
		}
		// Clears the client-side spinner when the handler did not answer.
		if err := req.Answer(ctx, ""); err != nil {
			req.Logger.Debug("callback answer failed", logx.Err(err))
		}
	}
	if !m.tryEnqueue(req.ChatID, job) {
		m.log.Warn("command queue full", logx.String("cmd", req.Command))
		if req.Update.Callback != nil {
			_ = m.adapter.AnswerCallback(ctx, req.Update.Callback.ID, busyText)
		} else if req.Update.Kind == kit.UpdateMessage {
			_, _ = m.adapter.SendText(ctx, req.Chat, busyText, nil)
		}
	}
}
