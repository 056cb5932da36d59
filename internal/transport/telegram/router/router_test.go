package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingbot/internal/paging"
	"pingbot/internal/storage"
	kit "pingbot/internal/transport"
	"pingbot/internal/transport/transporttest"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

type harness struct {
	t    *testing.T
	dir  *storage.Memory
	rec  *transporttest.Recorder
	m    *CommandManager
	upd  chan kit.Update
	runs atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:   t,
		dir: storage.NewMemory(),
		rec: transporttest.New(),
		upd: make(chan kit.Update, 16),
	}
	users.Seed(context.Background(), h.dir, []string{"1"})
	h.m = NewCommandManager(logx.Nop(), h.rec, users.NewResolver(h.dir), Config{Workers: 2})

	adminOnly := func(ctx context.Context, req *Request) error {
		h.runs.Add(1)
		_, err := req.Reply(ctx, "secret for "+string(req.Role), nil)
		return err
	}
	h.m.SetRegistry(context.Background(), []Command{
		{Name: "users", Description: "List users", Access: AccessAdminOnly, Handle: adminOnly},
		{Name: "stats", Description: "Statistics", Access: AccessAdminOnly, Handle: adminOnly},
		{Name: "start", Description: "Start", Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, "hello "+string(req.Role), nil)
			return err
		}},
		{Name: "boom", Hidden: true, Handle: func(ctx context.Context, req *Request) error {
			panic("kaboom")
		}},
		{Name: "badpage", Hidden: true, Handle: func(ctx context.Context, req *Request) error {
			return fmt.Errorf("listing: %w", paging.ErrInvalidPage)
		}},
	}, []CallbackRoute{
		{Scope: "users", Action: "page", Access: AccessAdminOnly, Handle: func(ctx context.Context, req *Request, payload string) error {
			h.runs.Add(1)
			ref, _ := req.CallbackMessage()
			return req.Adapter.EditText(ctx, ref, "page "+payload, nil)
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.m.DispatchLoop(ctx, h.upd)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) text(chatID int64, text string) {
	h.upd <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: chatID, FromID: chatID, Text: text}}
}

func (h *harness) callback(chatID int64, data string) {
	h.upd <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb-" + data, ChatID: chatID, FromID: chatID, MessageID: 77, Data: data,
	}}
}

func (h *harness) waitSent(chatID int64, n int) []transporttest.Sent {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.rec.SentTo(chatID)) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.rec.SentTo(chatID)
}

func (h *harness) waitAnswers(n int) []transporttest.Answer {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.rec.Answers()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.rec.Answers()
}

func TestAdminCommandsAreDeniedToClients(t *testing.T) {
	h := newHarness(t)

	for _, cmd := range []string{"/users", "/stats", "/users 2"} {
		h.text(42, cmd)
	}
	sent := h.waitSent(42, 3)
	for _, s := range sent {
		assert.Equal(t, deniedText, s.Text)
	}
	assert.Zero(t, h.runs.Load())
}

func TestAdminCommandsRunForAdmins(t *testing.T) {
	h := newHarness(t)

	h.text(1, "/users@PingBot")
	sent := h.waitSent(1, 1)
	assert.Equal(t, "secret for ADMIN", sent[0].Text)
}

func TestCallbackDeniedForClientDoesNotEdit(t *testing.T) {
	h := newHarness(t)

	h.callback(42, "users:page:2")
	answers := h.waitAnswers(1)
	assert.Equal(t, deniedText, answers[0].Text)
	assert.Empty(t, h.rec.Edits())
	assert.Zero(t, h.runs.Load())
}

func TestCallbackForAdminEditsAndAnswersOnce(t *testing.T) {
	h := newHarness(t)

	h.callback(1, "users:page:2")
	answers := h.waitAnswers(1)
	require.Len(t, h.rec.Edits(), 1)
	assert.Equal(t, "page 2", h.rec.Edits()[0].Text)
	assert.Equal(t, 77, h.rec.Edits()[0].Ref.MessageID)
	assert.Len(t, answers, 1)
}

func TestRoleIsResolvedPerEvent(t *testing.T) {
	h := newHarness(t)

	h.text(42, "/start")
	sent := h.waitSent(42, 1)
	assert.Equal(t, "hello CLIENT", sent[0].Text)

	users.Seed(context.Background(), h.dir, []string{"42"})
	h.text(42, "/start")
	sent = h.waitSent(42, 2)
	assert.Equal(t, "hello ADMIN", sent[1].Text)
}

func TestUnknownAndPlainTextAreIgnored(t *testing.T) {
	h := newHarness(t)

	h.text(42, "hello there")
	h.text(42, "/nope")
	h.callback(42, "garbage")
	h.text(42, "/start")

	sent := h.waitSent(42, 1)
	assert.Len(t, sent, 1)
	assert.Equal(t, "hello CLIENT", sent[0].Text)
}

func TestPanicAndErrorsAreMappedAtBoundary(t *testing.T) {
	h := newHarness(t)

	h.text(42, "/boom")
	sent := h.waitSent(42, 1)
	assert.Equal(t, genericText, sent[0].Text)

	h.text(42, "/badpage")
	sent = h.waitSent(42, 2)
	assert.Equal(t, invalidPageText, sent[1].Text)

	// The loop survives handler failures.
	h.text(42, "/start")
	sent = h.waitSent(42, 3)
	assert.Equal(t, "hello CLIENT", sent[2].Text)
}

func TestDirectoryFailureIsReportedNotMaskedAsClient(t *testing.T) {
	h := newHarness(t)
	h.dir.SetFailure(errors.New("down"))

	h.text(42, "/start")
	sent := h.waitSent(42, 1)
	assert.Equal(t, unavailableText, sent[0].Text)
}

func TestHelpIsRoleAware(t *testing.T) {
	h := newHarness(t)

	h.text(42, "/help")
	client := h.waitSent(42, 1)[0].Text
	assert.Contains(t, client, "/start")
	assert.Contains(t, client, "/help")
	assert.NotContains(t, client, "/users")
	assert.NotContains(t, client, "/boom")

	h.text(1, "/help")
	admin := h.waitSent(1, 1)[0].Text
	assert.Contains(t, admin, "/users")
	assert.Contains(t, admin, "/stats")
}

func TestWebAppDataReachesHandlerWithoutReply(t *testing.T) {
	h := newHarness(t)
	got := make(chan string, 1)
	h.m.SetWebAppHandler(func(ctx context.Context, req *Request) error {
		got <- req.ChatID + "|" + req.Payload
		return errors.New("fan-out exploded")
	})

	h.upd <- kit.Update{Kind: kit.UpdateWebApp, WebApp: &kit.WebAppData{ChatID: 42, FromID: 42, Data: `{"action":"ping"}`}}

	select {
	case v := <-got:
		assert.Equal(t, `42|{"action":"ping"}`, v)
	case <-time.After(2 * time.Second):
		t.Fatal("web app handler not called")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.rec.SentTo(42))
}

func TestMenuPublishedWithAdminMarks(t *testing.T) {
	h := newHarness(t)
	menu := h.rec.Menu()

	names := make([]string, 0, len(menu))
	for _, c := range menu {
		names = append(names, c.Command)
		if c.Command == "users" {
			assert.True(t, strings.HasPrefix(c.Description, "🔒"))
		}
	}
	assert.Equal(t, []string{"users", "stats", "start", "help"}, names)
}

func TestSanitizeTelegramCommand(t *testing.T) {
	assert.Equal(t, "list_users", sanitizeTelegramCommand("List-Users"))
	assert.Equal(t, "cmd_42", sanitizeTelegramCommand("42"))
	assert.Equal(t, "", sanitizeTelegramCommand("!!!"))
}

func TestUserText(t *testing.T) {
	assert.Equal(t, unchangedText, UserText(kit.ErrMessageNotModified))
	assert.Equal(t, timeoutText, UserText(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, genericText, UserText(errors.New("other")))
}

// startManager runs a manager over cmds until the test ends.
func startManager(t *testing.T, resolver RoleResolver, cfg Config, cmds []Command) (*CommandManager, *transporttest.Recorder, chan kit.Update) {
	t.Helper()
	rec := transporttest.New()
	m := NewCommandManager(logx.Nop(), rec, resolver, cfg)
	m.SetRegistry(context.Background(), cmds, nil)
	upd := make(chan kit.Update, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, upd)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, rec, upd
}

func TestSameChatEventsRunInArrivalOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		done []string
	)
	record := func(req *Request) {
		mu.Lock()
		done = append(done, req.ChatID+":"+req.Command)
		mu.Unlock()
	}
	m, _, upd := startManager(t, users.NewResolver(storage.NewMemory()), Config{Workers: 4}, []Command{
		{Name: "first", Handle: func(ctx context.Context, req *Request) error {
			time.Sleep(300 * time.Millisecond)
			record(req)
			return nil
		}},
		{Name: "second", Handle: func(ctx context.Context, req *Request) error {
			record(req)
			return nil
		}},
	})

	// A chat owned by a different worker must not wait behind chat 5.
	other := int64(6)
	for m.lane(strconv.FormatInt(other, 10)) == m.lane("5") {
		other++
	}
	send := func(chatID int64, text string) {
		upd <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: chatID, FromID: chatID, Text: text}}
	}
	send(5, "/first")
	send(5, "/second")
	send(other, "/second")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(done) == 3
	}, 3*time.Second, 5*time.Millisecond)

	otherDone := strconv.FormatInt(other, 10) + ":second"
	assert.Equal(t, []string{otherDone, "5:first", "5:second"}, done)
}

func TestLaneIsStablePerChat(t *testing.T) {
	m := NewCommandManager(logx.Nop(), transporttest.New(), users.NewResolver(storage.NewMemory()), Config{Workers: 3})
	require.Len(t, m.lanes, 3)
	for _, id := range []string{"1", "42", "-100123"} {
		l := m.lane(id)
		assert.Equal(t, l, m.lane(id))
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
	}
}

type blockingResolver struct{}

func (blockingResolver) ResolveRole(ctx context.Context, chatID string) (users.Role, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRoleResolutionIsBoundedByRouteTimeout(t *testing.T) {
	var ran atomic.Bool
	_, rec, upd := startManager(t, blockingResolver{}, Config{Workers: 1}, []Command{
		{Name: "slow", Timeout: 50 * time.Millisecond, Handle: func(ctx context.Context, req *Request) error {
			ran.Store(true)
			return nil
		}},
	})

	start := time.Now()
	upd <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: 42, FromID: 42, Text: "/slow"}}
	require.Eventually(t, func() bool { return len(rec.SentTo(42)) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, timeoutText, rec.SentTo(42)[0].Text)
	assert.False(t, ran.Load())
}
