// Package transporttest provides a recording kit.Adapter for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	kit "pingbot/internal/transport"
)

type Sent struct {
	To   kit.ChatTarget
	Text string
	Opt  kit.SendOptions
}

type Edit struct {
	Ref  kit.MessageRef
	Text string
	Opt  kit.SendOptions
}

type Answer struct {
	CallbackID string
	Text       string
}

// Recorder records every outbound call. Sends to chat ids listed in FailFor
// fail; edits fail with EditErr when set.
type Recorder struct {
	mu sync.Mutex

	FailFor map[int64]error
	EditErr error

	sent    []Sent
	edits   []Edit
	answers []Answer
	menu    []kit.BotCommand
	nextID  int
}

func New() *Recorder {
	return &Recorder{FailFor: map[int64]error{}}
}

// Fail makes sends to chatID return an error.
func (r *Recorder) Fail(chatID int64) {
	r.mu.Lock()
	r.FailFor[chatID] = fmt.Errorf("send to %d: forbidden: bot was blocked by the user", chatID)
	r.mu.Unlock()
}

func (r *Recorder) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (r *Recorder) Stop(ctx context.Context) error                        { return nil }

func (r *Recorder) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailFor[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	r.nextID++
	r.sent = append(r.sent, Sent{To: to, Text: text, Opt: o})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: r.nextID}, nil
}

func (r *Recorder) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EditErr != nil {
		return r.EditErr
	}
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	r.edits = append(r.edits, Edit{Ref: ref, Text: text, Opt: o})
	return nil
}

func (r *Recorder) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, Answer{CallbackID: callbackID, Text: text})
	return nil
}

func (r *Recorder) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.menu = append([]kit.BotCommand(nil), cmds...)
	return nil
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo returns the messages delivered to chatID.
func (r *Recorder) SentTo(chatID int64) []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sent
	for _, s := range r.sent {
		if s.To.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (r *Recorder) Edits() []Edit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Edit(nil), r.edits...)
}

func (r *Recorder) Answers() []Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Answer(nil), r.answers...)
}

func (r *Recorder) Menu() []kit.BotCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kit.BotCommand(nil), r.menu...)
}

var (
	_ kit.Adapter            = (*Recorder)(nil)
	_ kit.CommandMenuUpdater = (*Recorder)(nil)
)
