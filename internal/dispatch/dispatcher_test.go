package dispatch_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mozi2244/webot/internal/command"
	"github.com/mozi2244/webot/internal/dispatch"
	"github.com/mozi2244/webot/internal/onebot"
	"github.com/mozi2244/webot/internal/policy"
	"github.com/mozi2244/webot/internal/session"
)

const defaultPrompt = "default system prompt"

// fakeCompletion implements dispatch.CompletionClient with a pluggable
// response function.
type fakeCompletion struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	fn      func(prompt string, history []session.Message) string
}

func (f *fakeCompletion) GenerateResponse(_ context.Context, prompt string, history []session.Message) string {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return "ai says hi"
	}
	return fn(prompt, history)
}

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	dispatcher *dispatch.Dispatcher
	policy     *policy.Store
	sessions   *session.Store
	completion *fakeCompletion
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	policyStore, err := policy.NewStore(filepath.Join(t.TempDir(), "user_config.json"), "", nil)
	if err != nil {
		t.Fatalf("policy.NewStore: %v", err)
	}
	sessions := session.NewStore(10, 30*time.Minute, nil)
	router := command.NewRouter("wx_admin", policyStore, sessions, nil)
	completion := &fakeCompletion{}

	return &fixture{
		dispatcher: dispatch.NewDispatcher(router, sessions, policyStore, completion, defaultPrompt, nil),
		policy:     policyStore,
		sessions:   sessions,
		completion: completion,
	}
}

func textEvent(userID, messageID, text string) *onebot.Event {
	return &onebot.Event{
		Type:       "message",
		DetailType: "private",
		MessageID:  messageID,
		UserID:     userID,
		Message: onebot.Message{
			{Type: "text", Data: onebot.SegmentData{Text: text}},
		},
	}
}

func TestIrrelevantEventsIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event *onebot.Event
	}{
		{
			name: "group message",
			event: &onebot.Event{
				Type: "message", DetailType: "group", UserID: "wx_user", MessageID: "m1",
				Message: onebot.Message{{Type: "text", Data: onebot.SegmentData{Text: "hi"}}},
			},
		},
		{
			name:  "notice event",
			event: &onebot.Event{Type: "notice", DetailType: "private", UserID: "wx_user"},
		},
		{
			name:  "missing user id",
			event: &onebot.Event{Type: "message", DetailType: "private", MessageID: "m2"},
		},
		{
			name: "no text segments",
			event: &onebot.Event{
				Type: "message", DetailType: "private", UserID: "wx_user", MessageID: "m3",
				Message: onebot.Message{{Type: "image"}},
			},
		},
		{
			name:  "malformed message payload",
			event: &onebot.Event{Type: "message", DetailType: "private", UserID: "wx_user", MessageID: "m4"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if reply := f.dispatcher.HandleEvent(context.Background(), tc.event); reply != nil {
				t.Errorf("HandleEvent returned a reply for an irrelevant event: %+v", reply)
			}
			if f.completion.callCount() != 0 {
				t.Error("completion client called for an irrelevant event")
			}
		})
	}
}

func TestDisabledUserGetsNoReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if reply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m1", "hello")); reply != nil {
		t.Fatalf("disabled user got a reply: %+v", reply)
	}
	if f.completion.callCount() != 0 {
		t.Error("completion client consulted for disabled user")
	}
	if got := f.sessions.GetHistory("wx_user", 0); got != nil {
		t.Errorf("disabled user's message recorded in history: %v", got)
	}
}

func TestEnabledUserFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// /on, then the same text again: first a command reply, then an AI reply.
	cmdReply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m1", "/on"))
	if cmdReply == nil {
		t.Fatal("no reply for /on")
	}
	if got := cmdReply.PlainText(); got != "AI auto-reply enabled." {
		t.Errorf("command reply = %q", got)
	}
	if cmdReply.UserID != "wx_user" || cmdReply.DetailType != "private" {
		t.Errorf("command reply misaddressed: %+v", cmdReply)
	}
	// Command replies must not touch the session.
	if got := f.sessions.GetHistory("wx_user", 0); got != nil {
		t.Errorf("command recorded in history: %v", got)
	}

	aiReply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m2", "hello"))
	if aiReply == nil {
		t.Fatal("no reply for enabled user's text")
	}
	if got := aiReply.PlainText(); got != "ai says hi" {
		t.Errorf("AI reply = %q", got)
	}

	history := f.sessions.GetHistory("wx_user", 0)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want user turn plus assistant turn", len(history))
	}
	if history[0].Role != session.RoleUser || history[0].Content != "hello" {
		t.Errorf("history[0] = %+v, want user turn", history[0])
	}
	if history[1].Role != session.RoleAssistant || history[1].Content != "ai says hi" {
		t.Errorf("history[1] = %+v, want assistant turn", history[1])
	}
}

func TestCustomPromptUsed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.policy.Enable("wx_user"); err != nil {
		t.Fatal(err)
	}

	f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m1", "hi"))
	if got := f.completion.prompts[0]; got != defaultPrompt {
		t.Errorf("prompt = %q, want default %q", got, defaultPrompt)
	}

	if err := f.policy.SetPrompt("wx_user", "custom prompt"); err != nil {
		t.Fatal(err)
	}
	f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m2", "hi again"))
	if got := f.completion.prompts[1]; got != "custom prompt" {
		t.Errorf("prompt = %q, want custom", got)
	}
}

func TestMultipleTextSegmentsConcatenated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.policy.Enable("wx_user"); err != nil {
		t.Fatal(err)
	}

	ev := &onebot.Event{
		Type: "message", DetailType: "private", UserID: "wx_user", MessageID: "m1",
		Message: onebot.Message{
			{Type: "text", Data: onebot.SegmentData{Text: "part one "}},
			{Type: "image"},
			{Type: "text", Data: onebot.SegmentData{Text: "part two"}},
		},
	}
	f.dispatcher.HandleEvent(context.Background(), ev)

	history := f.sessions.GetHistory("wx_user", 0)
	if len(history) == 0 || history[0].Content != "part one part two" {
		t.Errorf("recorded content = %v, want concatenated segments", history)
	}
}

func TestDuplicateDeliverySuppressed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.policy.Enable("wx_user"); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	block := make(chan struct{})
	f.completion.fn = func(string, []session.Message) string {
		entered <- struct{}{}
		<-block
		return "slow reply"
	}

	var first *onebot.OutgoingMessage
	done := make(chan struct{})
	go func() {
		defer close(done)
		first = f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "dup", "hello"))
	}()

	// Once the first delivery is inside the completion call, concurrent
	// redeliveries of the same message_id must be dropped.
	<-entered
	for i := 0; i < 3; i++ {
		if reply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "dup", "hello")); reply != nil {
			t.Errorf("duplicate delivery %d produced a reply: %+v", i, reply)
		}
	}

	close(block)
	<-done
	if first == nil || first.PlainText() != "slow reply" {
		t.Errorf("first delivery reply = %+v, want the completion text", first)
	}

	// The marker must be released afterwards: the same id dispatches again.
	f.completion.fn = nil
	if reply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "dup", "hello")); reply == nil {
		t.Error("in-flight marker leaked: redelivery after completion produced no reply")
	}
}

func TestPanicRecoveredAndMarkerReleased(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.policy.Enable("wx_user"); err != nil {
		t.Fatal(err)
	}

	f.completion.fn = func(string, []session.Message) string {
		panic("upstream client bug")
	}
	if reply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m1", "boom")); reply != nil {
		t.Errorf("panicking pipeline produced a reply: %+v", reply)
	}

	// The same message id must be processable again.
	f.completion.fn = nil
	if reply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m1", "retry")); reply == nil {
		t.Error("in-flight marker leaked after panic")
	}
}

func TestEmptyCompletionMeansNoReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.policy.Enable("wx_user"); err != nil {
		t.Fatal(err)
	}

	f.completion.fn = func(string, []session.Message) string { return "" }
	if reply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m1", "hi")); reply != nil {
		t.Errorf("empty completion produced a reply: %+v", reply)
	}

	// The user turn is still recorded; no assistant turn follows.
	history := f.sessions.GetHistory("wx_user", 0)
	if len(history) != 1 || history[0].Role != session.RoleUser {
		t.Errorf("history = %v, want only the user turn", history)
	}
}

func TestCommandsBypassPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// A disabled user still gets command replies.
	reply := f.dispatcher.HandleEvent(context.Background(), textEvent("wx_user", "m1", "/status"))
	if reply == nil {
		t.Fatal("disabled user got no reply to /status")
	}
	if got := reply.PlainText(); got != "AI auto-reply: disabled" {
		t.Errorf("/status reply = %q", got)
	}
	if f.completion.callCount() != 0 {
		t.Error("completion client consulted for a command")
	}
}
