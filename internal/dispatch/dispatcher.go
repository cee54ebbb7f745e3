// Package dispatch orchestrates the message pipeline: it turns an inbound
// private-message event into a command reply, an AI-generated reply, or
// nothing.
package dispatch

import (
	"context"
	"io"
	"log/slog"

	"github.com/mozi2244/webot/internal/command"
	"github.com/mozi2244/webot/internal/logger"
	"github.com/mozi2244/webot/internal/onebot"
	"github.com/mozi2244/webot/internal/policy"
	"github.com/mozi2244/webot/internal/session"
)

// CompletionClient generates an AI reply from a system prompt and a
// conversation history. Implementations recover upstream failures into
// user-facing text; an empty return means no reply.
type CompletionClient interface {
	GenerateResponse(ctx context.Context, prompt string, history []session.Message) string
}

// Dispatcher routes inbound events through command handling and the AI
// completion path.
type Dispatcher struct {
	router        *command.Router
	sessions      *session.Store
	policy        *policy.Store
	completion    CompletionClient
	defaultPrompt string
	inflight      *inflightSet
	logger        *slog.Logger
}

// NewDispatcher wires the dispatcher with its collaborators. defaultPrompt
// is the system prompt used for users without a custom one.
func NewDispatcher(
	router *command.Router,
	sessions *session.Store,
	policyStore *policy.Store,
	completion CompletionClient,
	defaultPrompt string,
	log *slog.Logger,
) *Dispatcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		router:        router,
		sessions:      sessions,
		policy:        policyStore,
		completion:    completion,
		defaultPrompt: defaultPrompt,
		inflight:      newInflightSet(),
		logger:        log.With("component", "dispatcher"),
	}
}

// HandleEvent processes one inbound event and returns the reply to deliver,
// or nil when the event produces none. It never panics outward: a fault
// while handling a single event is logged and treated as "no reply" so the
// poll loop keeps running.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev *onebot.Event) (reply *onebot.OutgoingMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Panic while handling event",
				"message_id", ev.MessageID, "user_id", ev.UserID, "panic", r)
			reply = nil
		}
	}()

	if !ev.IsPrivateMessage() {
		return nil
	}
	if ev.UserID == "" {
		d.logger.DebugContext(ctx, "Private message without user_id, ignoring", "message_id", ev.MessageID)
		return nil
	}

	// Duplicate-delivery suppression. The marker must be released on every
	// exit path, including panics, hence the deferred release.
	if ev.MessageID != "" {
		if !d.inflight.tryAcquire(ev.MessageID) {
			d.logger.DebugContext(ctx, "Message already in flight, skipping",
				"message_id", ev.MessageID, "user_id", ev.UserID)
			return nil
		}
		defer d.inflight.release(ev.MessageID)
	}

	text := ev.PlainText()
	if text == "" {
		return nil
	}

	d.logger.InfoContext(ctx, "Handling private message",
		"user_id", ev.UserID, "message_id", ev.MessageID,
		"text_preview", logger.TruncateForLog(text, 50))

	// Commands are answered regardless of the auto-reply policy.
	if result, ok := d.router.Handle(ev.UserID, text); ok {
		if result == "" {
			return nil
		}
		return onebot.NewTextReply(ev.UserID, result)
	}

	if !d.policy.IsEnabled(ev.UserID) {
		d.logger.DebugContext(ctx, "Auto-reply disabled for user, ignoring", "user_id", ev.UserID)
		return nil
	}

	return d.generateReply(ctx, ev.UserID, text)
}

// generateReply runs the AI completion path: record the user turn, assemble
// prompt and history, and record the assistant turn if a reply is produced.
func (d *Dispatcher) generateReply(ctx context.Context, userID, text string) *onebot.OutgoingMessage {
	d.sessions.AddMessage(userID, session.RoleUser, text)
	history := d.sessions.GetHistory(userID, 0)

	prompt := d.defaultPrompt
	if custom, ok := d.policy.GetPrompt(userID); ok {
		prompt = custom
	}

	answer := d.completion.GenerateResponse(ctx, prompt, history)
	if answer == "" {
		return nil
	}

	d.sessions.AddMessage(userID, session.RoleAssistant, answer)
	return onebot.NewTextReply(userID, answer)
}
