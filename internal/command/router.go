// Package command parses and executes slash commands that control the bot's
// per-user auto-reply policy and conversation state.
package command

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mozi2244/webot/internal/policy"
	"github.com/mozi2244/webot/internal/session"
)

// User-visible reply texts.
const (
	msgEnabled       = "AI auto-reply enabled."
	msgDisabled      = "AI auto-reply disabled."
	msgHistoryClear  = "Chat history cleared."
	msgUnknown       = "Unknown command. Send /help for a list of commands."
	msgDenied        = "Permission denied. This command is admin only."
	msgNoEnabled     = "No users currently have auto-reply enabled."
	msgInternalError = "An error occurred. Please try again later."

	helpText = `Bot commands:
/on - enable AI auto-reply
/off - disable AI auto-reply
/status - show current settings
/clear - clear chat history
/prompt <text> - set a custom system prompt

Any message not starting with / is sent straight to the AI.`

	adminHelpText = `

Admin commands:
/admin list - list all users with auto-reply enabled
/admin enable <id> - enable auto-reply for a user
/admin disable <id> - disable auto-reply for a user`
)

// handlerFunc executes one command. args holds the captured groups of the
// matched pattern, in order.
type handlerFunc func(userID string, args []string) string

// route pairs a compiled pattern with its handler. Routes are evaluated in
// declared order; the first match wins.
type route struct {
	pattern *regexp.Regexp
	handler handlerFunc
}

// Router dispatches slash commands against an ordered route table. Every
// command is handled independently; there are no multi-turn command flows.
type Router struct {
	adminID  string
	policy   *policy.Store
	sessions *session.Store
	logger   *slog.Logger
	routes   []route
}

// NewRouter builds the command table. adminID is the single identifier
// allowed to run /admin commands; an empty adminID means no caller passes
// the admin check.
func NewRouter(adminID string, policyStore *policy.Store, sessions *session.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Router{
		adminID:  adminID,
		policy:   policyStore,
		sessions: sessions,
		logger:   logger.With("component", "command_router"),
	}
	r.routes = []route{
		{regexp.MustCompile(`^/help\s*$`), r.help},
		{regexp.MustCompile(`^/on\s*$`), r.enable},
		{regexp.MustCompile(`^/off\s*$`), r.disable},
		{regexp.MustCompile(`^/status\s*$`), r.status},
		{regexp.MustCompile(`^/clear\s*$`), r.clear},
		{regexp.MustCompile(`^/prompt (.+)$`), r.setPrompt},
		{regexp.MustCompile(`^/admin list$`), r.adminList},
		{regexp.MustCompile(`^/admin enable (.+)$`), r.adminEnable},
		{regexp.MustCompile(`^/admin disable (.+)$`), r.adminDisable},
	}
	return r
}

// IsCommand reports whether text starts with the control prefix.
func (r *Router) IsCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

// Handle matches text against the route table and runs the first matching
// handler. The second return value is false when text is not a command at
// all; an unmatched command yields the unknown-command hint.
func (r *Router) Handle(userID, text string) (string, bool) {
	if !r.IsCommand(text) {
		return "", false
	}

	trimmed := strings.TrimSpace(text)
	for _, rt := range r.routes {
		m := rt.pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		r.logger.Debug("Executing command", "user_id", userID, "pattern", rt.pattern.String())
		return rt.handler(userID, m[1:]), true
	}

	return msgUnknown, true
}

func (r *Router) help(userID string, _ []string) string {
	if userID == r.adminID {
		return helpText + adminHelpText
	}
	return helpText
}

func (r *Router) enable(userID string, _ []string) string {
	if err := r.policy.Enable(userID); err != nil {
		r.logger.Error("Failed to enable auto-reply", "user_id", userID, "error", err)
		return msgInternalError
	}
	return msgEnabled
}

func (r *Router) disable(userID string, _ []string) string {
	if _, err := r.policy.Disable(userID); err != nil {
		r.logger.Error("Failed to disable auto-reply", "user_id", userID, "error", err)
		return msgInternalError
	}
	return msgDisabled
}

func (r *Router) status(userID string, _ []string) string {
	state := "disabled"
	if r.policy.IsEnabled(userID) {
		state = "enabled"
	}
	reply := "AI auto-reply: " + state
	if prompt, ok := r.policy.GetPrompt(userID); ok {
		reply += "\nCurrent prompt: " + prompt
	}
	return reply
}

func (r *Router) clear(userID string, _ []string) string {
	r.sessions.ClearHistory(userID)
	return msgHistoryClear
}

func (r *Router) setPrompt(userID string, args []string) string {
	prompt := args[0]
	if err := r.policy.SetPrompt(userID, prompt); err != nil {
		r.logger.Error("Failed to set custom prompt", "user_id", userID, "error", err)
		return msgInternalError
	}
	return "Custom prompt set:\n" + prompt
}

// The admin check lives inside each admin handler rather than in shared
// routing code, so non-admin callers get a denial message instead of the
// unknown-command hint.

func (r *Router) adminList(userID string, _ []string) string {
	if userID != r.adminID {
		return msgDenied
	}
	users := r.policy.ListEnabled()
	if len(users) == 0 {
		return msgNoEnabled
	}
	return "Users with auto-reply enabled:\n" + strings.Join(users, "\n")
}

func (r *Router) adminEnable(userID string, args []string) string {
	if userID != r.adminID {
		return msgDenied
	}
	target := args[0]
	if err := r.policy.Enable(target); err != nil {
		r.logger.Error("Failed to enable auto-reply for target", "target", target, "error", err)
		return msgInternalError
	}
	return fmt.Sprintf("Auto-reply enabled for user %s.", target)
}

func (r *Router) adminDisable(userID string, args []string) string {
	if userID != r.adminID {
		return msgDenied
	}
	target := args[0]
	wasEnabled, err := r.policy.Disable(target)
	if err != nil {
		r.logger.Error("Failed to disable auto-reply for target", "target", target, "error", err)
		return msgInternalError
	}
	if !wasEnabled {
		return fmt.Sprintf("User %s does not have auto-reply enabled.", target)
	}
	return fmt.Sprintf("Auto-reply disabled for user %s.", target)
}
