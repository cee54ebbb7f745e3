// Package session manages per-user conversation history with bounded length
// and idle-timeout expiry.
package session

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Message roles recorded in a conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a user's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// session holds one user's conversation state. Each session carries its own
// mutex so different users' sessions can be mutated in parallel while
// mutations for the same user are serialized.
type session struct {
	mu           sync.Mutex
	messages     []Message
	lastActivity time.Time

	// removed is set, under both the store and session locks, when the
	// session is deleted from the store map. A writer holding a pointer
	// fetched before the deletion sees the marker and re-fetches instead
	// of appending to an orphaned session.
	removed bool
}

// Store manages conversation sessions keyed by user identifier. All methods
// are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session

	maxHistory int
	timeout    time.Duration
	logger     *slog.Logger

	now func() time.Time // overridable for tests
}

// NewStore creates a session store that keeps at most maxHistory messages per
// user and expires sessions idle for longer than timeout.
func NewStore(maxHistory int, timeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		sessions:   make(map[string]*session),
		maxHistory: maxHistory,
		timeout:    timeout,
		logger:     logger.With("component", "session_store"),
		now:        time.Now,
	}
}

// getOrCreate returns the session for userID, creating it if absent.
func (s *Store) getOrCreate(userID string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess = &session{}
	s.sessions[userID] = sess
	return sess
}

// AddMessage appends a message to the user's history, evicting the oldest
// entries beyond capacity, and refreshes the session's activity timestamp.
// If the session has already passed its idle timeout, the stale history is
// discarded before the new message is recorded.
func (s *Store) AddMessage(userID, role, content string) {
	for {
		sess := s.getOrCreate(userID)
		if s.tryAppend(sess, userID, role, content) {
			return
		}
		// The session was removed between the fetch and the lock; the
		// next iteration fetches or creates the live one.
	}
}

// tryAppend records the message on sess. It reports false, without
// appending, when sess was removed from the store after the caller
// fetched it.
func (s *Store) tryAppend(sess *session, userID, role, content string) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.removed {
		return false
	}

	now := s.now()
	if !sess.lastActivity.IsZero() && now.Sub(sess.lastActivity) > s.timeout {
		s.logger.Debug("Discarding expired history on write", "user_id", userID, "dropped", len(sess.messages))
		sess.messages = nil
	}

	sess.messages = append(sess.messages, Message{Role: role, Content: content})
	if over := len(sess.messages) - s.maxHistory; over > 0 {
		sess.messages = append(sess.messages[:0], sess.messages[over:]...)
	}
	sess.lastActivity = now
	return true
}

// GetHistory returns up to limit most recent messages for userID in
// chronological order. A limit of 0 or less returns the full history.
// An expired session is purged and yields an empty history.
func (s *Store) GetHistory(userID string, limit int) []Message {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	if sess.removed {
		sess.mu.Unlock()
		return nil
	}
	if s.now().Sub(sess.lastActivity) > s.timeout {
		sess.mu.Unlock()
		s.logger.Debug("Purging expired session on read", "user_id", userID)
		s.removeIfExpired(userID, sess)
		return nil
	}

	messages := sess.messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	sess.mu.Unlock()
	return out
}

// ClearHistory removes the user's session entirely. It is a no-op for users
// without a session.
func (s *Store) ClearHistory(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return
	}
	sess.mu.Lock()
	sess.removed = true
	sess.messages = nil
	sess.mu.Unlock()
	delete(s.sessions, userID)
}

// SweepExpired purges every session whose idle time exceeds the timeout and
// returns the number purged. It is intended to run on a fixed schedule so
// idle memory is reclaimed even without traffic.
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for userID, sess := range s.sessions {
		sess.mu.Lock()
		expired := now.Sub(sess.lastActivity) > s.timeout
		if expired {
			sess.removed = true
			sess.messages = nil
		}
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, userID)
			purged++
		}
	}

	if purged > 0 {
		s.logger.Info("Swept expired sessions", "purged", purged, "remaining", len(s.sessions))
	}
	return purged
}

// removeIfExpired deletes the session for userID if it is still the one
// given and still past its idle timeout. The re-check under both locks keeps
// a write that landed after the expiry observation from being discarded.
// Must be called without holding sess.mu; lock order is store then session.
func (s *Store) removeIfExpired(userID string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[userID]
	if !ok || cur != sess {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if s.now().Sub(sess.lastActivity) > s.timeout {
		sess.removed = true
		sess.messages = nil
		delete(s.sessions, userID)
	}
}
