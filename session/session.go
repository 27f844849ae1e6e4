// Package session provides conversation history persistence. A Session is a
// snapshot of one conversation's append-only message history; a Store keeps
// sessions by id. History rewriting is restricted to ReplacePrefix, the
// compaction hook point.
package session

import (
	"time"

	"github.com/hupe1980/agentloop/core"
)

// Session holds one conversation's history. Messages are append-only except
// through ReplacePrefix.
type Session struct {
	ID        string         `json:"id"`
	Messages  []core.Message `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// New constructs an empty session. An empty id is replaced with a fresh one.
func New(id string) *Session {
	if id == "" {
		id = core.NewID()
	}
	now := time.Now().UTC()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Append adds messages to the end of the history.
func (s *Session) Append(messages ...core.Message) {
	s.Messages = append(s.Messages, messages...)
	s.UpdatedAt = time.Now().UTC()
}

// ReplacePrefix rewrites the first n messages with the given replacement,
// keeping the remainder. This is the only operation allowed to rewrite
// history; compaction uses it to swap summarized turns for a summary. n is
// clamped to the history length.
func (s *Session) ReplacePrefix(n int, replacement ...core.Message) {
	if n < 0 {
		n = 0
	}
	if n > len(s.Messages) {
		n = len(s.Messages)
	}
	rewritten := make([]core.Message, 0, len(replacement)+len(s.Messages)-n)
	rewritten = append(rewritten, replacement...)
	rewritten = append(rewritten, s.Messages[n:]...)
	s.Messages = rewritten
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep enough copy for safe external use: the message slice
// is copied, the messages themselves are immutable by convention.
func (s *Session) Clone() *Session {
	messages := make([]core.Message, len(s.Messages))
	copy(messages, s.Messages)
	return &Session{
		ID:        s.ID,
		Messages:  messages,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
