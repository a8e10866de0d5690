package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rhuss/codeloop/pkg/api"
)

// Session is the conversation log of one interactive session. It starts
// with the system prompt and only ever grows; messages are never modified
// or removed once appended.
type Session struct {
	id string

	mu       sync.RWMutex
	messages []api.Message
}

// NewSession creates a session whose log holds the system prompt. An empty
// prompt selects DefaultSystemPrompt.
func NewSession(systemPrompt string) *Session {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Session{
		id:       uuid.NewString(),
		messages: []api.Message{api.NewSystemMessage(systemPrompt)},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Messages returns a snapshot of the log.
func (s *Session) Messages() []api.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Session) append(msgs ...api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}
