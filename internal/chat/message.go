// Package chat holds the conversation primitives: messages, streamed fragments
// and the fold that assembles fragments into an assistant reply.
package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

var (
	// ErrFrozen is returned when a completed message is mutated.
	ErrFrozen = errors.New("message is complete")

	ErrTimeout   = errors.New("exchange timed out")
	ErrTransport = errors.New("transport failure")
	ErrCancelled = errors.New("exchange cancelled")
)

// Turn is one entry of the conversation history sent to the backend.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is a single entry of a session. Assistant messages start empty and
// grow while their exchange streams; once frozen the content never changes.
type Message struct {
	mu        sync.RWMutex
	id        string
	role      Role
	createdAt time.Time
	content   strings.Builder
	frozen    bool
	failure   error
}

// NewUserMessage creates a complete user message.
func NewUserMessage(text string) *Message {
	m := newMessage(RoleUser)
	m.content.WriteString(text)
	m.frozen = true
	return m
}

// NewAssistantPlaceholder creates the empty, still mutable reply of an exchange.
func NewAssistantPlaceholder() *Message {
	return newMessage(RoleAssistant)
}

func newMessage(role Role) *Message {
	return &Message{
		id:        uuid.NewString(),
		role:      role,
		createdAt: time.Now().UTC(),
	}
}

func (m *Message) ID() string { return m.id }

func (m *Message) Role() Role { return m.role }

// Append adds a fragment of text at the end of the content.
func (m *Message) Append(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrFrozen
	}
	m.content.WriteString(text)
	return nil
}

// Freeze marks the message complete and reports whether this call did it.
func (m *Message) Freeze() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return false
	}
	m.frozen = true
	return true
}

// Fail freezes the message at its current content and attaches cause.
// A message already frozen keeps its original annotation and Fail returns false.
func (m *Message) Fail(cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return false
	}
	m.frozen = true
	m.failure = cause
	return true
}

func (m *Message) Content() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content.String()
}

func (m *Message) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// Err returns the failure annotation, nil for successful or in-flight messages.
func (m *Message) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failure
}

// Turn converts the message into a history entry.
func (m *Message) Turn() Turn {
	return Turn{Role: m.role, Content: m.Content()}
}

// Snapshot is a read-only copy of a message.
type Snapshot struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Complete  bool      `json:"complete"`
	Error     string    `json:"error,omitempty"`
}

func (m *Message) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		ID:        m.id,
		Role:      m.role,
		Content:   m.content.String(),
		CreatedAt: m.createdAt,
		Complete:  m.frozen,
	}
	if m.failure != nil {
		s.Error = m.failure.Error()
	}
	return s
}
