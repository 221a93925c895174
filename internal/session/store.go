// Package session keeps the in-process collection of conversations and the
// identity of the active one.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/cryptosec-go/internal/chat"
	"github.com/comigor/cryptosec-go/internal/logger"
)

// DefaultTitle is assigned to sessions created without a title.
const DefaultTitle = "New Session"

// ErrNotFound is returned when an operation references an unknown session.
var ErrNotFound = errors.New("session not found")

type session struct {
	id        string
	title     string
	createdAt time.Time
	messages  []*chat.Message
	pending   *exchange
}

// exchange is the pending request token of a session.
type exchange struct {
	id     string
	cancel context.CancelFunc
	reply  *chat.Message
}

// abort cancels the exchange and freezes its reply so late fragments are rejected.
func (e *exchange) abort() {
	e.cancel()
	e.reply.Freeze()
}

// Store owns all sessions. The front of the collection is the most recently
// created session. When sessions exist exactly one of them is active.
type Store struct {
	mu       sync.RWMutex
	sessions []*session
	activeID string
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new session at the front and makes it active.
func (s *Store) Create(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	sess := &session{
		id:        uuid.NewString(),
		title:     title,
		createdAt: s.now(),
	}

	s.mu.Lock()
	s.sessions = append([]*session{sess}, s.sessions...)
	s.activeID = sess.id
	s.mu.Unlock()

	logger.L.Info("session created", "session", sess.id, "title", title)
	return sess.id
}

// Select makes id the active session.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(id) < 0 {
		return fmt.Errorf("select %s: %w", id, ErrNotFound)
	}
	if s.activeID != id {
		s.activeID = id
		logger.L.Debug("session selected", "session", id)
	}
	return nil
}

// Delete removes the session with its messages and cancels its in-flight
// exchange. Deleting the active session activates the most recently created
// remaining one, or none when the store becomes empty.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	sess := s.sessions[i]
	if sess.pending != nil {
		sess.pending.abort()
		sess.pending = nil
	}
	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)

	if s.activeID == id {
		s.activeID = ""
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].id
		}
	}
	logger.L.Info("session deleted", "session", id, "active", s.activeID)
	return nil
}

// Rename changes the title of a session. Blank titles are ignored.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return fmt.Errorf("rename %s: %w", id, ErrNotFound)
	}
	if title = strings.TrimSpace(title); title != "" {
		s.sessions[i].title = title
	}
	return nil
}

// Append adds msg at the end of the session's messages.
func (s *Store) Append(id string, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return fmt.Errorf("append to %s: %w", id, ErrNotFound)
	}
	s.sessions[i].messages = append(s.sessions[i].messages, msg)
	return nil
}

// Active returns the id of the active session.
func (s *Store) Active() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID, s.activeID != ""
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// History returns the session's messages as backend history.
func (s *Store) History(id string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.find(id)
	if i < 0 {
		return nil, fmt.Errorf("history of %s: %w", id, ErrNotFound)
	}
	return turns(s.sessions[i].messages), nil
}

// BeginExchange records a submitted turn: it aborts the previous exchange of
// the session, appends the user message and the reply placeholder, and stores
// cancel as the pending request token. The returned history ends with the
// user message and excludes the placeholder.
func (s *Store) BeginExchange(id string, user, reply *chat.Message, cancel context.CancelFunc) (string, []chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(id)
	if i < 0 {
		return "", nil, fmt.Errorf("submit to %s: %w", id, ErrNotFound)
	}
	sess := s.sessions[i]
	if sess.pending != nil {
		logger.L.Info("exchange superseded", "session", id, "exchange", sess.pending.id)
		sess.pending.abort()
	}

	sess.messages = append(sess.messages, user)
	history := turns(sess.messages)
	sess.messages = append(sess.messages, reply)

	ex := &exchange{id: uuid.NewString(), cancel: cancel, reply: reply}
	sess.pending = ex
	return ex.id, history, nil
}

// FinishExchange clears the pending token if it still belongs to exchangeID.
// It reports whether the exchange was the session's current one.
func (s *Store) FinishExchange(id, exchangeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return false, fmt.Errorf("finish exchange on %s: %w", id, ErrNotFound)
	}
	sess := s.sessions[i]
	if sess.pending == nil || sess.pending.id != exchangeID {
		return false, nil
	}
	sess.pending = nil
	return true, nil
}

// Streaming reports whether the session has an exchange in flight.
func (s *Store) Streaming(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.find(id)
	if i < 0 {
		return false, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return s.sessions[i].pending != nil, nil
}

func (s *Store) find(id string) int {
	for i, sess := range s.sessions {
		if sess.id == id {
			return i
		}
	}
	return -1
}

func turns(msgs []*chat.Message) []chat.Turn {
	out := make([]chat.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Turn())
	}
	return out
}
