package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/comigor/cryptosec-go/internal/chat"
)

// Summary is one row of the session list.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Active       bool      `json:"active"`
	Streaming    bool      `json:"streaming"`
}

// View is a session with a snapshot of its messages.
type View struct {
	Summary
	Messages []chat.Snapshot `json:"messages"`
}

// List returns all sessions, most recently created first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, s.summary(sess))
	}
	return out
}

// Get returns a snapshot of one session.
func (s *Store) Get(id string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.find(id)
	if i < 0 {
		return View{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	sess := s.sessions[i]
	v := View{Summary: s.summary(sess), Messages: make([]chat.Snapshot, 0, len(sess.messages))}
	for _, m := range sess.messages {
		v.Messages = append(v.Messages, m.Snapshot())
	}
	return v, nil
}

func (s *Store) summary(sess *session) Summary {
	return Summary{
		ID:           sess.id,
		Title:        sess.title,
		CreatedAt:    sess.createdAt,
		MessageCount: len(sess.messages),
		Active:       sess.id == s.activeID,
		Streaming:    sess.pending != nil,
	}
}

type transcript struct {
	Title      string          `json:"title"`
	CreatedAt  time.Time       `json:"created_at"`
	ExportedAt time.Time       `json:"exported_at"`
	Messages   []chat.Snapshot `json:"messages"`
}

// Export renders the session as an indented JSON transcript.
func (s *Store) Export(id string) ([]byte, error) {
	v, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(transcript{
		Title:      v.Title,
		CreatedAt:  v.CreatedAt,
		ExportedAt: s.now(),
		Messages:   v.Messages,
	}, "", "  ")
}
