// ABOUTME: In-memory conversation log and the Message type shared by every layer
// ABOUTME: Append-only, snapshot reads, indexed lookup by id, atomic clear

package store

import (
	"sync"
	"time"
)

// Role identifies who authored a message
type Role string

// Message roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message. Messages are immutable once created and
// are passed by value.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageStore is the ordered conversation log. Insertion order is
// chronological order. All methods are safe for concurrent use.
type MessageStore struct {
	mu       sync.RWMutex
	messages []Message
	index    map[string]int // id -> position in messages
	gen      uint64         // bumped by every Clear
}

// NewMessageStore creates an empty log
func NewMessageStore() *MessageStore {
	return &MessageStore{
		index: make(map[string]int),
	}
}

// Append adds a message to the end of the log and returns the generation
// it was appended under.
func (s *MessageStore) Append(msg Message) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(msg)
	return s.gen
}

// AppendIf appends msg only if the log has not been cleared since gen.
// It reports whether the message was appended.
func (s *MessageStore) AppendIf(msg Message, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false
	}
	s.appendLocked(msg)
	return true
}

func (s *MessageStore) appendLocked(msg Message) {
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
}

// List returns a snapshot of the log. The returned slice is owned by the
// caller; later appends and clears never affect it.
func (s *MessageStore) List() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get looks up a message by id. The boolean is false when no such message exists.
func (s *MessageStore) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.messages[i], true
}

// Clear empties the log and starts a new generation
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++

	// Fresh backing array: snapshots handed out earlier keep their data
	s.messages = nil
	s.index = make(map[string]int)
}

// Generation returns the number of clears so far
func (s *MessageStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Len returns the number of messages currently in the log
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
