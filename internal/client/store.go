package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/radiosilence/anthropic-play/internal/llm"
	"github.com/radiosilence/anthropic-play/internal/storage"
)

// ChatMessage is one conversation turn as held by the client. An assistant
// placeholder keeps a stable ID for its whole lifetime so streamed deltas
// can target it.
type ChatMessage struct {
	ID        string   `json:"id"`
	Role      llm.Role `json:"role"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// NewChatMessage builds a message with a fresh ID and current timestamp.
func NewChatMessage(role llm.Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// MessageStore owns the ordered conversation transcript and mirrors every
// mutation to the persistence collaborator as a full snapshot. Insertion
// order is conversation order; mutations are append-only except for the
// by-id content updates used during streaming.
type MessageStore struct {
	mu       sync.Mutex
	messages []ChatMessage
	store    storage.Store
}

// NewMessageStore loads the persisted snapshot. A missing or malformed
// snapshot falls back to an empty transcript, never an error.
func NewMessageStore(ctx context.Context, store storage.Store) *MessageStore {
	s := &MessageStore{store: store}

	data, err := store.Load(ctx)
	if err != nil {
		slog.Warn("failed to load persisted transcript", "error", err)
		return s
	}
	if len(data) == 0 {
		return s
	}
	var messages []ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		slog.Warn("discarding malformed persisted transcript", "error", err)
		return s
	}
	s.messages = messages
	return s
}

// Messages returns a copy of the transcript.
func (s *MessageStore) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.messages...)
}

// Len returns the number of messages.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Get returns the message with the given id.
func (s *MessageStore) Get(id string) (ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return ChatMessage{}, false
}

// Append adds a message to the end of the transcript.
func (s *MessageStore) Append(ctx context.Context, msg ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.persistLocked(ctx)
	s.mu.Unlock()
}

// AppendContent concatenates delta onto the message with the given id.
func (s *MessageStore) AppendContent(ctx context.Context, id, delta string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content += delta
			s.persistLocked(ctx)
			break
		}
	}
	s.mu.Unlock()
}

// SetContent replaces the content of the message with the given id.
func (s *MessageStore) SetContent(ctx context.Context, id, content string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			s.persistLocked(ctx)
			break
		}
	}
	s.mu.Unlock()
}

// Remove deletes the message with the given id.
func (s *MessageStore) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.persistLocked(ctx)
			break
		}
	}
	s.mu.Unlock()
}

// Reset clears the transcript and its persisted mirror.
func (s *MessageStore) Reset(ctx context.Context) {
	s.mu.Lock()
	s.messages = nil
	if err := s.store.Clear(ctx); err != nil {
		slog.Warn("failed to clear persisted transcript", "error", err)
	}
	s.mu.Unlock()
}

// persistLocked writes the full snapshot back to the storage collaborator.
// Conversations are small, so no incremental diffing.
func (s *MessageStore) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.messages)
	if err != nil {
		slog.Warn("failed to encode transcript", "error", err)
		return
	}
	if err := s.store.Save(ctx, data); err != nil {
		slog.Warn("failed to persist transcript", "error", err)
	}
}
