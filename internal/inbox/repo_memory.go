package inbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is a simple in-memory Repository useful for tests and early development.
//
// NOTE: This is not intended for production; use PostgresRepo.
type MemoryRepo struct {
	mu sync.Mutex

	conversations map[string]Conversation
	byContact     map[string]string
	messages      map[string][]Message
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		conversations: map[string]Conversation{},
		byContact:     map[string]string{},
		messages:      map[string][]Message{},
	}
}

func (r *MemoryRepo) FindOrCreate(ctx context.Context, orgID, phone, contactName string, now time.Time) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := orgID + "\x00" + phone
	if id, ok := r.byContact[key]; ok {
		c := r.conversations[id]
		if c.ContactName == "" && contactName != "" {
			c.ContactName = contactName
			r.conversations[id] = c
		}
		return c, nil
	}
	c := Conversation{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		ContactPhone: phone,
		ContactName:  contactName,
		Status:       StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.conversations[c.ID] = c
	r.byContact[key] = c.ID
	return c, nil
}

func (r *MemoryRepo) UpsertMessage(ctx context.Context, m Message) (Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[m.ConversationID]; !ok {
		return Message{}, false, ErrNotFound
	}
	msgs := r.messages[m.ConversationID]
	for i := range msgs {
		if msgs[i].ExternalID != m.ExternalID {
			continue
		}
		m.ID = msgs[i].ID
		m.CreatedAt = msgs[i].CreatedAt
		if len(m.MediaURLs) == 0 {
			m.MediaURLs = msgs[i].MediaURLs
		}
		if m.RecordingURL == "" {
			m.RecordingURL = msgs[i].RecordingURL
		}
		msgs[i] = m
		return m, false, nil
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	r.messages[m.ConversationID] = append(msgs, m)
	return m, true, nil
}

func (r *MemoryRepo) Touch(ctx context.Context, conversationID string, m Message, incrementUnread bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if c.LastMessageAt == nil || !m.CreatedAt.Before(*c.LastMessageAt) {
		at := m.CreatedAt
		c.LastMessageAt = &at
		c.LastMessagePreview = m.Preview
		c.LastMessageChannel = m.Channel
	}
	if incrementUnread {
		c.UnreadCount++
	}
	c.Status = StatusOpen
	c.UpdatedAt = m.UpdatedAt
	r.conversations[conversationID] = c
	return nil
}

func (r *MemoryRepo) Conversation(ctx context.Context, id string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) MessageByExternalID(ctx context.Context, conversationID, externalID string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[conversationID] {
		if m.ExternalID == externalID {
			return m, nil
		}
	}
	return Message{}, ErrNotFound
}

func (r *MemoryRepo) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages[conversationID]))
	copy(out, r.messages[conversationID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
