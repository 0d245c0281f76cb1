package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a call-routing fact published for downstream consumers
// (CRM timelines, notifications). Delivery is best-effort.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	OrgID      string            `json:"org_id"`
	CallID     string            `json:"call_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

type Type string

const (
	TypeCallCompleted   Type = "call.completed"
	TypeCallVoicemail   Type = "call.voicemail"
	TypeCallTransferred Type = "call.transferred"
	TypeCallOutbound    Type = "call.outbound"
	TypeSMSReceived     Type = "sms.received"
)

// New stamps an id and time on a new event.
func New(t Type, orgID, callID string, data map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OrgID:      orgID,
		CallID:     callID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event. Used when AMQP_URL is not set.
type Noop struct{}

func (Noop) Publish(ctx context.Context, e Event) error { return nil }

// Memory keeps published events in order; useful for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
