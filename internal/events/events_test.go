package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rabbitmq/amqp091-go"
)

func TestPublishing_CarriesIdentityAndPersistence(t *testing.T) {
	e := New(TypeCallVoicemail, "org", "CA1", map[string]string{"department_id": "sales"})
	msg, err := publishing(e)
	if err != nil {
		t.Fatalf("publishing: %v", err)
	}
	if msg.MessageId != e.ID || msg.Type != "call.voicemail" {
		t.Fatalf("unexpected headers %+v", msg)
	}
	if msg.DeliveryMode != amqp091.Persistent || msg.ContentType != "application/json" {
		t.Fatalf("expected persistent json message")
	}
	var back Event
	if err := json.Unmarshal(msg.Body, &back); err != nil {
		t.Fatalf("body: %v", err)
	}
	if back.Data["department_id"] != "sales" {
		t.Fatalf("expected data in body, got %+v", back.Data)
	}
}

func TestNewAMQPPublisher_RequiresURL(t *testing.T) {
	if _, err := NewAMQPPublisher("", "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMemory_KeepsOrder(t *testing.T) {
	var m Memory
	_ = m.Publish(context.Background(), New(TypeSMSReceived, "org", "", nil))
	_ = m.Publish(context.Background(), New(TypeCallCompleted, "org", "CA1", nil))
	evs := m.Events()
	if len(evs) != 2 || evs[1].Type != TypeCallCompleted {
		t.Fatalf("unexpected events %+v", evs)
	}
}
