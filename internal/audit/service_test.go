package audit

import (
	"context"
	"strings"
	"testing"
)

func TestService_AppendRequiresOrgAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeTransfer}); err == nil {
		t.Fatalf("expected error without org")
	}
	if err := svc.Append(context.Background(), Event{OrgID: "org"}); err == nil {
		t.Fatalf("expected error without type")
	}
}

func TestService_WebhookRejectedNeedsNoOrg(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if err := svc.LogWebhookRejected(ctx, "/webhooks/twilio/voice", "CA1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "203.0.113.9" {
		t.Fatalf("expected ip from context, got %q", evs[0].IPAddress)
	}
	if !strings.Contains(evs[0].Metadata, "/webhooks/twilio/voice") {
		t.Fatalf("expected path in metadata, got %q", evs[0].Metadata)
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogTransfer(context.Background(), "org", "u1", "agent", "CA1", "agent-b", "warm", "xfer-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
	if evs[0].Type != EventTypeTransfer || evs[0].AgentID != "agent-b" {
		t.Fatalf("unexpected event %+v", evs[0])
	}
}

func TestClientIPFromContext_Empty(t *testing.T) {
	if ip := ClientIPFromContext(WithClientIP(context.Background(), "")); ip != "" {
		t.Fatalf("expected empty ip, got %q", ip)
	}
}
