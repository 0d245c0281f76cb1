package calls

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAdvance(t *testing.T) {
	cases := []struct {
		cur, next, want CallStatus
	}{
		{"", CallStatusRinging, CallStatusRinging},
		{CallStatusInitiated, CallStatusRinging, CallStatusRinging},
		{CallStatusRinging, CallStatusInProgress, CallStatusInProgress},
		{CallStatusInProgress, CallStatusRinging, CallStatusInProgress},
		{CallStatusInProgress, CallStatusTransferred, CallStatusTransferred},
		{CallStatusTransferred, CallStatusCompleted, CallStatusCompleted},
		{CallStatusRinging, CallStatusNoAnswer, CallStatusNoAnswer},
		{CallStatusCompleted, CallStatusRinging, CallStatusCompleted},
		{CallStatusVoicemail, CallStatusCompleted, CallStatusVoicemail},
		{CallStatusCanceled, CallStatusInProgress, CallStatusCanceled},
		{CallStatusRinging, "bogus", CallStatusRinging},
	}
	for _, tc := range cases {
		if got := Advance(tc.cur, tc.next); got != tc.want {
			t.Fatalf("Advance(%q, %q) = %q, want %q", tc.cur, tc.next, got, tc.want)
		}
	}
}

func TestFromProvider(t *testing.T) {
	cases := map[string]CallStatus{
		"queued":      CallStatusInitiated,
		"ringing":     CallStatusRinging,
		"in-progress": CallStatusInProgress,
		"completed":   CallStatusCompleted,
		"no-answer":   CallStatusNoAnswer,
		"busy":        CallStatusBusy,
		"failed":      CallStatusFailed,
		"canceled":    CallStatusCanceled,
	}
	for in, want := range cases {
		got, ok := FromProvider(in)
		if !ok || got != want {
			t.Fatalf("FromProvider(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := FromProvider("exploded"); ok {
		t.Fatalf("expected unknown provider status to be rejected")
	}
}

func TestMemoryStore_ReplayIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ended := time.Unix(1700000100, 0).UTC()

	if _, err := s.Upsert(ctx, "CA1", Patch{OrgID: Ptr("org"), From: Ptr("+15550001111"), Status: Ptr(CallStatusRinging)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	done := Patch{Status: Ptr(CallStatusCompleted), EndedAt: &ended, DurationSeconds: Ptr(42)}
	once, err := s.Upsert(ctx, "CA1", done)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	twice, err := s.Upsert(ctx, "CA1", done)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if once.Status != twice.Status || once.DurationSeconds != twice.DurationSeconds || !once.EndedAt.Equal(*twice.EndedAt) {
		t.Fatalf("replay changed state: %+v vs %+v", once, twice)
	}

	stale, err := s.Upsert(ctx, "CA1", Patch{Status: Ptr(CallStatusInProgress)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stale.Status != CallStatusCompleted {
		t.Fatalf("terminal status regressed to %q", stale.Status)
	}
}

func TestMemoryStore_TerminalKeepsStatusButFillsArtifacts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "CA2", Patch{Status: Ptr(CallStatusVoicemail), VoicemailURL: Ptr("https://rec/1")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	c, err := s.Upsert(ctx, "CA2", Patch{Status: Ptr(CallStatusCompleted), DurationSeconds: Ptr(75)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if c.Status != CallStatusVoicemail {
		t.Fatalf("expected voicemail to stick, got %q", c.Status)
	}
	if c.DurationSeconds != 75 || c.VoicemailURL != "https://rec/1" {
		t.Fatalf("expected artifacts merged, got %+v", c)
	}
}

func TestMemoryStore_ConcurrentUpsertsNeverRegress(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Upsert(ctx, "CA3", Patch{Status: Ptr(CallStatusCompleted)})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Upsert(ctx, "CA3", Patch{Status: Ptr(CallStatusRinging), RecordingURL: Ptr("https://rec/2")})
		}()
	}
	wg.Wait()

	c, err := s.Get(ctx, "CA3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %q", c.Status)
	}
}

func TestMemoryStore_FindOpenByCounterparty(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _ = s.Upsert(ctx, "CA-old", Patch{OrgID: Ptr("org"), From: Ptr("+1555"), Status: Ptr(CallStatusCompleted)})
	_, _ = s.Upsert(ctx, "CA-live", Patch{OrgID: Ptr("org"), From: Ptr("+1555"), Status: Ptr(CallStatusInProgress)})
	_, _ = s.Upsert(ctx, "CA-other", Patch{OrgID: Ptr("other"), From: Ptr("+1555"), Status: Ptr(CallStatusInProgress)})

	c, err := s.FindOpenByCounterparty(ctx, "org", "+1555")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c.ProviderCallID != "CA-live" {
		t.Fatalf("expected CA-live, got %q", c.ProviderCallID)
	}
	if _, err := s.FindOpenByCounterparty(ctx, "org", "+1999"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCall_Counterparty(t *testing.T) {
	in := Call{Direction: DirectionInbound, From: "+1", To: "+2"}
	out := Call{Direction: DirectionOutbound, From: "+1", To: "+2"}
	if in.Counterparty() != "+1" || out.Counterparty() != "+2" {
		t.Fatalf("unexpected counterparty: %q %q", in.Counterparty(), out.Counterparty())
	}
}
