package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to agents.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.OrgID == "" && e.Type != EventTypeWebhookRejected {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogWebhookRejected records a webhook that failed signature verification.
func (s *Service) LogWebhookRejected(ctx context.Context, path, providerCallID string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeWebhookRejected,
		CallID:  providerCallID,
		Message: "webhook signature rejected",
		Metadata: metadata(map[string]string{
			"path": path,
		}),
	})
}

// LogTransfer records an agent-initiated transfer.
func (s *Service) LogTransfer(ctx context.Context, orgID, actorUserID, actorRole, callID, targetAgentID, mode, room string) error {
	return s.Append(ctx, Event{
		OrgID:       orgID,
		Type:        EventTypeTransfer,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		CallID:      callID,
		AgentID:     targetAgentID,
		Message:     mode + " transfer requested",
		Metadata:    metadata(map[string]string{"mode": mode, "room": room}),
	})
}

// LogOutboundCall records a click-to-call placed by an agent.
func (s *Service) LogOutboundCall(ctx context.Context, orgID, actorUserID, actorRole, callID, agentID string) error {
	return s.Append(ctx, Event{
		OrgID:       orgID,
		Type:        EventTypeOutboundCall,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		CallID:      callID,
		AgentID:     agentID,
		Message:     "outbound call started",
	})
}

// LogVoicemail records a voicemail left on a call.
func (s *Service) LogVoicemail(ctx context.Context, orgID, callID, departmentID string) error {
	return s.Append(ctx, Event{
		OrgID:        orgID,
		Type:         EventTypeVoicemail,
		CallID:       callID,
		DepartmentID: departmentID,
		Message:      "voicemail recorded",
	})
}

// LogFallback records a routing decision that degraded because a dependency failed.
func (s *Service) LogFallback(ctx context.Context, orgID, callID, step, reason string) error {
	return s.Append(ctx, Event{
		OrgID:    orgID,
		Type:     EventTypeRoutingFallback,
		CallID:   callID,
		Message:  "routing fell back at " + step,
		Metadata: metadata(map[string]string{"step": step, "reason": reason}),
	})
}

func metadata(m map[string]string) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
