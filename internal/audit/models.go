package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - org_id is required for tenancy isolation, except for webhook rejections
//   where the tenant cannot be trusted yet.
// - actor and ip capture are best-effort; do not block a live call on audit failures.
type Event struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id,omitempty" db:"org_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated agent causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	CallID       string `json:"call_id,omitempty" db:"call_id"`
	AgentID      string `json:"agent_id,omitempty" db:"agent_id"`
	DepartmentID string `json:"department_id,omitempty" db:"department_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeWebhookRejected EventType = "webhook_rejected"
	EventTypeTransfer        EventType = "call_transfer"
	EventTypeOutboundCall    EventType = "outbound_call"
	EventTypeVoicemail       EventType = "voicemail_recorded"
	EventTypeRoutingFallback EventType = "routing_fallback"
)
