package calls

import "time"

// Call represents one telephone call, keyed by the provider call id.
//
// Multi-tenant invariant: OrgID is required on every row.
//
// A Call is created by the first webhook that mentions its id and mutated by
// every later one. Once Status is terminal the status column is frozen;
// late callbacks may still fill artifacts such as duration or recording url.
type Call struct {
	ProviderCallID string    `json:"provider_call_id" db:"provider_call_id"`
	OrgID          string    `json:"org_id" db:"org_id"`
	Direction      Direction `json:"direction" db:"direction"`

	From       string `json:"from" db:"from_number"`
	To         string `json:"to" db:"to_number"`
	CallerName string `json:"caller_name,omitempty" db:"caller_name"`

	Status CallStatus `json:"status" db:"status"`

	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	DepartmentID string `json:"department_id,omitempty" db:"department_id"`
	AgentID      string `json:"agent_id,omitempty" db:"agent_id"`
	// AgentLegID is the provider id of the child leg that rang the agent.
	AgentLegID string `json:"agent_leg_id,omitempty" db:"agent_leg_id"`
	// CursorSnapshot records the round-robin position used for this call.
	CursorSnapshot int    `json:"cursor_snapshot" db:"cursor_snapshot"`
	ConferenceRoom string `json:"conference_room,omitempty" db:"conference_room"`

	RecordingURL  string `json:"recording_url,omitempty" db:"recording_url"`
	VoicemailURL  string `json:"voicemail_url,omitempty" db:"voicemail_url"`
	Transcription string `json:"transcription,omitempty" db:"transcription"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counterparty returns the external party's number.
func (c Call) Counterparty() string {
	if c.Direction == DirectionOutbound {
		return c.To
	}
	return c.From
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type CallStatus string

const (
	CallStatusInitiated   CallStatus = "initiated"
	CallStatusRinging     CallStatus = "ringing"
	CallStatusInProgress  CallStatus = "in_progress"
	CallStatusTransferred CallStatus = "transferred"
	CallStatusCompleted   CallStatus = "completed"
	CallStatusNoAnswer    CallStatus = "no_answer"
	CallStatusBusy        CallStatus = "busy"
	CallStatusFailed      CallStatus = "failed"
	CallStatusCanceled    CallStatus = "canceled"
	CallStatusVoicemail   CallStatus = "voicemail"
)

// rank orders the live statuses. Terminal statuses share the top rank.
var rank = map[CallStatus]int{
	CallStatusInitiated:   1,
	CallStatusRinging:     2,
	CallStatusInProgress:  3,
	CallStatusTransferred: 4,
}

const terminalRank = 10

func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusNoAnswer, CallStatusBusy, CallStatusFailed, CallStatusCanceled, CallStatusVoicemail:
		return true
	default:
		return false
	}
}

func (s CallStatus) Valid() bool {
	return s.IsTerminal() || rank[s] > 0
}

func (s CallStatus) rank() int {
	if s.IsTerminal() {
		return terminalRank
	}
	return rank[s]
}

// Advance returns the status a call ends up in when next is applied to cur.
// Terminal statuses never change; live statuses only move forward.
// An empty or unknown next leaves cur untouched.
func Advance(cur, next CallStatus) CallStatus {
	if !next.Valid() {
		return cur
	}
	if cur == "" {
		return next
	}
	if cur.IsTerminal() {
		return cur
	}
	if next.rank() < cur.rank() {
		return cur
	}
	return next
}

// FromProvider maps a provider CallStatus / DialCallStatus value onto CallStatus.
// The second return is false for values this system does not track.
func FromProvider(s string) (CallStatus, bool) {
	switch s {
	case "queued", "initiated":
		return CallStatusInitiated, true
	case "ringing":
		return CallStatusRinging, true
	case "in-progress", "answered":
		return CallStatusInProgress, true
	case "completed":
		return CallStatusCompleted, true
	case "no-answer":
		return CallStatusNoAnswer, true
	case "busy":
		return CallStatusBusy, true
	case "failed":
		return CallStatusFailed, true
	case "canceled":
		return CallStatusCanceled, true
	default:
		return "", false
	}
}
