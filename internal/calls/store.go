package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Patch is a partial update. Nil fields are left as stored.
type Patch struct {
	OrgID      *string
	Direction  *Direction
	From       *string
	To         *string
	CallerName *string

	Status *CallStatus

	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int

	DepartmentID   *string
	AgentID        *string
	AgentLegID     *string
	CursorSnapshot *int
	ConferenceRoom *string

	RecordingURL  *string
	VoicemailURL  *string
	Transcription *string
}

// IsZero reports whether the patch carries no field.
func (p Patch) IsZero() bool {
	return p == Patch{}
}

// Store persists calls.
//
// Implementations must apply Upsert as a single atomic operation: present
// fields are last-write-wins, Status goes through Advance. Callers must not
// rely on a Get followed by Upsert being atomic.
type Store interface {
	Upsert(ctx context.Context, providerCallID string, p Patch) (Call, error)
	Get(ctx context.Context, providerCallID string) (Call, error)
	FindOpenByCounterparty(ctx context.Context, orgID, phone string) (Call, error)
	List(ctx context.Context, orgID string, from, to time.Time) ([]Call, error)
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }

// apply merges p into c in memory using the same rules the SQL store uses.
func apply(c Call, p Patch) Call {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(&c.OrgID, p.OrgID)
	if p.Direction != nil {
		c.Direction = *p.Direction
	}
	setStr(&c.From, p.From)
	setStr(&c.To, p.To)
	setStr(&c.CallerName, p.CallerName)
	if p.Status != nil {
		c.Status = Advance(c.Status, *p.Status)
	}
	if p.StartedAt != nil {
		c.StartedAt = *p.StartedAt
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		c.EndedAt = &t
	}
	if p.DurationSeconds != nil {
		c.DurationSeconds = *p.DurationSeconds
	}
	setStr(&c.DepartmentID, p.DepartmentID)
	setStr(&c.AgentID, p.AgentID)
	setStr(&c.AgentLegID, p.AgentLegID)
	if p.CursorSnapshot != nil {
		c.CursorSnapshot = *p.CursorSnapshot
	}
	setStr(&c.ConferenceRoom, p.ConferenceRoom)
	setStr(&c.RecordingURL, p.RecordingURL)
	setStr(&c.VoicemailURL, p.VoicemailURL)
	setStr(&c.Transcription, p.Transcription)
	return c
}
