package directory

import "time"

// Department is a routing target reachable from the IVR menu.
//
// Departments and agents are operator-managed reference data; this service
// only reads them (the round-robin cursor lives in CursorStore).
type Department struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`
	Name  string `json:"name" db:"name"`

	HoldMusicURL        string `json:"hold_music_url,omitempty" db:"hold_music_url"`
	MaxQueueWaitSeconds int    `json:"max_queue_wait_seconds" db:"max_queue_wait_seconds"`
	RingTimeoutSeconds  int    `json:"ring_timeout_seconds" db:"ring_timeout_seconds"`
	SortOrder           int    `json:"sort_order" db:"sort_order"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Agent is a human who can be rung for a department.
//
// Invariant: RoundRobinOrder is unique per department and is the only
// ordering key for picking the next agent to ring.
type Agent struct {
	ID           string `json:"id" db:"id"`
	OrgID        string `json:"org_id" db:"org_id"`
	DepartmentID string `json:"department_id" db:"department_id"`
	DisplayName  string `json:"display_name" db:"display_name"`

	// Number is an E.164 number or "client:<identity>" for a softphone.
	Number    string `json:"number" db:"number"`
	Extension string `json:"extension,omitempty" db:"extension"`

	IsAvailable     bool `json:"is_available" db:"is_available"`
	RoundRobinOrder int  `json:"round_robin_order" db:"round_robin_order"`
}

// PhoneNumber maps a dialed number to its owning org.
// When DepartmentID is set, callers skip the menu.
type PhoneNumber struct {
	Number       string `json:"number" db:"number"`
	OrgID        string `json:"org_id" db:"org_id"`
	DepartmentID string `json:"department_id,omitempty" db:"department_id"`
	Greeting     string `json:"greeting,omitempty" db:"greeting"`
}
