package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call-log metrics.
// Org isolation: OrgID is required.
type CallsSummaryRequest struct {
	OrgID        string    `json:"org_id"`
	Range        TimeRange `json:"range"`
	DepartmentID string    `json:"department_id,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
}

type CallsSummary struct {
	OrgID        string    `json:"org_id"`
	Range        TimeRange `json:"range"`
	DepartmentID string    `json:"department_id,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`

	TotalCalls    int `json:"total_calls"`
	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`

	CompletedCalls   int `json:"completed_calls"`
	TransferredCalls int `json:"transferred_calls"`
	VoicemailCalls   int `json:"voicemail_calls"`
	NoAnswerCalls    int `json:"no_answer_calls"`
	BusyCalls        int `json:"busy_calls"`
	FailedCalls      int `json:"failed_calls"`
	CanceledCalls    int `json:"canceled_calls"`
	ActiveCalls      int `json:"active_calls"`

	// AnsweredCalls are calls an agent picked up.
	AnsweredCalls int     `json:"answered_calls"`
	AnswerRate    float64 `json:"answer_rate"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`

	ByDepartment map[string]int `json:"by_department,omitempty"`
	ByAgent      map[string]int `json:"by_agent,omitempty"`
}
