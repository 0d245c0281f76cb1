package reporting

import (
	"context"
	"errors"
	"time"

	"callrouter/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// maxRange caps a single summary query.
const maxRange = 93 * 24 * time.Hour

// CallLog is the read side of the call state store.
//
// Implementations must enforce org filtering.
type CallLog interface {
	List(ctx context.Context, orgID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	log CallLog
}

func NewService(log CallLog) *Service { return &Service{log: log} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OrgID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > maxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.log == nil {
		return CallsSummary{}, errors.New("reporting: call log not configured")
	}

	rows, err := s.log.List(ctx, req.OrgID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		OrgID:        req.OrgID,
		Range:        req.Range,
		DepartmentID: req.DepartmentID,
		AgentID:      req.AgentID,
		ByDepartment: map[string]int{},
		ByAgent:      map[string]int{},
	}
	for _, c := range rows {
		if req.DepartmentID != "" && c.DepartmentID != req.DepartmentID {
			continue
		}
		if req.AgentID != "" && c.AgentID != req.AgentID {
			continue
		}

		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.Direction == calls.DirectionOutbound {
			out.OutboundCalls++
		} else {
			out.InboundCalls++
		}
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.AgentID != "" && c.Status != calls.CallStatusVoicemail {
			out.AnsweredCalls++
		}
		if c.DepartmentID != "" {
			out.ByDepartment[c.DepartmentID]++
		}
		if c.AgentID != "" {
			out.ByAgent[c.AgentID]++
		}

		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusTransferred:
			out.TransferredCalls++
		case calls.CallStatusVoicemail:
			out.VoicemailCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case calls.CallStatusBusy:
			out.BusyCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusCanceled:
			out.CanceledCalls++
		case calls.CallStatusInitiated, calls.CallStatusRinging, calls.CallStatusInProgress:
			out.ActiveCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.AnswerRate = float64(out.AnsweredCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
