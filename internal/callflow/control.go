package callflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"callrouter/internal/calls"
	"callrouter/internal/directory"
	"callrouter/internal/events"
	"callrouter/internal/routing"
	"callrouter/pkg/logger"

	"github.com/google/uuid"
)

// Actor identifies the authenticated agent behind an API request.
type Actor struct {
	OrgID  string
	UserID string
	Role   string
}

// Call returns a call scoped to the actor's org.
func (s *Service) Call(ctx context.Context, a Actor, callID string) (calls.Call, error) {
	c, err := s.Calls.Get(ctx, callID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			return calls.Call{}, ErrCallNotFound
		}
		return calls.Call{}, err
	}
	if c.OrgID != a.OrgID {
		return calls.Call{}, ErrCallNotFound
	}
	return c, nil
}

type OutboundRequest struct {
	AgentID string
	To      string
}

// StartOutbound places a click-to-call: the provider rings the agent first and,
// once answered, dials the customer. At most one open call per counterparty.
func (s *Service) StartOutbound(ctx context.Context, a Actor, req OutboundRequest) (calls.Call, error) {
	to := strings.TrimSpace(req.To)
	if a.OrgID == "" || req.AgentID == "" || to == "" {
		return calls.Call{}, fmt.Errorf("%w: org, agent and destination required", ErrInvalidArgument)
	}
	if s.Control == nil {
		return calls.Call{}, errors.New("callflow: call control not configured")
	}

	if open, err := s.Calls.FindOpenByCounterparty(ctx, a.OrgID, to); err == nil {
		return open, ErrCallActive
	} else if !errors.Is(err, calls.ErrNotFound) {
		return calls.Call{}, fmt.Errorf("callflow: find open call: %w", err)
	}

	agent, err := s.Directory.Agent(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return calls.Call{}, fmt.Errorf("%w: unknown agent", ErrInvalidArgument)
		}
		return calls.Call{}, err
	}
	if agent.OrgID != a.OrgID {
		return calls.Call{}, fmt.Errorf("%w: unknown agent", ErrInvalidArgument)
	}

	sid, err := s.Control.StartCall(ctx, StartCallParams{
		To:             agent.Number,
		From:           s.Engine.Policy.CallerID,
		URL:            s.Engine.Links.Outbound(to),
		StatusCallback: s.Engine.Links.CallStatus(),
		Timeout:        s.Engine.Policy.RingTimeout,
	})
	if err != nil {
		return calls.Call{}, fmt.Errorf("callflow: start call: %w", err)
	}

	c, err := s.Calls.Upsert(ctx, sid, calls.Patch{
		OrgID:        calls.Ptr(a.OrgID),
		Direction:    calls.Ptr(calls.DirectionOutbound),
		From:         calls.Ptr(s.Engine.Policy.CallerID),
		To:           calls.Ptr(to),
		Status:       calls.Ptr(calls.CallStatusInitiated),
		StartedAt:    calls.Ptr(s.now().UTC()),
		AgentID:      calls.Ptr(agent.ID),
		DepartmentID: calls.Ptr(agent.DepartmentID),
	})
	if err != nil {
		return calls.Call{}, fmt.Errorf("callflow: store outbound call: %w", err)
	}

	if s.Audit != nil {
		if err := s.Audit.LogOutboundCall(ctx, a.OrgID, a.UserID, a.Role, sid, agent.ID); err != nil {
			logger.From(ctx).Warn("audit append failed", "err", err)
		}
	}
	s.publish(ctx, events.New(events.TypeCallOutbound, a.OrgID, sid, map[string]string{"agent_id": agent.ID}))
	return c, nil
}

type TransferMode string

const (
	TransferWarm  TransferMode = "warm"
	TransferBlind TransferMode = "blind"
)

type TransferRequest struct {
	CallID        string
	TargetAgentID string
	Mode          TransferMode
}

// Transfer moves a live call to another agent.
//
// Warm: the caller and current agent are moved into a fresh conference and
// the target gets a side call that must press 1 to join. Blind: the caller leg
// is redirected straight to the target.
func (s *Service) Transfer(ctx context.Context, a Actor, req TransferRequest) (calls.Call, error) {
	if req.Mode == "" {
		req.Mode = TransferWarm
	}
	if req.Mode != TransferWarm && req.Mode != TransferBlind {
		return calls.Call{}, fmt.Errorf("%w: mode must be warm or blind", ErrInvalidArgument)
	}
	if req.CallID == "" || req.TargetAgentID == "" {
		return calls.Call{}, fmt.Errorf("%w: call and target agent required", ErrInvalidArgument)
	}
	if s.Control == nil {
		return calls.Call{}, errors.New("callflow: call control not configured")
	}

	call, err := s.Call(ctx, a, req.CallID)
	if err != nil {
		return calls.Call{}, err
	}
	if call.Status != calls.CallStatusInProgress && call.Status != calls.CallStatusTransferred {
		return calls.Call{}, fmt.Errorf("%w: status %s", ErrNotTransferable, call.Status)
	}

	target, err := s.Directory.Agent(ctx, req.TargetAgentID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return calls.Call{}, fmt.Errorf("%w: unknown agent", ErrInvalidArgument)
		}
		return calls.Call{}, err
	}
	if target.OrgID != a.OrgID {
		return calls.Call{}, fmt.Errorf("%w: unknown agent", ErrInvalidArgument)
	}
	if !target.IsAvailable {
		return calls.Call{}, ErrAgentUnavailable
	}
	if target.ID == call.AgentID {
		return calls.Call{}, fmt.Errorf("%w: call is already with this agent", ErrInvalidArgument)
	}

	var room string
	switch req.Mode {
	case TransferBlind:
		d := s.Engine.BlindTransfer(target)
		if err := s.Control.RedirectCall(ctx, call.ProviderCallID, d.Verbs); err != nil {
			return calls.Call{}, fmt.Errorf("callflow: redirect caller: %w", err)
		}
		if call, err = s.Calls.Upsert(ctx, call.ProviderCallID, d.Patch); err != nil {
			return calls.Call{}, err
		}
	case TransferWarm:
		room = "xfer-" + uuid.NewString()
		// The room is stored first so the caller's Dial callback parks it
		// instead of hanging up once its agent leg is moved.
		if call, err = s.Calls.Upsert(ctx, call.ProviderCallID, calls.Patch{ConferenceRoom: calls.Ptr(room)}); err != nil {
			return calls.Call{}, err
		}
		if call.AgentLegID != "" {
			if err := s.Control.RedirectCall(ctx, call.AgentLegID, s.Engine.Park(room, routing.ParkAgent)); err != nil {
				return calls.Call{}, fmt.Errorf("callflow: park agent: %w", err)
			}
		}
		if err := s.Control.RedirectCall(ctx, call.ProviderCallID, s.Engine.Park(room, routing.ParkCaller)); err != nil {
			return calls.Call{}, fmt.Errorf("callflow: park caller: %w", err)
		}
		if _, err := s.Control.StartCall(ctx, StartCallParams{
			To:             target.Number,
			From:           s.Engine.Policy.CallerID,
			URL:            s.Engine.Links.AcceptTransfer(room, call.ProviderCallID, target.ID),
			StatusCallback: s.Engine.Links.TransferEvent(room, call.ProviderCallID, target.ID, routing.TransferEventStatus),
			Timeout:        s.Engine.Policy.RingTimeout,
		}); err != nil {
			return calls.Call{}, fmt.Errorf("callflow: dial transfer target: %w", err)
		}
	}

	if s.Audit != nil {
		if err := s.Audit.LogTransfer(ctx, a.OrgID, a.UserID, a.Role, call.ProviderCallID, target.ID, string(req.Mode), room); err != nil {
			logger.From(ctx).Warn("audit append failed", "err", err)
		}
	}
	logger.From(ctx).Info("transfer started", "call_id", call.ProviderCallID, "mode", req.Mode, "target_agent_id", target.ID)
	return call, nil
}
