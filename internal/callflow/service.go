package callflow

import (
	"context"
	"errors"
	"time"

	"callrouter/internal/calls"
	"callrouter/internal/directory"
	"callrouter/internal/events"
	"callrouter/internal/inbox"
	"callrouter/internal/routing"
	"callrouter/pkg/logger"
)

var (
	ErrInvalidArgument  = errors.New("callflow: invalid argument")
	ErrCallActive       = errors.New("callflow: call already active with counterparty")
	ErrCallNotFound     = errors.New("callflow: call not found")
	ErrAgentUnavailable = errors.New("callflow: agent unavailable")
	ErrNotTransferable  = errors.New("callflow: call cannot be transferred")
)

// maxCursorRetries bounds compare-and-set attempts on a contended cursor.
const maxCursorRetries = 3

// CallControl is the provider REST surface used to originate and redirect legs.
type CallControl interface {
	StartCall(ctx context.Context, p StartCallParams) (providerCallID string, err error)
	RedirectCall(ctx context.Context, providerCallID string, verbs []routing.Verb) error
}

type StartCallParams struct {
	To             string
	From           string
	URL            string
	StatusCallback string
	Timeout        time.Duration
}

// Bridge is the Conversation Bridge write API.
type Bridge interface {
	RecordSMS(ctx context.Context, in inbox.SMS) (inbox.Message, error)
	RecordVoicemail(ctx context.Context, in inbox.Voicemail) (inbox.Message, error)
	RecordCall(ctx context.Context, in inbox.CallRecord) (inbox.Message, error)
	AttachTranscription(ctx context.Context, orgID, phone, callSid, text string) (inbox.Message, error)
}

// Auditor is the subset of audit.Service used here. Audit failures never
// change a routing outcome.
type Auditor interface {
	LogTransfer(ctx context.Context, orgID, actorUserID, actorRole, callID, targetAgentID, mode, room string) error
	LogOutboundCall(ctx context.Context, orgID, actorUserID, actorRole, callID, agentID string) error
	LogVoicemail(ctx context.Context, orgID, callID, departmentID string) error
	LogFallback(ctx context.Context, orgID, callID, step, reason string) error
}

// Service runs each webhook as load state → decide → mutate state → verbs.
//
// It never returns an error to a webhook caller: every failure degrades to
// voicemail or a polite hangup and is logged.
type Service struct {
	Calls     calls.Store
	Directory directory.Directory
	Cursors   directory.CursorStore
	Engine    *routing.Engine
	Bridge    Bridge
	Audit     Auditor
	Events    events.Publisher
	Control   CallControl

	// LookupTimeout bounds every directory/cursor read made while a caller waits.
	LookupTimeout time.Duration

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) lookupCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.LookupTimeout
	if d <= 0 {
		d = 300 * time.Millisecond
	}
	return context.WithTimeout(ctx, d)
}

// lookup runs fn under the lookup timeout.
func lookup[T any](ctx context.Context, s *Service, fn func(context.Context) (T, error)) (T, error) {
	lctx, cancel := s.lookupCtx(ctx)
	defer cancel()
	return fn(lctx)
}

func (s *Service) upsert(ctx context.Context, callID string, p calls.Patch) (calls.Call, bool) {
	if p.IsZero() || callID == "" {
		return calls.Call{}, false
	}
	c, err := s.Calls.Upsert(ctx, callID, p)
	if err != nil {
		logger.From(ctx).Error("call upsert failed", "call_id", callID, "err", err)
		return calls.Call{}, false
	}
	return c, true
}

// update patches a call this service already knows. Callbacks for unknown
// calls never create rows.
func (s *Service) update(ctx context.Context, callID string, p calls.Patch) (calls.Call, bool) {
	if _, err := s.loadCall(ctx, callID); err != nil {
		logger.From(ctx).Warn("callback for unknown call", "call_id", callID, "err", err)
		return calls.Call{}, false
	}
	return s.upsert(ctx, callID, p)
}

func (s *Service) fallback(ctx context.Context, orgID, callID, step string, err error) {
	log := logger.From(ctx)
	if errors.Is(err, directory.ErrNotFound) || errors.Is(err, calls.ErrNotFound) {
		log.Warn("routing configuration missing", "step", step, "call_id", callID, "org_id", orgID, "err", err)
	} else {
		log.Error("routing dependency failed", "step", step, "call_id", callID, "org_id", orgID, "err", err)
	}
	if orgID != "" {
		s.audit(ctx, func(ctx context.Context, a Auditor) error {
			return a.LogFallback(ctx, orgID, callID, step, err.Error())
		})
	}
}

// audit appends under the lookup timeout so a slow audit table never holds
// up a live call. Failures are logged only.
func (s *Service) audit(ctx context.Context, fn func(context.Context, Auditor) error) {
	if s.Audit == nil {
		return
	}
	actx, cancel := s.lookupCtx(ctx)
	defer cancel()
	if err := fn(actx, s.Audit); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		logger.From(ctx).Warn("event publish failed", "type", e.Type, "call_id", e.CallID, "err", err)
	}
}

// voicemail is the all-agents-busy fallback.
func (s *Service) voicemail(departmentID string) []routing.Verb {
	return s.Engine.Voicemail(departmentID).Verbs
}

// Inbound answers the first voice webhook for a call.
func (s *Service) Inbound(ctx context.Context, in routing.InboundCall) []routing.Verb {
	num, err := lookup(ctx, s, func(ctx context.Context) (directory.PhoneNumber, error) {
		return s.Directory.ResolveNumber(ctx, in.To)
	})
	if err != nil {
		s.fallback(ctx, "", in.CallSid, "resolve_number", err)
		return s.voicemail("")
	}

	var depts []directory.Department
	if num.DepartmentID == "" {
		depts, err = lookup(ctx, s, func(ctx context.Context) ([]directory.Department, error) {
			return s.Directory.Departments(ctx, num.OrgID)
		})
		if err != nil {
			s.fallback(ctx, num.OrgID, in.CallSid, "departments", err)
			d := s.Engine.Inbound(in, num, nil)
			s.upsert(ctx, in.CallSid, d.Patch)
			return d.Verbs
		}
	}

	d := s.Engine.Inbound(in, num, depts)
	p := d.Patch
	p.StartedAt = calls.Ptr(s.now().UTC())
	s.upsert(ctx, in.CallSid, p)
	logger.From(ctx).Info("inbound call", "call_id", in.CallSid, "org_id", num.OrgID, "reason", d.Reason)
	return d.Verbs
}

func (s *Service) loadCall(ctx context.Context, callID string) (calls.Call, error) {
	return lookup(ctx, s, func(ctx context.Context) (calls.Call, error) {
		return s.Calls.Get(ctx, callID)
	})
}

func (s *Service) departments(ctx context.Context, orgID string) ([]directory.Department, error) {
	return lookup(ctx, s, func(ctx context.Context) ([]directory.Department, error) {
		return s.Directory.Departments(ctx, orgID)
	})
}

// Menu handles the department-menu digit press.
func (s *Service) Menu(ctx context.Context, callID, digits string, attempt int) []routing.Verb {
	call, err := s.loadCall(ctx, callID)
	if err != nil {
		s.fallback(ctx, "", callID, "menu_load_call", err)
		return s.voicemail("")
	}
	depts, err := s.departments(ctx, call.OrgID)
	if err != nil {
		s.fallback(ctx, call.OrgID, callID, "menu_departments", err)
		return s.voicemail("")
	}
	d := s.Engine.Menu(digits, attempt, depts)
	s.upsert(ctx, callID, d.Patch)
	return d.Verbs
}

// Extension handles the digits entered after "*".
func (s *Service) Extension(ctx context.Context, callID, digits string, attempt int) []routing.Verb {
	call, err := s.loadCall(ctx, callID)
	if err != nil {
		s.fallback(ctx, "", callID, "extension_load_call", err)
		return s.voicemail("")
	}

	// Anything but three digits, including a timed-out prompt, is an unknown
	// extension and never reaches the directory.
	var agent *directory.Agent
	if routing.ValidExtension(digits) {
		a, err := lookup(ctx, s, func(ctx context.Context) (directory.Agent, error) {
			return s.Directory.AgentByExtension(ctx, call.OrgID, digits)
		})
		switch {
		case err == nil:
			agent = &a
		case errors.Is(err, directory.ErrNotFound):
		default:
			s.fallback(ctx, call.OrgID, callID, "extension_lookup", err)
			return s.voicemail("")
		}
	}

	var depts []directory.Department
	if agent == nil {
		depts, err = s.departments(ctx, call.OrgID)
		if err != nil {
			s.fallback(ctx, call.OrgID, callID, "extension_departments", err)
			return s.voicemail("")
		}
	}
	d := s.Engine.Extension(agent, attempt, depts)
	s.upsert(ctx, callID, d.Patch)
	return d.Verbs
}

type queueDecider func(dept directory.Department, agents []directory.Agent, cursor int) routing.Decision

// Hold runs one hold-loop step for a caller waiting on a department.
func (s *Service) Hold(ctx context.Context, callID, departmentID string, state routing.QueueState) []routing.Verb {
	return s.queue(ctx, callID, departmentID, func(dept directory.Department, agents []directory.Agent, cursor int) routing.Decision {
		return s.Engine.Queue(dept, agents, cursor, state, s.now())
	})
}

// CallComplete handles the Dial action callback after an agent ring attempt.
func (s *Service) CallComplete(ctx context.Context, callID, departmentID, dialStatus string, state routing.QueueState) []routing.Verb {
	// A warm transfer moves the caller out of the Dial, which ends it as
	// completed. Keep the caller in the conference.
	if call, err := s.loadCall(ctx, callID); err == nil && call.ConferenceRoom != "" && !call.Status.IsTerminal() {
		return s.Engine.Park(call.ConferenceRoom, routing.ParkCaller)
	}
	return s.queue(ctx, callID, departmentID, func(dept directory.Department, agents []directory.Agent, cursor int) routing.Decision {
		return s.Engine.DialResult(dialStatus, dept, agents, cursor, state)
	})
}

func (s *Service) queue(ctx context.Context, callID, departmentID string, decide queueDecider) []routing.Verb {
	log := logger.From(ctx)

	dept, err := lookup(ctx, s, func(ctx context.Context) (directory.Department, error) {
		return s.Directory.Department(ctx, departmentID)
	})
	if err != nil {
		s.fallback(ctx, "", callID, "queue_department", err)
		return s.voicemail("")
	}
	agents, err := lookup(ctx, s, func(ctx context.Context) ([]directory.Agent, error) {
		return s.Directory.AgentsByDepartment(ctx, dept.ID)
	})
	if err != nil {
		s.fallback(ctx, dept.OrgID, callID, "queue_agents", err)
		return s.voicemail(dept.ID)
	}

	cursorOK := true
	cursor, err := lookup(ctx, s, func(ctx context.Context) (int, error) {
		return s.Cursors.Cursor(ctx, dept.ID)
	})
	if err != nil {
		// Ring from the start of the rotation rather than drop the caller.
		log.Warn("cursor read failed", "department_id", dept.ID, "err", err)
		cursor, cursorOK = 0, false
	}

	d := decide(dept, agents, cursor)
	for i := 0; d.Cursor != nil && cursorOK && i < maxCursorRetries; i++ {
		ok, err := lookup(ctx, s, func(ctx context.Context) (bool, error) {
			return s.Cursors.CompareAndSet(ctx, d.Cursor.DepartmentID, d.Cursor.From, d.Cursor.To)
		})
		if err != nil {
			log.Warn("cursor advance failed", "department_id", dept.ID, "err", err)
			break
		}
		if ok {
			break
		}
		// Another call claimed this turn; decide again from the new cursor.
		cursor, err = lookup(ctx, s, func(ctx context.Context) (int, error) {
			return s.Cursors.Cursor(ctx, dept.ID)
		})
		if err != nil {
			log.Warn("cursor reload failed", "department_id", dept.ID, "err", err)
			break
		}
		d = decide(dept, agents, cursor)
		if i == maxCursorRetries-1 && d.Cursor != nil {
			log.Warn("cursor contended, ringing without claim", "department_id", dept.ID)
		}
	}

	s.upsert(ctx, callID, d.Patch)
	log.Debug("queue decision", "call_id", callID, "department_id", dept.ID, "reason", d.Reason)
	return d.Verbs
}

// AgentConnect whispers to the agent leg that answered a ring attempt.
func (s *Service) AgentConnect(ctx context.Context, callID, agentID, agentLegID string) []routing.Verb {
	call, err := s.loadCall(ctx, callID)
	if err != nil {
		logger.From(ctx).Warn("agent connect for unknown call", "call_id", callID, "err", err)
		call = calls.Call{ProviderCallID: callID}
	}
	agent, err := lookup(ctx, s, func(ctx context.Context) (directory.Agent, error) {
		return s.Directory.Agent(ctx, agentID)
	})
	if err != nil {
		logger.From(ctx).Warn("agent connect for unknown agent", "agent_id", agentID, "err", err)
		agent = directory.Agent{ID: agentID}
	}
	d := s.Engine.AgentConnected(call, agent, agentLegID)
	if call.OrgID != "" {
		s.upsert(ctx, callID, d.Patch)
	}
	return d.Verbs
}

// AcceptTransfer serves the target agent's side call: the prompt when no
// digits were pressed yet, else the accept/decline outcome.
func (s *Service) AcceptTransfer(ctx context.Context, room, callID, agentID, digits string, hasDigits bool) []routing.Verb {
	if !hasDigits {
		return s.Engine.TransferPrompt(room, callID, agentID).Verbs
	}
	d := s.Engine.TransferAnswer(digits, room, agentID)
	logger.From(ctx).Info("transfer answered", "call_id", callID, "room", room, "reason", d.Reason)
	if d.Patch.IsZero() {
		s.handBack(ctx, room, callID)
		return d.Verbs
	}
	if c, ok := s.update(ctx, callID, d.Patch); ok {
		s.publish(ctx, events.New(events.TypeCallTransferred, c.OrgID, callID, map[string]string{
			"agent_id": agentID,
			"room":     room,
		}))
	}
	return d.Verbs
}

// TransferSideCallStatus handles the final status of the side call to a
// transfer target. A side call that never connected hands the conference
// back to the original agent.
func (s *Service) TransferSideCallStatus(ctx context.Context, room, callID, callStatus string) {
	switch callStatus {
	case "busy", "no-answer", "failed", "canceled":
		logger.From(ctx).Info("transfer target unreachable", "call_id", callID, "room", room, "status", callStatus)
		s.handBack(ctx, room, callID)
	}
}

// handBack rejoins the original agent leg so that it ends the conference
// when it leaves.
func (s *Service) handBack(ctx context.Context, room, callID string) {
	log := logger.From(ctx)
	call, err := s.loadCall(ctx, callID)
	if err != nil {
		log.Warn("transfer hand back for unknown call", "call_id", callID, "err", err)
		return
	}
	if call.ConferenceRoom != room || call.AgentLegID == "" || call.Status.IsTerminal() || s.Control == nil {
		return
	}
	if err := s.Control.RedirectCall(ctx, call.AgentLegID, s.Engine.Park(room, routing.ParkHandback)); err != nil {
		log.Error("transfer hand back failed", "call_id", callID, "agent_leg_id", call.AgentLegID, "err", err)
	}
}

// OutboundConnect bridges an answered agent leg to the customer.
func (s *Service) OutboundConnect(ctx context.Context, callID, to string) []routing.Verb {
	if to == "" {
		return s.Engine.Apology()
	}
	d := s.Engine.OutboundConnect(to)
	s.upsert(ctx, callID, d.Patch)
	return d.Verbs
}

// StatusInput is a provider status callback.
type StatusInput struct {
	CallID       string
	CallStatus   string
	Duration     string
	RecordingURL string
}

// Status reconciles a provider status callback. Callbacks for calls this
// service never saw are ignored.
func (s *Service) Status(ctx context.Context, in StatusInput) {
	log := logger.From(ctx)

	before, err := s.loadCall(ctx, in.CallID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			log.Debug("status for unknown call", "call_id", in.CallID, "status", in.CallStatus)
			return
		}
		log.Error("call load failed", "call_id", in.CallID, "err", err)
		return
	}

	p := s.Engine.Status(routing.StatusEvent{
		CallStatus:   in.CallStatus,
		Duration:     in.Duration,
		RecordingURL: in.RecordingURL,
		At:           s.now(),
	})
	if before.EndedAt != nil {
		p.EndedAt = nil
	}
	after, ok := s.upsert(ctx, in.CallID, p)
	if !ok || before.Status.IsTerminal() || !after.Status.IsTerminal() {
		return
	}
	if after.Status == calls.CallStatusVoicemail {
		return
	}

	dir := inbox.DirectionInbound
	answered := after.AgentID != ""
	if after.Direction == calls.DirectionOutbound {
		dir = inbox.DirectionOutbound
		answered = after.Status == calls.CallStatusCompleted && after.DurationSeconds > 0
	}
	if s.Bridge != nil {
		if _, err := s.Bridge.RecordCall(ctx, inbox.CallRecord{
			OrgID:           after.OrgID,
			Phone:           after.Counterparty(),
			ContactName:     after.CallerName,
			CallSid:         after.ProviderCallID,
			Direction:       dir,
			Answered:        answered,
			DurationSeconds: after.DurationSeconds,
		}); err != nil {
			log.Error("bridge record call failed", "call_id", in.CallID, "err", err)
		}
	}
	s.publish(ctx, events.New(events.TypeCallCompleted, after.OrgID, after.ProviderCallID, map[string]string{
		"status":   string(after.Status),
		"agent_id": after.AgentID,
	}))
}

// VoicemailInput is the Record action callback.
type VoicemailInput struct {
	CallID       string
	DepartmentID string
	RecordingURL string
	Duration     int
}

// Voicemail finalizes a recorded voicemail and hands it to the bridge.
func (s *Service) Voicemail(ctx context.Context, in VoicemailInput) []routing.Verb {
	log := logger.From(ctx)

	d := s.Engine.VoicemailSaved(in.RecordingURL)
	if d.Patch.IsZero() {
		return d.Verbs
	}
	if in.DepartmentID != "" {
		d.Patch.DepartmentID = calls.Ptr(in.DepartmentID)
	}
	call, ok := s.update(ctx, in.CallID, d.Patch)
	if !ok {
		return d.Verbs
	}

	if s.Bridge != nil {
		if _, err := s.Bridge.RecordVoicemail(ctx, inbox.Voicemail{
			OrgID:           call.OrgID,
			Phone:           call.Counterparty(),
			ContactName:     call.CallerName,
			CallSid:         call.ProviderCallID,
			RecordingURL:    in.RecordingURL,
			DurationSeconds: in.Duration,
		}); err != nil {
			log.Error("bridge record voicemail failed", "call_id", in.CallID, "err", err)
		}
	}
	s.audit(ctx, func(ctx context.Context, a Auditor) error {
		return a.LogVoicemail(ctx, call.OrgID, call.ProviderCallID, call.DepartmentID)
	})
	s.publish(ctx, events.New(events.TypeCallVoicemail, call.OrgID, call.ProviderCallID, map[string]string{
		"department_id": call.DepartmentID,
		"recording_url": in.RecordingURL,
	}))
	return d.Verbs
}

// Transcription stores the asynchronous voicemail transcription.
func (s *Service) Transcription(ctx context.Context, callID, status, text string) {
	log := logger.From(ctx)
	if status != "" && status != "completed" {
		log.Info("transcription not completed", "call_id", callID, "status", status)
		return
	}
	call, ok := s.update(ctx, callID, calls.Patch{Transcription: calls.Ptr(text)})
	if !ok || s.Bridge == nil {
		return
	}
	if _, err := s.Bridge.AttachTranscription(ctx, call.OrgID, call.Counterparty(), callID, text); err != nil {
		log.Error("bridge attach transcription failed", "call_id", callID, "err", err)
	}
}

// SMSInput is an inbound SMS webhook.
type SMSInput struct {
	MessageSid string
	From       string
	To         string
	Body       string
	MediaURLs  []string
}

// SMS feeds an inbound text into the inbox. No routing state is involved.
func (s *Service) SMS(ctx context.Context, in SMSInput) {
	log := logger.From(ctx)
	num, err := lookup(ctx, s, func(ctx context.Context) (directory.PhoneNumber, error) {
		return s.Directory.ResolveNumber(ctx, in.To)
	})
	if err != nil {
		log.Warn("sms to unknown number", "to", in.To, "err", err)
		return
	}
	if s.Bridge == nil {
		return
	}
	m, err := s.Bridge.RecordSMS(ctx, inbox.SMS{
		OrgID:      num.OrgID,
		From:       in.From,
		Body:       in.Body,
		MediaURLs:  in.MediaURLs,
		MessageSid: in.MessageSid,
	})
	if err != nil {
		log.Error("bridge record sms failed", "message_sid", in.MessageSid, "err", err)
		return
	}
	s.publish(ctx, events.New(events.TypeSMSReceived, num.OrgID, "", map[string]string{
		"conversation_id": m.ConversationID,
		"message_sid":     in.MessageSid,
	}))
}
