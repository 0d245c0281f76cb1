package routing

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Webhook paths, relative to the public base URL.
const (
	PathVoice          = "/webhooks/twilio/voice"
	PathMenu           = "/webhooks/twilio/menu"
	PathExtension      = "/webhooks/twilio/extension"
	PathHold           = "/webhooks/twilio/hold"
	PathAgentConnect   = "/webhooks/twilio/agent-connect"
	PathCallComplete   = "/webhooks/twilio/call-complete"
	PathAcceptTransfer = "/webhooks/twilio/accept-transfer"
	PathCallStatus     = "/webhooks/twilio/call-status"
	PathVoicemail      = "/webhooks/twilio/voicemail"
	PathTranscription  = "/webhooks/twilio/transcription"
	PathOutbound       = "/webhooks/twilio/outbound-connect"
	PathSMS            = "/webhooks/twilio/sms"
)

// Query parameter names carried between webhook invocations.
const (
	ParamDepartment = "deptId"
	ParamWait       = "wait"
	ParamHeld       = "held"
	ParamTried      = "tried"
	ParamAgent      = "agentId"
	ParamCallSid    = "callSid"
	ParamRoom       = "room"
	ParamAttempt    = "attempt"
	ParamTo         = "to"
	ParamEvent      = "event"
)

// Transfer side-call events posted back to the accept-transfer webhook.
const (
	TransferEventDeclined = "declined"
	TransferEventStatus   = "status"
)

// Links builds absolute callback URLs. All state that must survive between
// webhook invocations is encoded in their query strings.
type Links struct {
	Base string
}

func (l Links) build(path string, q url.Values) string {
	u := strings.TrimRight(l.Base, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (l Links) Menu(attempt int) string {
	return l.build(PathMenu, url.Values{ParamAttempt: {strconv.Itoa(attempt)}})
}

func (l Links) Extension(attempt int) string {
	return l.build(PathExtension, url.Values{ParamAttempt: {strconv.Itoa(attempt)}})
}

func (l Links) Hold(departmentID string, s QueueState) string {
	return l.build(PathHold, s.values(departmentID))
}

func (l Links) CallComplete(departmentID string, s QueueState) string {
	return l.build(PathCallComplete, s.values(departmentID))
}

func (l Links) AgentConnect(agentID string) string {
	return l.build(PathAgentConnect, url.Values{ParamAgent: {agentID}})
}

func (l Links) AcceptTransfer(room, callSid, agentID string) string {
	return l.build(PathAcceptTransfer, url.Values{
		ParamRoom:    {room},
		ParamCallSid: {callSid},
		ParamAgent:   {agentID},
	})
}

// TransferEvent is the accept-transfer url tagged with a side-call event.
func (l Links) TransferEvent(room, callSid, agentID, event string) string {
	return l.build(PathAcceptTransfer, url.Values{
		ParamRoom:    {room},
		ParamCallSid: {callSid},
		ParamAgent:   {agentID},
		ParamEvent:   {event},
	})
}

func (l Links) Voicemail(departmentID string) string {
	q := url.Values{}
	if departmentID != "" {
		q.Set(ParamDepartment, departmentID)
	}
	return l.build(PathVoicemail, q)
}

func (l Links) Transcription() string { return l.build(PathTranscription, nil) }

func (l Links) CallStatus() string { return l.build(PathCallStatus, nil) }

func (l Links) Outbound(to string) string {
	return l.build(PathOutbound, url.Values{ParamTo: {to}})
}

// QueueState is the transient per-call queue position: seconds already spent
// on hold and the agents already rung. HoldStarted is the unix time the
// current hold slice began; zero when the caller is not coming back from hold.
type QueueState struct {
	WaitSeconds int
	HoldStarted int64
	Tried       []string
}

// Settle folds the hold slice that started at HoldStarted into WaitSeconds.
// The clock, not the slice length, decides how long the caller held.
func (s QueueState) Settle(now time.Time) QueueState {
	if s.HoldStarted > 0 {
		if d := now.Unix() - s.HoldStarted; d > 0 {
			s.WaitSeconds += int(d)
		}
		s.HoldStarted = 0
	}
	return s
}

func (s QueueState) values(departmentID string) url.Values {
	q := url.Values{
		ParamDepartment: {departmentID},
		ParamWait:       {strconv.Itoa(s.WaitSeconds)},
	}
	if s.HoldStarted > 0 {
		q.Set(ParamHeld, strconv.FormatInt(s.HoldStarted, 10))
	}
	if len(s.Tried) > 0 {
		q.Set(ParamTried, strings.Join(s.Tried, ","))
	}
	return q
}

// HasTried reports whether agentID was already rung on this call.
func (s QueueState) HasTried(agentID string) bool {
	for _, id := range s.Tried {
		if id == agentID {
			return true
		}
	}
	return false
}

// With returns a copy of s with agentID added to the tried set. The copy is
// never mid-hold.
func (s QueueState) With(agentID string) QueueState {
	if s.HasTried(agentID) {
		s.HoldStarted = 0
		return s
	}
	tried := make([]string, 0, len(s.Tried)+1)
	tried = append(tried, s.Tried...)
	tried = append(tried, agentID)
	sort.Strings(tried)
	return QueueState{WaitSeconds: s.WaitSeconds, Tried: tried}
}

// ParseQueueState reads the wait, held and tried parameters. Malformed or
// negative values collapse to the zero state.
func ParseQueueState(q url.Values) QueueState {
	var s QueueState
	if n, err := strconv.Atoi(q.Get(ParamWait)); err == nil && n > 0 {
		s.WaitSeconds = n
	}
	for _, id := range strings.Split(q.Get(ParamTried), ",") {
		if id = strings.TrimSpace(id); id != "" {
			s = s.With(id)
		}
	}
	if n, err := strconv.ParseInt(q.Get(ParamHeld), 10, 64); err == nil && n > 0 {
		s.HoldStarted = n
	}
	return s
}

// ParseAttempt reads the attempt parameter; anything malformed is zero.
func ParseAttempt(q url.Values) int {
	n, err := strconv.Atoi(q.Get(ParamAttempt))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
