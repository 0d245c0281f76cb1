package routing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"callrouter/internal/calls"
	"callrouter/internal/directory"
)

// Policy holds the tunables of the routing engine.
type Policy struct {
	HoldSlice          time.Duration
	RingTimeout        time.Duration
	VoicemailMaxLength time.Duration
	// DefaultMaxWait applies to departments without a configured max wait.
	DefaultMaxWait time.Duration
	// CallerID is presented on legs the platform originates.
	CallerID string
}

func (p Policy) withDefaults() Policy {
	if p.HoldSlice <= 0 {
		p.HoldSlice = 30 * time.Second
	}
	if p.RingTimeout <= 0 {
		p.RingTimeout = 30 * time.Second
	}
	if p.VoicemailMaxLength <= 0 {
		p.VoicemailMaxLength = 120 * time.Second
	}
	if p.DefaultMaxWait <= 0 {
		p.DefaultMaxWait = 90 * time.Second
	}
	return p
}

// Engine turns (stored state, event, directory snapshot) into a Decision.
//
// Every method is a pure function: no I/O, no clock. Time and directory data
// are passed in by the caller.
type Engine struct {
	Links  Links
	Policy Policy
}

func NewEngine(publicBaseURL string, p Policy) *Engine {
	return &Engine{Links: Links{Base: publicBaseURL}, Policy: p.withDefaults()}
}

// InboundCall is the subset of the first voice webhook the engine needs.
type InboundCall struct {
	CallSid    string
	From       string
	To         string
	CallerName string
}

// Inbound answers a new call: a direct department route when the dialed number
// is bound to one, otherwise the department menu.
func (e *Engine) Inbound(in InboundCall, num directory.PhoneNumber, depts []directory.Department) Decision {
	patch := calls.Patch{
		OrgID:      calls.Ptr(num.OrgID),
		Direction:  calls.Ptr(calls.DirectionInbound),
		From:       calls.Ptr(in.From),
		To:         calls.Ptr(in.To),
		CallerName: calls.Ptr(in.CallerName),
		Status:     calls.Ptr(calls.CallStatusRinging),
	}

	var verbs []Verb
	if num.Greeting != "" {
		verbs = append(verbs, Say{Text: num.Greeting})
	}
	if num.DepartmentID != "" {
		patch.DepartmentID = calls.Ptr(num.DepartmentID)
		verbs = append(verbs, Redirect{URL: e.Links.Hold(num.DepartmentID, QueueState{})})
		return Decision{Verbs: verbs, Patch: patch, Reason: "direct_route"}
	}
	if len(depts) == 0 {
		d := e.Voicemail("")
		d.Verbs = append(verbs, d.Verbs...)
		d.Patch = patch
		d.Reason = "no_departments"
		return d
	}
	verbs = append(verbs, e.menu(depts, 0)...)
	return Decision{Verbs: verbs, Patch: patch, Reason: "menu"}
}

func (e *Engine) menu(depts []directory.Department, attempt int) []Verb {
	var b strings.Builder
	for i, d := range depts {
		if i >= 9 {
			break
		}
		fmt.Fprintf(&b, "For %s, press %d. ", d.Name, i+1)
	}
	b.WriteString("To reach an extension, press star.")
	return []Verb{
		Gather{
			NumDigits: 1,
			Action:    e.Links.Menu(attempt),
			Timeout:   5 * time.Second,
			Prompts:   []Verb{Say{Text: b.String()}},
		},
		// No input falls through to an empty submission.
		Redirect{URL: e.Links.Menu(attempt)},
	}
}

func (e *Engine) extensionPrompt(attempt int) []Verb {
	return []Verb{
		Gather{
			NumDigits: 3,
			Action:    e.Links.Extension(attempt),
			Timeout:   5 * time.Second,
			Prompts:   []Verb{Say{Text: "Please enter the three digit extension."}},
		},
		Redirect{URL: e.Links.Extension(attempt)},
	}
}

// Menu handles the department-menu digit press. attempt counts prior invalid
// inputs: the first invalid input replays the menu, the second falls through
// to the default department.
func (e *Engine) Menu(digits string, attempt int, depts []directory.Department) Decision {
	if len(depts) == 0 {
		d := e.Voicemail("")
		d.Reason = "no_departments"
		return d
	}
	if digits == "*" {
		return Decision{Verbs: e.extensionPrompt(0), Reason: "extension_prompt"}
	}
	if n, err := strconv.Atoi(digits); err == nil && n >= 1 && n <= len(depts) && n <= 9 {
		return e.toDepartment(depts[n-1], "menu_selected")
	}
	return e.invalidInput(attempt, depts, e.menuRetry(depts))
}

func (e *Engine) menuRetry(depts []directory.Department) []Verb {
	return append([]Verb{Say{Text: "Sorry, that is not a valid choice."}}, e.menu(depts, 1)...)
}

func (e *Engine) invalidInput(attempt int, depts []directory.Department, retry []Verb) Decision {
	if attempt < 1 {
		return Decision{Verbs: retry, Reason: "invalid_input_retry"}
	}
	return e.toDepartment(DefaultDepartment(depts), "invalid_input_default")
}

func (e *Engine) toDepartment(d directory.Department, reason string) Decision {
	return Decision{
		Verbs:  []Verb{Redirect{URL: e.Links.Hold(d.ID, QueueState{})}},
		Patch:  calls.Patch{DepartmentID: calls.Ptr(d.ID)},
		Reason: reason,
	}
}

// DefaultDepartment is the department with the lowest sort order.
// depts must be non-empty.
func DefaultDepartment(depts []directory.Department) directory.Department {
	best := depts[0]
	for _, d := range depts[1:] {
		if d.SortOrder < best.SortOrder || (d.SortOrder == best.SortOrder && d.ID < best.ID) {
			best = d
		}
	}
	return best
}

// ValidExtension reports whether digits is a three-digit extension entry.
func ValidExtension(digits string) bool {
	if len(digits) != 3 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Extension handles the three-digit extension entry. agent is nil when the
// extension is unknown, which counts as invalid caller input.
func (e *Engine) Extension(agent *directory.Agent, attempt int, depts []directory.Department) Decision {
	if agent == nil {
		if len(depts) == 0 {
			d := e.Voicemail("")
			d.Reason = "no_departments"
			return d
		}
		retry := append([]Verb{Say{Text: "Sorry, that extension was not found."}}, e.extensionPrompt(1)...)
		return e.invalidInput(attempt, depts, retry)
	}

	state := QueueState{}.With(agent.ID)
	if !agent.IsAvailable {
		return Decision{
			Verbs: []Verb{
				Say{Text: fmt.Sprintf("%s is not available right now.", agent.DisplayName)},
				Redirect{URL: e.Links.Hold(agent.DepartmentID, state)},
			},
			Patch:  calls.Patch{DepartmentID: calls.Ptr(agent.DepartmentID)},
			Reason: "extension_unavailable",
		}
	}
	return Decision{
		Verbs: []Verb{e.dial(*agent, e.Links.CallComplete(agent.DepartmentID, state), e.Policy.RingTimeout)},
		Patch: calls.Patch{
			DepartmentID: calls.Ptr(agent.DepartmentID),
			Status:       calls.Ptr(calls.CallStatusRinging),
		},
		Reason: "extension_dial",
	}
}

func (e *Engine) dial(a directory.Agent, action string, timeout time.Duration) Dial {
	d := Dial{
		Action:  action,
		Timeout: timeout,
		URL:     e.Links.AgentConnect(a.ID),
	}
	if id, ok := strings.CutPrefix(a.Number, "client:"); ok {
		d.Client = id
	} else {
		d.Number = a.Number
	}
	return d
}

func (e *Engine) maxWait(d directory.Department) int {
	if d.MaxQueueWaitSeconds > 0 {
		return d.MaxQueueWaitSeconds
	}
	return int(e.Policy.DefaultMaxWait / time.Second)
}

func (e *Engine) ringTimeout(d directory.Department) time.Duration {
	if d.RingTimeoutSeconds > 0 {
		return time.Duration(d.RingTimeoutSeconds) * time.Second
	}
	return e.Policy.RingTimeout
}

// Queue decides the next step for a caller waiting on a department.
//
//   - elapsed wait at or past the department max: voicemail
//   - an available, untried agent: ring it and claim the round-robin turn
//   - agents already tried and none left: voicemail
//   - otherwise: one hold slice, then come back stamped with the slice start
//
// Wait is measured on now, so hold music of any length counts as played.
func (e *Engine) Queue(dept directory.Department, agents []directory.Agent, cursor int, state QueueState, now time.Time) Decision {
	state = state.Settle(now)
	if state.WaitSeconds >= e.maxWait(dept) {
		d := e.Voicemail(dept.ID)
		d.Reason = "queue_timeout"
		return d
	}
	if a, ok := NextAgent(agents, cursor, state); ok {
		return e.ring(dept, a, cursor, state)
	}
	if len(state.Tried) > 0 {
		d := e.Voicemail(dept.ID)
		d.Reason = "agents_exhausted"
		return d
	}

	var verbs []Verb
	if dept.HoldMusicURL != "" {
		verbs = append(verbs, Play{URL: dept.HoldMusicURL})
	} else {
		verbs = append(verbs, Say{Text: "All of our team members are currently helping other callers. Please hold."}, Pause{Length: e.Policy.HoldSlice})
	}
	next := QueueState{WaitSeconds: state.WaitSeconds, HoldStarted: now.Unix(), Tried: state.Tried}
	verbs = append(verbs, Redirect{URL: e.Links.Hold(dept.ID, next)})
	return Decision{
		Verbs:  verbs,
		Patch:  calls.Patch{DepartmentID: calls.Ptr(dept.ID)},
		Reason: "hold",
	}
}

func (e *Engine) ring(dept directory.Department, a directory.Agent, cursor int, state QueueState) Decision {
	next := state.With(a.ID)
	return Decision{
		Verbs: []Verb{e.dial(a, e.Links.CallComplete(dept.ID, next), e.ringTimeout(dept))},
		Patch: calls.Patch{
			DepartmentID:   calls.Ptr(dept.ID),
			Status:         calls.Ptr(calls.CallStatusRinging),
			CursorSnapshot: calls.Ptr(a.RoundRobinOrder),
		},
		Cursor: &CursorAdvance{DepartmentID: dept.ID, From: cursor, To: a.RoundRobinOrder},
		Reason: "ring_agent",
	}
}

// DialResult handles the Dial action callback. A completed dial means the
// caller talked to the agent and the call is over; any other outcome is a
// ring timeout and moves on to the next agent, or voicemail.
func (e *Engine) DialResult(dialStatus string, dept directory.Department, agents []directory.Agent, cursor int, state QueueState) Decision {
	if dialStatus == "completed" || dialStatus == "answered" {
		return Decision{Verbs: []Verb{Hangup{}}, Reason: "dial_completed"}
	}
	if a, ok := NextAgent(agents, cursor, state); ok && state.WaitSeconds < e.maxWait(dept) {
		return e.ring(dept, a, cursor, state)
	}
	d := e.Voicemail(dept.ID)
	d.Reason = "agents_exhausted"
	return d
}

// AgentConnected whispers the caller's identity to the agent leg before it is
// bridged and records who picked up.
func (e *Engine) AgentConnected(call calls.Call, agent directory.Agent, agentLegID string) Decision {
	who := call.CallerName
	if who == "" {
		who = call.From
	}
	if who == "" {
		who = "an unknown caller"
	}
	p := calls.Patch{
		Status:  calls.Ptr(calls.CallStatusInProgress),
		AgentID: calls.Ptr(agent.ID),
	}
	if agentLegID != "" {
		p.AgentLegID = calls.Ptr(agentLegID)
	}
	return Decision{
		Verbs:  []Verb{Say{Text: "Incoming call from " + who + "."}},
		Patch:  p,
		Reason: "agent_connected",
	}
}

// Voicemail apologizes and records a capped, transcribed message.
// departmentID may be empty when the department could not be resolved.
func (e *Engine) Voicemail(departmentID string) Decision {
	return Decision{
		Verbs: []Verb{
			Say{Text: "Sorry, all of our agents are busy. Please leave a message after the tone."},
			Record{
				Action:             e.Links.Voicemail(departmentID),
				MaxLength:          e.Policy.VoicemailMaxLength,
				PlayBeep:           true,
				Transcribe:         true,
				TranscribeCallback: e.Links.Transcription(),
			},
			Say{Text: "We did not receive a message. Goodbye."},
			Hangup{},
		},
		Reason: "voicemail",
	}
}

// VoicemailSaved finalizes a recorded voicemail. An empty recording url means
// the caller hung up without leaving a message.
func (e *Engine) VoicemailSaved(recordingURL string) Decision {
	if recordingURL == "" {
		return Decision{Verbs: []Verb{Hangup{}}, Reason: "voicemail_empty"}
	}
	return Decision{
		Verbs: []Verb{Say{Text: "Thank you. Your message has been saved. Goodbye."}, Hangup{}},
		Patch: calls.Patch{
			Status:       calls.Ptr(calls.CallStatusVoicemail),
			VoicemailURL: calls.Ptr(recordingURL),
			RecordingURL: calls.Ptr(recordingURL),
		},
		Reason: "voicemail_saved",
	}
}

// ParkRole says which party is being moved into a transfer conference.
type ParkRole int

const (
	ParkCaller ParkRole = iota
	// ParkAgent is the original agent while the target decides.
	ParkAgent
	ParkTarget
	// ParkHandback is the original agent rejoining after the target declined
	// or never answered. Nobody else will take the caller over.
	ParkHandback
)

// Park returns the verbs that place a leg in a transfer conference. The
// caller ends the conference on exit, and so does whichever agent is left to
// own the call; only the original agent may leave during the handover.
func (e *Engine) Park(room string, role ParkRole) []Verb {
	c := &Conference{Name: room, StartOnEnter: true}
	if role != ParkAgent {
		c.EndOnExit = true
	}
	return []Verb{Dial{Conference: c}}
}

// TransferPrompt is played to the target agent on the transfer side call. A
// prompt left unanswered is reported back as a decline.
func (e *Engine) TransferPrompt(room, callSid, agentID string) Decision {
	return Decision{
		Verbs: []Verb{
			Gather{
				NumDigits: 1,
				Action:    e.Links.AcceptTransfer(room, callSid, agentID),
				Timeout:   10 * time.Second,
				Prompts:   []Verb{Say{Text: "You have a transferred call. Press 1 to accept."}},
			},
			Redirect{URL: e.Links.TransferEvent(room, callSid, agentID, TransferEventDeclined)},
		},
		Reason: "transfer_prompt",
	}
}

// TransferAnswer handles the target agent's response. Only "1" joins the
// conference; anything else ends the side call and leaves the caller with
// the original agent.
func (e *Engine) TransferAnswer(digits, room, agentID string) Decision {
	if digits != "1" {
		return Decision{
			Verbs:  []Verb{Say{Text: "Transfer declined. Goodbye."}, Hangup{}},
			Reason: "transfer_declined",
		}
	}
	p := calls.Patch{
		Status:         calls.Ptr(calls.CallStatusTransferred),
		ConferenceRoom: calls.Ptr(room),
	}
	if agentID != "" {
		p.AgentID = calls.Ptr(agentID)
	}
	return Decision{Verbs: e.Park(room, ParkTarget), Patch: p, Reason: "transfer_accepted"}
}

// BlindTransfer redirects the caller leg straight to the target agent. The
// caller leaves any earlier transfer conference, so the room is cleared and a
// ring timeout on the target queues normally.
func (e *Engine) BlindTransfer(target directory.Agent) Decision {
	state := QueueState{}.With(target.ID)
	return Decision{
		Verbs: []Verb{e.dial(target, e.Links.CallComplete(target.DepartmentID, state), e.Policy.RingTimeout)},
		Patch: calls.Patch{
			Status:         calls.Ptr(calls.CallStatusTransferred),
			AgentID:        calls.Ptr(target.ID),
			DepartmentID:   calls.Ptr(target.DepartmentID),
			ConferenceRoom: calls.Ptr(""),
		},
		Reason: "blind_transfer",
	}
}

// OutboundConnect bridges an answered agent leg to the customer being called.
func (e *Engine) OutboundConnect(to string) Decision {
	return Decision{
		Verbs: []Verb{
			Say{Text: "Connecting your call."},
			Dial{Number: to, CallerID: e.Policy.CallerID, Timeout: e.Policy.RingTimeout},
		},
		Patch:  calls.Patch{Status: calls.Ptr(calls.CallStatusInProgress)},
		Reason: "outbound_connect",
	}
}

// StatusEvent is a provider status callback.
type StatusEvent struct {
	CallStatus   string
	Duration     string
	RecordingURL string
	At           time.Time
}

// Status maps a provider status callback onto a call patch. Terminal statuses
// stamp ended_at and the provider-reported duration when present.
func (e *Engine) Status(ev StatusEvent) calls.Patch {
	var p calls.Patch
	if ev.RecordingURL != "" {
		p.RecordingURL = calls.Ptr(ev.RecordingURL)
	}
	st, ok := calls.FromProvider(ev.CallStatus)
	if !ok {
		return p
	}
	p.Status = calls.Ptr(st)
	if st.IsTerminal() {
		p.EndedAt = calls.Ptr(ev.At.UTC())
		if n, err := strconv.Atoi(ev.Duration); err == nil && n >= 0 {
			p.DurationSeconds = calls.Ptr(n)
		}
	}
	return p
}

// Apology is the last-resort response when nothing else can be decided.
func (e *Engine) Apology() []Verb {
	return []Verb{
		Say{Text: "We are sorry, we cannot take your call right now. Please try again later."},
		Hangup{},
	}
}
