package routing

import (
	"time"

	"callrouter/internal/calls"
)

// Decision is the provider-agnostic output of the routing engine.
//
// It carries only what the caller needs to execute the decision: the verbs to
// render back to the provider, the state change for the call, and an
// optional round-robin cursor advance. The engine itself never writes.
type Decision struct {
	Verbs []Verb
	Patch calls.Patch

	// Cursor is set when a ring attempt claims a round-robin turn.
	Cursor *CursorAdvance

	// Reason is optional and intended for internal logs.
	Reason string
}

// CursorAdvance asks the data layer to move a department cursor from From
// to To with a compare-and-set.
type CursorAdvance struct {
	DepartmentID string
	From         int
	To           int
}

// Verb is one instruction in a call-control response.
type Verb interface {
	isVerb()
}

type Say struct {
	Text  string
	Voice string
	Loop  int
}

func (Say) isVerb() {}

type Play struct {
	URL  string
	Loop int
}

func (Play) isVerb() {}

type Pause struct {
	Length time.Duration
}

func (Pause) isVerb() {}

// Gather collects DTMF digits while playing Prompts, then posts them to Action.
type Gather struct {
	NumDigits int
	Action    string
	Timeout   time.Duration
	Prompts   []Verb
}

func (Gather) isVerb() {}

type Record struct {
	Action             string
	MaxLength          time.Duration
	PlayBeep           bool
	Transcribe         bool
	TranscribeCallback string
}

func (Record) isVerb() {}

// Dial connects the call to exactly one of Number, Client or Conference.
//
// URL is fetched on the answered child leg before it is bridged (agent whisper).
type Dial struct {
	Action   string
	Timeout  time.Duration
	CallerID string

	Number     string
	Client     string
	Conference *Conference
	URL        string
}

func (Dial) isVerb() {}

type Conference struct {
	Name         string
	StartOnEnter bool
	EndOnExit    bool
	WaitURL      string
}

type Redirect struct {
	URL string
}

func (Redirect) isVerb() {}

type Hangup struct{}

func (Hangup) isVerb() {}
