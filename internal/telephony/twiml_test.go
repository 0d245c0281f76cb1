package telephony

import (
	"strings"
	"testing"
	"time"

	"callrouter/internal/routing"
)

func TestRenderTwiML_EscapesCallerControlledText(t *testing.T) {
	doc, err := RenderTwiML([]routing.Verb{routing.Say{Text: `Incoming call from <Bob> & "Co".`}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(doc, "<Bob>") {
		t.Fatalf("expected markup to be escaped: %s", doc)
	}
	if !strings.Contains(doc, "&lt;Bob&gt; &amp;") {
		t.Fatalf("expected escaped text: %s", doc)
	}
}

func TestRenderTwiML_Empty(t *testing.T) {
	doc, err := RenderTwiML(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(doc, "<?xml") || !strings.Contains(doc, "<Response></Response>") {
		t.Fatalf("unexpected empty document: %s", doc)
	}
}

func TestRenderTwiML_Verbs(t *testing.T) {
	doc, err := RenderTwiML([]routing.Verb{
		routing.Gather{
			NumDigits: 1,
			Action:    "https://h/menu?attempt=0",
			Timeout:   5 * time.Second,
			Prompts:   []routing.Verb{routing.Say{Text: "For sales, press 1."}},
		},
		routing.Play{URL: "https://h/music.mp3"},
		routing.Pause{Length: 30 * time.Second},
		routing.Dial{Action: "https://h/call-complete?deptId=d&tried=a&wait=0", Timeout: 20 * time.Second, Client: "bob", URL: "https://h/agent-connect?agentId=b"},
		routing.Record{Action: "https://h/voicemail", MaxLength: 120 * time.Second, PlayBeep: true, Transcribe: true, TranscribeCallback: "https://h/transcription"},
		routing.Redirect{URL: "https://h/hold?deptId=d&wait=30"},
		routing.Hangup{},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		`<Gather input="dtmf" numDigits="1" action="https://h/menu?attempt=0" method="POST" timeout="5">`,
		`<Say>For sales, press 1.</Say>`,
		`<Play>https://h/music.mp3</Play>`,
		`<Pause length="30"></Pause>`,
		`timeout="20"`,
		`<Client url="https://h/agent-connect?agentId=b">bob</Client>`,
		`deptId=d&amp;tried=a&amp;wait=0`,
		`maxLength="120"`,
		`transcribeCallback="https://h/transcription"`,
		`<Redirect method="POST">https://h/hold?deptId=d&amp;wait=30</Redirect>`,
		`<Hangup></Hangup>`,
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("expected %q in:\n%s", want, doc)
		}
	}
}

func TestRenderTwiML_Conference(t *testing.T) {
	doc, err := RenderTwiML([]routing.Verb{routing.Dial{Conference: &routing.Conference{Name: "xfer-1", StartOnEnter: true, EndOnExit: true}}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(doc, `<Conference startConferenceOnEnter="true" endConferenceOnExit="true">xfer-1</Conference>`) {
		t.Fatalf("unexpected conference: %s", doc)
	}
}

func TestRenderTwiML_RejectsInvalidVerbs(t *testing.T) {
	cases := map[string][]routing.Verb{
		"dial without target":   {routing.Dial{Timeout: time.Second}},
		"redirect without url":  {routing.Redirect{}},
		"hangup nested in gather": {routing.Gather{Prompts: []routing.Verb{routing.Hangup{}}}},
	}
	for name, verbs := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := RenderTwiML(verbs); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
