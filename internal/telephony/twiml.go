package telephony

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"callrouter/internal/routing"
)

// ContentTypeTwiML is the content type of every webhook response.
const ContentTypeTwiML = "text/xml; charset=utf-8"

// TwiML serialization only: no business logic lives here. encoding/xml
// escapes all character data and attributes, so caller-controlled text
// cannot inject markup.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Loop    int      `xml:"loop,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	Loop    int      `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlGather struct {
	XMLName   xml.Name `xml:"Gather"`
	Input     string   `xml:"input,attr"`
	NumDigits int      `xml:"numDigits,attr,omitempty"`
	Action    string   `xml:"action,attr,omitempty"`
	Method    string   `xml:"method,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	Prompts   []any    `xml:",any"`
}

type twimlRecord struct {
	XMLName            xml.Name `xml:"Record"`
	Action             string   `xml:"action,attr,omitempty"`
	Method             string   `xml:"method,attr,omitempty"`
	MaxLength          int      `xml:"maxLength,attr,omitempty"`
	PlayBeep           bool     `xml:"playBeep,attr"`
	Transcribe         bool     `xml:"transcribe,attr,omitempty"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	Action     string           `xml:"action,attr,omitempty"`
	Method     string           `xml:"method,attr,omitempty"`
	Timeout    int              `xml:"timeout,attr,omitempty"`
	CallerID   string           `xml:"callerId,attr,omitempty"`
	Number     *twimlNoun       `xml:"Number,omitempty"`
	Client     *twimlNoun       `xml:"Client,omitempty"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlNoun struct {
	URL   string `xml:"url,attr,omitempty"`
	Value string `xml:",chardata"`
}

type twimlConference struct {
	StartOnEnter bool   `xml:"startConferenceOnEnter,attr"`
	EndOnExit    bool   `xml:"endConferenceOnExit,attr"`
	WaitURL      string `xml:"waitUrl,attr,omitempty"`
	Name         string `xml:",chardata"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func seconds(d time.Duration) int { return int(d / time.Second) }

func encodeVerb(v routing.Verb) (any, error) {
	switch v := v.(type) {
	case routing.Say:
		return twimlSay{Voice: v.Voice, Loop: v.Loop, Text: v.Text}, nil
	case routing.Play:
		return twimlPlay{Loop: v.Loop, URL: v.URL}, nil
	case routing.Pause:
		return twimlPause{Length: seconds(v.Length)}, nil
	case routing.Gather:
		g := twimlGather{Input: "dtmf", NumDigits: v.NumDigits, Action: v.Action, Method: "POST", Timeout: seconds(v.Timeout)}
		for _, p := range v.Prompts {
			switch p.(type) {
			case routing.Say, routing.Play, routing.Pause:
			default:
				return nil, fmt.Errorf("telephony: %T not allowed inside Gather", p)
			}
			enc, err := encodeVerb(p)
			if err != nil {
				return nil, err
			}
			g.Prompts = append(g.Prompts, enc)
		}
		return g, nil
	case routing.Record:
		return twimlRecord{
			Action:             v.Action,
			Method:             "POST",
			MaxLength:          seconds(v.MaxLength),
			PlayBeep:           v.PlayBeep,
			Transcribe:         v.Transcribe,
			TranscribeCallback: v.TranscribeCallback,
		}, nil
	case routing.Dial:
		d := twimlDial{Action: v.Action, Timeout: seconds(v.Timeout), CallerID: v.CallerID}
		if v.Action != "" {
			d.Method = "POST"
		}
		switch {
		case v.Conference != nil:
			d.Conference = &twimlConference{
				StartOnEnter: v.Conference.StartOnEnter,
				EndOnExit:    v.Conference.EndOnExit,
				WaitURL:      v.Conference.WaitURL,
				Name:         v.Conference.Name,
			}
		case v.Client != "":
			d.Client = &twimlNoun{URL: v.URL, Value: v.Client}
		case v.Number != "":
			d.Number = &twimlNoun{URL: v.URL, Value: v.Number}
		default:
			return nil, fmt.Errorf("telephony: dial target required")
		}
		return d, nil
	case routing.Redirect:
		if v.URL == "" {
			return nil, fmt.Errorf("telephony: redirect url required")
		}
		return twimlRedirect{Method: "POST", URL: v.URL}, nil
	case routing.Hangup:
		return twimlHangup{}, nil
	default:
		return nil, fmt.Errorf("telephony: unknown verb %T", v)
	}
}

// RenderTwiML serializes verbs into a TwiML document. An empty verb list
// renders an empty <Response/>, which acknowledges a webhook with no action.
func RenderTwiML(verbs []routing.Verb) (string, error) {
	var r twimlResponse
	for _, v := range verbs {
		enc, err := encodeVerb(v)
		if err != nil {
			return "", err
		}
		r.Verbs = append(r.Verbs, enc)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// emptyTwiML is returned when rendering itself fails.
const emptyTwiML = xml.Header + "<Response></Response>"
