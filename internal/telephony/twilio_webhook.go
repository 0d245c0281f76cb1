package telephony

import (
	"net/http"
	"strconv"
	"strings"

	"callrouter/internal/callflow"
	"callrouter/internal/routing"
)

// Twilio sends application/x-www-form-urlencoded bodies. The forms below
// capture the subset of fields each webhook needs.
// Ref: https://www.twilio.com/docs/usage/webhooks/voice-webhooks
//
// Routing decisions are not made here.

// TwilioVoiceForm is the first voice webhook for a call, and the request
// made for agent legs when they answer.
type TwilioVoiceForm struct {
	CallSid       string
	ParentCallSid string
	AccountSid    string
	From          string
	To            string
	Direction     string
	CallStatus    string
	CallerName    string
	ForwardedFrom string
}

func ParseTwilioVoice(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	return TwilioVoiceForm{
		CallSid:       r.PostFormValue("CallSid"),
		ParentCallSid: r.PostFormValue("ParentCallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallerName:    strings.TrimSpace(r.PostFormValue("CallerName")),
		ForwardedFrom: normalizePhone(r.PostFormValue("ForwardedFrom")),
	}, nil
}

func (f TwilioVoiceForm) InboundCall() routing.InboundCall {
	return routing.InboundCall{CallSid: f.CallSid, From: f.From, To: f.To, CallerName: f.CallerName}
}

// TwilioGatherForm is a Gather action callback. HasDigits distinguishes an
// empty submission from the caller pressing nothing at all.
type TwilioGatherForm struct {
	CallSid   string
	Digits    string
	HasDigits bool
}

func ParseTwilioGather(r *http.Request) (TwilioGatherForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioGatherForm{}, err
	}
	_, has := r.PostForm["Digits"]
	return TwilioGatherForm{
		CallSid:   r.PostFormValue("CallSid"),
		Digits:    strings.TrimSpace(r.PostFormValue("Digits")),
		HasDigits: has,
	}, nil
}

// TwilioDialForm is the Dial action callback posted when an agent ring attempt ends.
type TwilioDialForm struct {
	CallSid          string
	DialCallSid      string
	DialCallStatus   string
	DialCallDuration int
}

func ParseTwilioDial(r *http.Request) (TwilioDialForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioDialForm{}, err
	}
	return TwilioDialForm{
		CallSid:          r.PostFormValue("CallSid"),
		DialCallSid:      r.PostFormValue("DialCallSid"),
		DialCallStatus:   r.PostFormValue("DialCallStatus"),
		DialCallDuration: atoiOrZero(r.PostFormValue("DialCallDuration")),
	}, nil
}

// TwilioStatusForm is a call status callback.
type TwilioStatusForm struct {
	CallSid      string
	CallStatus   string
	CallDuration string
	RecordingURL string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	return TwilioStatusForm{
		CallSid:      r.PostFormValue("CallSid"),
		CallStatus:   r.PostFormValue("CallStatus"),
		CallDuration: r.PostFormValue("CallDuration"),
		RecordingURL: r.PostFormValue("RecordingUrl"),
	}, nil
}

func (f TwilioStatusForm) StatusInput() callflow.StatusInput {
	return callflow.StatusInput{
		CallID:       f.CallSid,
		CallStatus:   f.CallStatus,
		Duration:     f.CallDuration,
		RecordingURL: f.RecordingURL,
	}
}

// TwilioRecordingForm is the Record action callback.
type TwilioRecordingForm struct {
	CallSid           string
	RecordingSid      string
	RecordingURL      string
	RecordingDuration int
}

func ParseTwilioRecording(r *http.Request) (TwilioRecordingForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioRecordingForm{}, err
	}
	return TwilioRecordingForm{
		CallSid:           r.PostFormValue("CallSid"),
		RecordingSid:      r.PostFormValue("RecordingSid"),
		RecordingURL:      strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		RecordingDuration: atoiOrZero(r.PostFormValue("RecordingDuration")),
	}, nil
}

// TwilioTranscriptionForm is the asynchronous transcribeCallback.
type TwilioTranscriptionForm struct {
	CallSid             string
	RecordingSid        string
	TranscriptionStatus string
	TranscriptionText   string
}

func ParseTwilioTranscription(r *http.Request) (TwilioTranscriptionForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioTranscriptionForm{}, err
	}
	return TwilioTranscriptionForm{
		CallSid:             r.PostFormValue("CallSid"),
		RecordingSid:        r.PostFormValue("RecordingSid"),
		TranscriptionStatus: r.PostFormValue("TranscriptionStatus"),
		TranscriptionText:   strings.TrimSpace(r.PostFormValue("TranscriptionText")),
	}, nil
}

// TwilioSMSForm is an inbound messaging webhook. Media arrives as
// NumMedia plus MediaUrl0..MediaUrl{N-1}.
type TwilioSMSForm struct {
	MessageSid string
	From       string
	To         string
	Body       string
	MediaURLs  []string
}

// maxMedia is the provider's per-message attachment cap.
const maxMedia = 10

func ParseTwilioSMS(r *http.Request) (TwilioSMSForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioSMSForm{}, err
	}
	f := TwilioSMSForm{
		MessageSid: r.PostFormValue("MessageSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		Body:       r.PostFormValue("Body"),
	}
	n := atoiOrZero(r.PostFormValue("NumMedia"))
	if n > maxMedia {
		n = maxMedia
	}
	for i := 0; i < n; i++ {
		if u := strings.TrimSpace(r.PostFormValue("MediaUrl" + strconv.Itoa(i))); u != "" {
			f.MediaURLs = append(f.MediaURLs, u)
		}
	}
	return f, nil
}

func (f TwilioSMSForm) SMSInput() callflow.SMSInput {
	return callflow.SMSInput{
		MessageSid: f.MessageSid,
		From:       f.From,
		To:         f.To,
		Body:       f.Body,
		MediaURLs:  f.MediaURLs,
	}
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
