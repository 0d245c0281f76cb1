package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func formRequest(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseTwilioVoice(t *testing.T) {
	r := formRequest("/webhooks/twilio/voice", "CallSid=CA123&From=%2B15551234567&To=%2B15557654321&CallerName=+Pat+")
	form, err := ParseTwilioVoice(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" {
		t.Fatalf("expected CallSid")
	}
	if form.From != "+15551234567" || form.To != "+15557654321" {
		t.Fatalf("unexpected from/to: %q %q", form.From, form.To)
	}
	in := form.InboundCall()
	if in.CallSid != "CA123" || in.CallerName != "Pat" {
		t.Fatalf("unexpected inbound call %+v", in)
	}
}

func TestParseTwilioGather_DistinguishesMissingDigits(t *testing.T) {
	f, _ := ParseTwilioGather(formRequest("/x", "CallSid=CA1"))
	if f.HasDigits {
		t.Fatalf("expected no digits")
	}
	f, _ = ParseTwilioGather(formRequest("/x", "CallSid=CA1&Digits=%2A"))
	if !f.HasDigits || f.Digits != "*" {
		t.Fatalf("unexpected gather %+v", f)
	}
}

func TestParseTwilioSMS_CollectsMedia(t *testing.T) {
	r := formRequest("/webhooks/twilio/sms", "MessageSid=SM1&From=%2B1555&To=%2B1444&Body=&NumMedia=2&MediaUrl0=https%3A%2F%2Fm%2F0&MediaUrl1=https%3A%2F%2Fm%2F1&MediaUrl2=https%3A%2F%2Fm%2F2")
	f, err := ParseTwilioSMS(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.MediaURLs) != 2 || f.MediaURLs[1] != "https://m/1" {
		t.Fatalf("expected NumMedia urls only, got %v", f.MediaURLs)
	}
	if in := f.SMSInput(); in.MessageSid != "SM1" || in.To != "+1444" {
		t.Fatalf("unexpected input %+v", in)
	}
}

func TestParseTwilioRecordingAndStatus(t *testing.T) {
	rec, _ := ParseTwilioRecording(formRequest("/x", "CallSid=CA1&RecordingUrl=https%3A%2F%2Fr%2FRE1&RecordingDuration=abc"))
	if rec.RecordingURL != "https://r/RE1" || rec.RecordingDuration != 0 {
		t.Fatalf("unexpected recording %+v", rec)
	}
	st, _ := ParseTwilioStatus(formRequest("/x", "CallSid=CA1&CallStatus=no-answer&CallDuration=0"))
	in := st.StatusInput()
	if in.CallID != "CA1" || in.CallStatus != "no-answer" || in.Duration != "0" {
		t.Fatalf("unexpected status %+v", in)
	}
}
