package telephony

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"callrouter/internal/callflow"
	"callrouter/internal/routing"

	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCallAPI struct {
	created *openapi.CreateCallParams
	updated map[string]*openapi.UpdateCallParams
	err     error
}

func (f *fakeCallAPI) CreateCall(p *openapi.CreateCallParams) (*openapi.ApiV2010Call, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = p
	sid := "CA42"
	return &openapi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeCallAPI) UpdateCall(sid string, p *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.updated == nil {
		f.updated = map[string]*openapi.UpdateCallParams{}
	}
	f.updated[sid] = p
	return &openapi.ApiV2010Call{Sid: &sid}, nil
}

func TestTwilioProvider_StartCall(t *testing.T) {
	api := &fakeCallAPI{}
	p := &TwilioProvider{api: api}

	sid, err := p.StartCall(context.Background(), callflow.StartCallParams{
		To:             "+15550001",
		From:           "+15550100",
		URL:            "https://hooks.test/webhooks/twilio/outbound-connect?to=%2B15557777",
		StatusCallback: "https://hooks.test/webhooks/twilio/call-status",
		Timeout:        25 * time.Second,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sid != "CA42" {
		t.Fatalf("unexpected sid %q", sid)
	}
	c := api.created
	if *c.To != "+15550001" || *c.From != "+15550100" || *c.Timeout != 25 {
		t.Fatalf("unexpected params %+v", c)
	}
	if c.StatusCallback == nil || *c.StatusCallback != "https://hooks.test/webhooks/twilio/call-status" {
		t.Fatalf("expected status callback")
	}
}

func TestTwilioProvider_StartCallValidates(t *testing.T) {
	p := &TwilioProvider{api: &fakeCallAPI{}}
	if _, err := p.StartCall(context.Background(), callflow.StartCallParams{To: "+1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTwilioProvider_RedirectCallSendsTwiML(t *testing.T) {
	api := &fakeCallAPI{}
	p := &TwilioProvider{api: api}

	err := p.RedirectCall(context.Background(), "CA1", []routing.Verb{routing.Dial{Conference: &routing.Conference{Name: "xfer-1", StartOnEnter: true}}})
	if err != nil {
		t.Fatalf("redirect: %v", err)
	}
	doc := api.updated["CA1"].Twiml
	if doc == nil || !strings.Contains(*doc, ">xfer-1</Conference>") {
		t.Fatalf("expected conference twiml, got %v", doc)
	}
}

func TestTwilioProvider_RedirectUnknownCall(t *testing.T) {
	p := &TwilioProvider{api: &fakeCallAPI{err: &client.TwilioRestError{Code: errorCodeNotFound, Status: 404, Message: "not found"}}}
	err := p.RedirectCall(context.Background(), "CAgone", []routing.Verb{routing.Hangup{}})
	if !errors.Is(err, callflow.ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
}
