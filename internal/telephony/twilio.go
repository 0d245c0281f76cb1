package telephony

import (
	"context"
	"errors"
	"fmt"

	"callrouter/internal/callflow"
	"callrouter/internal/routing"
	"callrouter/pkg/logger"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// errorCodeNotFound is Twilio's REST error code for an unknown resource.
const errorCodeNotFound = 20404

// callAPI is the part of the Twilio v2010 API used for call control.
type callAPI interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

// TwilioProvider originates and redirects call legs through the Twilio REST API.
type TwilioProvider struct {
	api callAPI
}

func NewTwilioProvider(accountSID, authToken string) *TwilioProvider {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{api: rc.Api}
}

var _ callflow.CallControl = (*TwilioProvider)(nil)

func (p *TwilioProvider) Name() string { return "twilio" }

// StartCall creates an outbound leg. Twilio fetches p.URL for its TwiML once
// the leg answers.
func (p *TwilioProvider) StartCall(ctx context.Context, sp callflow.StartCallParams) (string, error) {
	if sp.To == "" || sp.From == "" || sp.URL == "" {
		return "", errors.New("telephony: to, from and url required")
	}
	params := &openapi.CreateCallParams{}
	params.SetTo(sp.To)
	params.SetFrom(sp.From)
	params.SetUrl(sp.URL)
	params.SetMethod("POST")
	if sp.StatusCallback != "" {
		params.SetStatusCallback(sp.StatusCallback)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	if secs := seconds(sp.Timeout); secs > 0 {
		params.SetTimeout(secs)
	}

	call, err := p.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: twilio create call: %w", err)
	}
	if call == nil || call.Sid == nil {
		return "", errors.New("telephony: twilio create call returned no sid")
	}
	logger.From(ctx).Info("twilio call created", "call_sid", *call.Sid, "to", logger.MaskPhone(sp.To))
	return *call.Sid, nil
}

// RedirectCall replaces the live TwiML of a leg with verbs.
func (p *TwilioProvider) RedirectCall(ctx context.Context, providerCallID string, verbs []routing.Verb) error {
	if providerCallID == "" {
		return errors.New("telephony: call id required")
	}
	doc, err := RenderTwiML(verbs)
	if err != nil {
		return err
	}
	params := &openapi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := p.api.UpdateCall(providerCallID, params); err != nil {
		var rest *client.TwilioRestError
		if errors.As(err, &rest) && rest.Code == errorCodeNotFound {
			return fmt.Errorf("%w: %s", callflow.ErrCallNotFound, providerCallID)
		}
		return fmt.Errorf("telephony: twilio update call: %w", err)
	}
	logger.From(ctx).Debug("twilio call redirected", "call_sid", providerCallID)
	return nil
}
