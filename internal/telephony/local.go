package telephony

import (
	"context"

	"callrouter/internal/callflow"
	"callrouter/internal/routing"
	"callrouter/pkg/logger"

	"github.com/google/uuid"
)

// LocalProvider is a CallControl for local runs without provider credentials.
//
// It never places a call: every request is logged and acknowledged so the
// agent API can be exercised end to end.
type LocalProvider struct{}

var _ callflow.CallControl = LocalProvider{}

func (LocalProvider) Name() string { return "local" }

func (LocalProvider) StartCall(ctx context.Context, p callflow.StartCallParams) (string, error) {
	sid := "CAlocal" + uuid.NewString()
	logger.From(ctx).Info("local provider: start call", "call_sid", sid, "to", logger.MaskPhone(p.To), "from", p.From, "url", p.URL)
	return sid, nil
}

func (LocalProvider) RedirectCall(ctx context.Context, providerCallID string, verbs []routing.Verb) error {
	doc, err := RenderTwiML(verbs)
	if err != nil {
		return err
	}
	logger.From(ctx).Info("local provider: redirect call", "call_sid", providerCallID, "twiml", doc)
	return nil
}
