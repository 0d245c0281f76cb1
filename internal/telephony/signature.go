package telephony

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"callrouter/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"
)

const headerTwilioSignature = "X-Twilio-Signature"

// placeholderTokens are values shipped in sample env files. They are treated
// the same as an absent token.
var placeholderTokens = map[string]struct{}{
	"":                {},
	"changeme":        {},
	"change-me":       {},
	"placeholder":     {},
	"your_auth_token": {},
	"your-auth-token": {},
	"xxx":             {},
	"test":            {},
	"secret":          {},
}

func isPlaceholderToken(token string) bool {
	_, ok := placeholderTokens[strings.ToLower(strings.TrimSpace(token))]
	return ok
}

// Authenticator checks that a webhook was sent by Twilio.
//
// The signature is recomputed over the public URL the provider was given
// (PublicBaseURL + path + raw query), not the URL this process sees behind a
// proxy. Without a real auth token it fails closed unless AllowUnsigned is set.
type Authenticator struct {
	PublicBaseURL string
	AllowUnsigned bool

	validator  client.RequestValidator
	configured bool
}

func NewAuthenticator(authToken, publicBaseURL string, allowUnsigned bool) *Authenticator {
	a := &Authenticator{
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		AllowUnsigned: allowUnsigned,
	}
	if !isPlaceholderToken(authToken) {
		a.validator = client.NewRequestValidator(authToken)
		a.configured = true
	}
	return a
}

// Configured reports whether a real auth token was supplied.
func (a *Authenticator) Configured() bool { return a.configured }

// PublicURL is the URL the provider signed for r.
func (a *Authenticator) PublicURL(r *http.Request) string {
	u := a.PublicBaseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// Verify validates the request signature against the decoded POST form.
func (a *Authenticator) Verify(ctx context.Context, r *http.Request, form url.Values) bool {
	if !a.configured {
		if a.AllowUnsigned {
			logger.From(ctx).Warn("twilio auth token not configured, accepting unsigned webhook", "path", r.URL.Path)
			return true
		}
		logger.From(ctx).Error("twilio auth token not configured, rejecting webhook", "path", r.URL.Path)
		return false
	}

	sig := r.Header.Get(headerTwilioSignature)
	if sig == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return a.validator.Validate(a.PublicURL(r), params, sig)
}

// RejectionRecorder is notified of every webhook that fails verification.
type RejectionRecorder interface {
	LogWebhookRejected(ctx context.Context, path, providerCallID string) error
}

// RequireTwilioSignature aborts with an empty 403 unless the request carries
// a valid provider signature. The form is parsed here so handlers can read
// c.Request.PostForm directly.
func RequireTwilioSignature(a *Authenticator, rec RejectionRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)
		ctx := logger.With(c.Request.Context(), log)

		if err := c.Request.ParseForm(); err != nil {
			log.Warn("twilio webhook parse failed", "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if a.Verify(ctx, c.Request, c.Request.PostForm) {
			c.Next()
			return
		}

		callSid := c.Request.PostForm.Get("CallSid")
		log.Warn("twilio webhook signature rejected", "path", c.Request.URL.Path, "call_sid", callSid)
		if rec != nil {
			if err := rec.LogWebhookRejected(withClientIP(ctx, c), c.Request.URL.Path, callSid); err != nil {
				log.Warn("audit append failed", "err", err)
			}
		}
		c.AbortWithStatus(http.StatusForbidden)
	}
}
