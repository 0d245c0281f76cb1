package telephony

import (
	"context"
	"net/http"

	"callrouter/internal/audit"
	"callrouter/internal/callflow"
	"callrouter/internal/routing"
	"callrouter/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler converts Twilio webhooks to callflow operations and
// writes TwiML.
//
// Every response is a 200 with a well-formed document: a provider that sees
// a 5xx plays its own error message to the caller.
type TwilioWebhookHandler struct {
	Flow *callflow.Service
}

// Register mounts every webhook under the signature check.
func (h TwilioWebhookHandler) Register(r gin.IRouter, auth *Authenticator, rec RejectionRecorder) {
	g := r.Group("", RequireTwilioSignature(auth, rec))
	g.POST(routing.PathVoice, h.HandleVoice)
	g.POST(routing.PathMenu, h.HandleMenu)
	g.POST(routing.PathExtension, h.HandleExtension)
	g.POST(routing.PathHold, h.HandleHold)
	g.POST(routing.PathAgentConnect, h.HandleAgentConnect)
	g.POST(routing.PathCallComplete, h.HandleCallComplete)
	g.POST(routing.PathAcceptTransfer, h.HandleAcceptTransfer)
	g.POST(routing.PathCallStatus, h.HandleCallStatus)
	g.POST(routing.PathVoicemail, h.HandleVoicemail)
	g.POST(routing.PathTranscription, h.HandleTranscription)
	g.POST(routing.PathOutbound, h.HandleOutboundConnect)
	g.POST(routing.PathSMS, h.HandleSMS)
}

func withClientIP(ctx context.Context, c *gin.Context) context.Context {
	return audit.WithClientIP(ctx, c.ClientIP())
}

func requestContext(c *gin.Context) context.Context {
	return withClientIP(logger.With(c.Request.Context(), logger.FromGin(c)), c)
}

func (h TwilioWebhookHandler) respond(c *gin.Context, verbs []routing.Verb) {
	body, err := RenderTwiML(verbs)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "path", c.Request.URL.Path, "err", err)
		if body, err = RenderTwiML(h.Flow.Engine.Apology()); err != nil {
			body = emptyTwiML
		}
	}
	c.Data(http.StatusOK, ContentTypeTwiML, []byte(body))
}

func (h TwilioWebhookHandler) parseFailed(c *gin.Context, err error) {
	logger.FromGin(c).Warn("twilio webhook parse failed", "path", c.Request.URL.Path, "err", err)
	h.respond(c, h.Flow.Engine.Apology())
}

func (h TwilioWebhookHandler) HandleVoice(c *gin.Context) {
	form, err := ParseTwilioVoice(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	h.respond(c, h.Flow.Inbound(requestContext(c), form.InboundCall()))
}

func (h TwilioWebhookHandler) HandleMenu(c *gin.Context) {
	form, err := ParseTwilioGather(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	attempt := routing.ParseAttempt(c.Request.URL.Query())
	h.respond(c, h.Flow.Menu(requestContext(c), form.CallSid, form.Digits, attempt))
}

func (h TwilioWebhookHandler) HandleExtension(c *gin.Context) {
	form, err := ParseTwilioGather(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	attempt := routing.ParseAttempt(c.Request.URL.Query())
	h.respond(c, h.Flow.Extension(requestContext(c), form.CallSid, form.Digits, attempt))
}

func (h TwilioWebhookHandler) HandleHold(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.parseFailed(c, err)
		return
	}
	q := c.Request.URL.Query()
	callSid := c.Request.PostFormValue("CallSid")
	h.respond(c, h.Flow.Hold(requestContext(c), callSid, q.Get(routing.ParamDepartment), routing.ParseQueueState(q)))
}

// HandleAgentConnect runs on the agent leg. The call being routed is the
// parent; the request's own CallSid is the agent leg.
func (h TwilioWebhookHandler) HandleAgentConnect(c *gin.Context) {
	form, err := ParseTwilioVoice(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	callID := form.ParentCallSid
	if callID == "" {
		callID = form.CallSid
	}
	agentID := c.Query(routing.ParamAgent)
	h.respond(c, h.Flow.AgentConnect(requestContext(c), callID, agentID, form.CallSid))
}

func (h TwilioWebhookHandler) HandleCallComplete(c *gin.Context) {
	form, err := ParseTwilioDial(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	q := c.Request.URL.Query()
	h.respond(c, h.Flow.CallComplete(requestContext(c), form.CallSid, q.Get(routing.ParamDepartment), form.DialCallStatus, routing.ParseQueueState(q)))
}

// HandleAcceptTransfer runs on the transfer side call to the target agent. It
// also receives that call's prompt timeout and final status.
func (h TwilioWebhookHandler) HandleAcceptTransfer(c *gin.Context) {
	form, err := ParseTwilioGather(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	q := c.Request.URL.Query()
	room, callSid := q.Get(routing.ParamRoom), q.Get(routing.ParamCallSid)
	if room == "" || callSid == "" {
		logger.FromGin(c).Warn("accept-transfer missing room or call", "room", room, "call_sid", callSid)
		h.respond(c, []routing.Verb{routing.Hangup{}})
		return
	}
	agentID := q.Get(routing.ParamAgent)
	switch q.Get(routing.ParamEvent) {
	case routing.TransferEventStatus:
		h.Flow.TransferSideCallStatus(requestContext(c), room, callSid, c.Request.PostForm.Get("CallStatus"))
		h.respond(c, nil)
	case routing.TransferEventDeclined:
		h.respond(c, h.Flow.AcceptTransfer(requestContext(c), room, callSid, agentID, "", true))
	default:
		h.respond(c, h.Flow.AcceptTransfer(requestContext(c), room, callSid, agentID, form.Digits, form.HasDigits))
	}
}

func (h TwilioWebhookHandler) HandleCallStatus(c *gin.Context) {
	form, err := ParseTwilioStatus(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	h.Flow.Status(requestContext(c), form.StatusInput())
	h.respond(c, nil)
}

func (h TwilioWebhookHandler) HandleVoicemail(c *gin.Context) {
	form, err := ParseTwilioRecording(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	h.respond(c, h.Flow.Voicemail(requestContext(c), callflow.VoicemailInput{
		CallID:       form.CallSid,
		DepartmentID: c.Query(routing.ParamDepartment),
		RecordingURL: form.RecordingURL,
		Duration:     form.RecordingDuration,
	}))
}

func (h TwilioWebhookHandler) HandleTranscription(c *gin.Context) {
	form, err := ParseTwilioTranscription(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	h.Flow.Transcription(requestContext(c), form.CallSid, form.TranscriptionStatus, form.TranscriptionText)
	h.respond(c, nil)
}

// HandleOutboundConnect runs when the agent answers a click-to-call leg.
func (h TwilioWebhookHandler) HandleOutboundConnect(c *gin.Context) {
	form, err := ParseTwilioVoice(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	h.respond(c, h.Flow.OutboundConnect(requestContext(c), form.CallSid, c.Query(routing.ParamTo)))
}

func (h TwilioWebhookHandler) HandleSMS(c *gin.Context) {
	form, err := ParseTwilioSMS(c.Request)
	if err != nil {
		h.parseFailed(c, err)
		return
	}
	h.Flow.SMS(requestContext(c), form.SMSInput())
	h.respond(c, nil)
}
