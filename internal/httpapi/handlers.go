package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"callrouter/internal/audit"
	"callrouter/internal/auth"
	"callrouter/internal/callflow"
	"callrouter/internal/rbac"
	"callrouter/internal/reporting"
	"callrouter/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   *callflow.Service
	Reports *reporting.Service

	// AllowLogin enables the credential-less login used in local/dev.
	AllowLogin bool

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func requestContext(c *gin.Context) context.Context {
	ctx := logger.With(c.Request.Context(), logger.FromGin(c))
	return audit.WithClientIP(ctx, c.ClientIP())
}

func actor(c *gin.Context) (callflow.Actor, bool) {
	orgID, err := auth.OrgID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
		return callflow.Actor{}, false
	}
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return callflow.Actor{OrgID: orgID, UserID: userID, Role: role}, true
}

// --- Auth ---

type loginRequest struct {
	UserID  string `json:"user_id"`
	OrgID   string `json:"org_id"`
	Role    string `json:"role"`
	AgentID string `json:"agent_id,omitempty"`
}

// Login issues a JWT token pair.
//
// NOTE: local/dev only. It does not check credentials.
func (h Handlers) Login(c *gin.Context) {
	if !h.AllowLogin {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.OrgID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, org_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), auth.Identity{UserID: req.UserID, OrgID: req.OrgID, Role: req.Role, AgentID: req.AgentID})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type startCallRequest struct {
	// AgentID defaults to the caller's own agent id.
	AgentID string `json:"agent_id,omitempty"`
	To      string `json:"to"`
}

// StartCall places a click-to-call. 409 when a call with that counterparty is
// still open.
func (h Handlers) StartCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	own := auth.AgentID(c.Request.Context())
	if req.AgentID == "" {
		req.AgentID = own
	}
	if req.AgentID != "" && !rbac.CanActAsAgent(a.Role, own, req.AgentID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "agents may only place their own calls"})
		return
	}

	call, err := h.Calls.StartOutbound(requestContext(c), a, callflow.OutboundRequest{AgentID: req.AgentID, To: req.To})
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, call)
	case errors.Is(err, callflow.ErrCallActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already active", "call_id": call.ProviderCallID})
	case errors.Is(err, callflow.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("start call failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call could not be placed"})
	}
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}
	call, err := h.Calls.Call(requestContext(c), a, c.Param("call_id"))
	if err != nil {
		if errors.Is(err, callflow.ErrCallNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		logger.FromGin(c).Error("call lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, call)
}

type transferRequest struct {
	TargetAgentID string `json:"target_agent_id"`
	Mode          string `json:"mode,omitempty"`
}

func (h Handlers) TransferCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	call, err := h.Calls.Transfer(requestContext(c), a, callflow.TransferRequest{
		CallID:        c.Param("call_id"),
		TargetAgentID: req.TargetAgentID,
		Mode:          callflow.TransferMode(req.Mode),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, call)
	case errors.Is(err, callflow.ErrCallNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, callflow.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, callflow.ErrAgentUnavailable), errors.Is(err, callflow.ErrNotTransferable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("transfer failed", "call_id", c.Param("call_id"), "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "transfer failed"})
	}
}

// --- Reporting ---

// CallsSummary aggregates the call log. from/to are RFC 3339; the default
// window is the last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}

	to := h.now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		to = t
	}

	out, err := h.Reports.CallsSummary(requestContext(c), reporting.CallsSummaryRequest{
		OrgID:        a.OrgID,
		Range:        reporting.TimeRange{From: from, To: to},
		DepartmentID: c.Query("department_id"),
		AgentID:      c.Query("agent_id"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// Convenience middleware bundles.

func RequireOrgAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireOrg(), rbac.RequireAnyRole(roles...)}
}
