package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callrouter/internal/audit"
	"callrouter/internal/auth"
	"callrouter/internal/callflow"
	"callrouter/internal/calls"
	"callrouter/internal/config"
	"callrouter/internal/directory"
	"callrouter/internal/events"
	"callrouter/internal/inbox"
	"callrouter/internal/rbac"
	"callrouter/internal/reporting"
	"callrouter/internal/routing"
	"callrouter/internal/telephony"

	"github.com/gin-gonic/gin"
)

type fixture struct {
	router *gin.Engine
	auth   *auth.Manager
	calls  *calls.MemoryStore
}

func newFixture(t *testing.T, allowLogin bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	store := calls.NewMemoryStore()
	dir := directory.NewMemoryRepo()
	dir.AddDepartment(directory.Department{ID: "sales", OrgID: "org", Name: "Sales"})
	dir.AddAgent(directory.Agent{ID: "a", OrgID: "org", DepartmentID: "sales", Number: "+15550001", IsAvailable: true, RoundRobinOrder: 1})
	dir.AddAgent(directory.Agent{ID: "b", OrgID: "org", DepartmentID: "sales", Number: "+15550002", IsAvailable: true, RoundRobinOrder: 2})

	flow := &callflow.Service{
		Calls:     store,
		Directory: dir,
		Cursors:   directory.NewMemoryCursors(),
		Engine:    routing.NewEngine("https://hooks.test", routing.Policy{CallerID: "+15550100"}),
		Bridge:    inbox.NewBridge(inbox.NewMemoryRepo()),
		Audit:     audit.NewService(audit.NewMemoryRepo()),
		Events:    &events.Memory{},
		Control:   telephony.LocalProvider{},
	}
	h := Handlers{Auth: m, Calls: flow, Reports: reporting.NewService(store), AllowLogin: allowLogin}

	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	v1 := r.Group("/v1", auth.RequireAccessToken(m))
	g := v1.Group("/calls")
	g.GET("/summary", append(RequireOrgAndAnyRole(rbac.ReportRoles...), h.CallsSummary)...)
	callers := g.Group("", RequireOrgAndAnyRole(rbac.CallRoles...)...)
	callers.POST("", h.StartCall)
	callers.GET("/:call_id", h.GetCall)
	callers.POST("/:call_id/transfer", h.TransferCall)

	return &fixture{router: r, auth: m, calls: store}
}

func (f *fixture) token(t *testing.T, id auth.Identity) string {
	t.Helper()
	pair, err := f.auth.IssuePair(time.Now(), id)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	return pair.AccessToken
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

var agentA = auth.Identity{UserID: "u1", OrgID: "org", Role: rbac.RoleAgent, AgentID: "a"}

func TestStartCall_RequiresToken(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodPost, "/v1/calls", "", map[string]string{"to": "+15557777"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestStartCall_CreatesThenConflicts(t *testing.T) {
	f := newFixture(t, false)
	tok := f.token(t, agentA)

	w := f.do(http.MethodPost, "/v1/calls", tok, map[string]string{"to": "+15557777"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created calls.Call
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ProviderCallID == "" || created.AgentID != "a" || created.Direction != calls.DirectionOutbound {
		t.Fatalf("unexpected call: %+v", created)
	}

	w = f.do(http.MethodPost, "/v1/calls", tok, map[string]string{"to": "+15557777"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var conflict map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &conflict)
	if conflict["call_id"] != created.ProviderCallID {
		t.Fatalf("expected open call id %q, got %q", created.ProviderCallID, conflict["call_id"])
	}
}

func TestStartCall_MissingDestination(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodPost, "/v1/calls", f.token(t, agentA), map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStartCall_AgentCannotDialAsAnotherAgent(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodPost, "/v1/calls", f.token(t, agentA), map[string]string{"agent_id": "b", "to": "+15557777"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	sup := f.token(t, auth.Identity{UserID: "u3", OrgID: "org", Role: rbac.RoleSupervisor})
	w = f.do(http.MethodPost, "/v1/calls", sup, map[string]string{"agent_id": "b", "to": "+15557777"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 for supervisor, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetCall_ScopedToOrg(t *testing.T) {
	f := newFixture(t, false)
	tok := f.token(t, agentA)

	if w := f.do(http.MethodGet, "/v1/calls/CAnope", tok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	_, _ = f.calls.Upsert(context.Background(), "CAother", calls.Patch{OrgID: calls.Ptr("other-org")})
	if w := f.do(http.MethodGet, "/v1/calls/CAother", tok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across orgs, got %d", w.Code)
	}
}

func TestTransferCall_Errors(t *testing.T) {
	f := newFixture(t, false)
	tok := f.token(t, agentA)

	w := f.do(http.MethodPost, "/v1/calls/CA1/transfer", tok, map[string]string{"target_agent_id": "b", "mode": "sideways"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad mode, got %d", w.Code)
	}

	w = f.do(http.MethodPost, "/v1/calls/CA1/transfer", tok, map[string]string{"target_agent_id": "b"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown call, got %d", w.Code)
	}

	// A call that never connected cannot be transferred.
	_, _ = f.calls.Upsert(context.Background(), "CA2", calls.Patch{OrgID: calls.Ptr("org"), Status: calls.Ptr(calls.CallStatusRinging)})
	w = f.do(http.MethodPost, "/v1/calls/CA2/transfer", tok, map[string]string{"target_agent_id": "b"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCallsSummary(t *testing.T) {
	f := newFixture(t, false)

	if w := f.do(http.MethodGet, "/v1/calls/summary", f.token(t, agentA), nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for agent role, got %d", w.Code)
	}

	_, _ = f.calls.Upsert(context.Background(), "CA1", calls.Patch{OrgID: calls.Ptr("org"), Status: calls.Ptr(calls.CallStatusVoicemail)})
	_, _ = f.calls.Upsert(context.Background(), "CA2", calls.Patch{OrgID: calls.Ptr("other-org")})

	owner := f.token(t, auth.Identity{UserID: "u2", OrgID: "org", Role: rbac.RoleOwner})
	w := f.do(http.MethodGet, "/v1/calls/summary", owner, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got reporting.CallsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalCalls != 1 || got.VoicemailCalls != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	if w := f.do(http.MethodGet, "/v1/calls/summary?from=yesterday", owner, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}
}

func TestLogin(t *testing.T) {
	body := map[string]string{"user_id": "u1", "org_id": "org", "role": "agent", "agent_id": "a"}

	if w := newFixture(t, false).do(http.MethodPost, "/v1/auth/login", "", body); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when login disabled, got %d", w.Code)
	}

	f := newFixture(t, true)
	w := f.do(http.MethodPost, "/v1/auth/login", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	claims, err := f.auth.Verify(out["access_token"], auth.TokenTypeAccess, time.Now())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.AgentID != "a" || claims.OrgID != "org" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
