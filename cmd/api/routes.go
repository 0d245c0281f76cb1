package main

import (
	"database/sql"
	"net/http"
	"time"

	"callrouter/internal/audit"
	"callrouter/internal/httpapi"
	"callrouter/internal/rbac"
	"callrouter/internal/telephony"
	"callrouter/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

func registerPublicRoutes(r *gin.Engine, db *sql.DB, rdb *redis.Client) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{"db": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := utils.PingPostgres(ctx, db, healthTimeout); err != nil {
			checks["db"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := utils.PingRedis(ctx, rdb, healthTimeout); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})
}

// registerWebhookRoutes mounts the provider webhooks. They are public but
// every one is signature-checked.
func registerWebhookRoutes(r *gin.Engine, h telephony.TwilioWebhookHandler, a *telephony.Authenticator, auditSvc *audit.Service) {
	h.Register(r, a, auditSvc)
}

func registerAuthRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.POST("/v1/auth/login", h.Login)
}

func registerProtectedRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	v1 := r.Group("/v1")
	v1.Use(authMW)

	calls := v1.Group("/calls")
	calls.GET("/summary", append(httpapi.RequireOrgAndAnyRole(rbac.ReportRoles...), h.CallsSummary)...)

	callers := calls.Group("", httpapi.RequireOrgAndAnyRole(rbac.CallRoles...)...)
	callers.POST("", h.StartCall)
	callers.GET("/:call_id", h.GetCall)
	callers.POST("/:call_id/transfer", h.TransferCall)
}
