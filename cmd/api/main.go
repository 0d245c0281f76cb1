package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callrouter/internal/audit"
	"callrouter/internal/auth"
	"callrouter/internal/callflow"
	"callrouter/internal/calls"
	"callrouter/internal/config"
	"callrouter/internal/directory"
	"callrouter/internal/events"
	"callrouter/internal/httpapi"
	"callrouter/internal/inbox"
	"callrouter/internal/reporting"
	"callrouter/internal/routing"
	"callrouter/internal/telephony"
	"callrouter/pkg/logger"
	"callrouter/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	publisher, closePublisher, err := openPublisher(cfg.AMQP)
	if err != nil {
		log.Error("amqp init failed", "err", err)
		os.Exit(1)
	}
	defer closePublisher()

	control, err := openCallControl(cfg)
	if err != nil {
		log.Error("call control init failed", "err", err)
		os.Exit(1)
	}

	callStore := calls.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	flow := &callflow.Service{
		Calls:     callStore,
		Directory: directory.NewCached(directory.NewPostgresRepo(db), cfg.Directory.CacheTTL),
		Cursors:   directory.NewRedisCursors(rdb),
		Engine: routing.NewEngine(cfg.App.PublicBaseURL, routing.Policy{
			HoldSlice:          cfg.Routing.HoldSlice,
			RingTimeout:        cfg.Routing.RingTimeout,
			VoicemailMaxLength: cfg.Routing.VoicemailMaxLength,
			CallerID:           cfg.Twilio.CallerID,
		}),
		Bridge:        inbox.NewBridge(inbox.NewPostgresRepo(db)),
		Audit:         auditSvc,
		Events:        publisher,
		Control:       control,
		LookupTimeout: cfg.Routing.LookupTimeout,
	}

	webhookAuth := telephony.NewAuthenticator(cfg.Twilio.AuthToken, cfg.App.PublicBaseURL, cfg.IsLocal())
	if !webhookAuth.Configured() {
		if cfg.IsLocal() {
			log.Warn("twilio auth token not configured, webhooks accepted unsigned", "env", cfg.App.Env)
		} else {
			log.Error("twilio auth token not configured, every webhook will be rejected", "env", cfg.App.Env)
		}
	}

	api := httpapi.Handlers{
		Auth:       authManager,
		Calls:      flow,
		Reports:    reporting.NewService(callStore),
		AllowLogin: cfg.IsLocal(),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	// Route groups
	registerPublicRoutes(r, db, rdb)
	registerWebhookRoutes(r, telephony.TwilioWebhookHandler{Flow: flow}, webhookAuth, auditSvc)
	registerAuthRoutes(r, api)
	registerProtectedRoutes(r, auth.RequireAccessToken(authManager), api)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "public_base_url", cfg.App.PublicBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("shutdown complete")
}

// openPublisher connects to AMQP when configured. Without AMQP_URL events are dropped.
func openPublisher(cfg config.AMQPConfig) (events.Publisher, func(), error) {
	if cfg.URL == "" {
		return events.Noop{}, func() {}, nil
	}
	p, err := events.NewAMQPPublisher(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, nil, err
	}
	return p, func() {
		if err := p.Close(); err != nil {
			slog.Warn("amqp close failed", "err", err)
		}
	}, nil
}

// openCallControl picks the Twilio REST provider when credentials are set.
// The log-only provider is allowed in local/dev.
func openCallControl(cfg config.Config) (callflow.CallControl, error) {
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		return telephony.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken), nil
	}
	if cfg.IsLocal() {
		slog.Warn("twilio credentials not configured, using local call control")
		return telephony.LocalProvider{}, nil
	}
	return nil, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required outside local/dev")
}
