package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	accounthandler "threadhub/internal/account/handler"
	accountservice "threadhub/internal/account/service"
	accountstore "threadhub/internal/account/store"
	"threadhub/internal/email"
	"threadhub/internal/identity"
	"threadhub/internal/jwttoken"
	"threadhub/internal/oauth"
	"threadhub/internal/platform/config"
	"threadhub/internal/platform/httpserver"
	"threadhub/internal/platform/logger"
	"threadhub/internal/platform/metrics"
	"threadhub/internal/platform/postgres"
	platformredis "threadhub/internal/platform/redis"
	"threadhub/internal/ratelimit"
	"threadhub/internal/schema"
	threadhandler "threadhub/internal/thread/handler"
	threadservice "threadhub/internal/thread/service"
	threadstore "threadhub/internal/thread/store"
	httptransport "threadhub/internal/transport/http"
	natstransport "threadhub/internal/transport/nats"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DSN())
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := schema.Migrate(ctx, db, log); err != nil {
		log.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	accounts := accountstore.NewPostgres(db)
	threads := threadstore.NewPostgres(db)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	resolver := identity.NewResolver(jwtService, accounts)

	var sender email.Sender
	if cfg.SMTPHost != "" {
		sender = email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	} else {
		sender = email.NewLogSender(log)
	}

	oauthClient := oauth.New(cfg.PublicURL,
		cfg.OAuthGoogleClientID, cfg.OAuthGoogleClientSecret,
		cfg.OAuthGitHubClientID, cfg.OAuthGitHubClientSecret)

	accountSvc := accountservice.New(accounts, jwtService, cfg.AccessTTL, sender, cfg.PublicURL,
		accountservice.WithLogger(log),
		accountservice.WithMetrics(m),
		accountservice.WithOAuth(oauthClient),
	)
	threadSvc := threadservice.New(threads,
		threadservice.WithLogger(log),
		threadservice.WithMetrics(m),
	)

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient.Client, cfg.LoginRateLimit, cfg.LoginRateWindow)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Accounts: accounthandler.New(accountSvc, log),
		Threads:  threadhandler.New(threadSvc, log),
		Resolver: resolver,
		Limiter:  limiter,
		Metrics:  m,
		Registry: registry,
		DB:       db,
		Logger:   log,
	})
	srv := httpserver.New(cfg.HTTPAddr, router)

	// The NATS adapter is optional: without a broker URL the service runs
	// HTTP-only.
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		natsServer := natstransport.New(nc, cfg.NATSSubjectRoot, cfg.NATSQueueGroup,
			accountSvc, threadSvc, resolver, log, m)
		if err := natsServer.Start(); err != nil {
			log.Error("failed to start nats adapter", "error", err)
			os.Exit(1)
		}
		defer natsServer.Stop()
	}

	go func() {
		log.Info("starting http server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
