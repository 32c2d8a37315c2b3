package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/seahkrah/SmartAttend-sub012/internal/config"
	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
	httpapi "github.com/seahkrah/SmartAttend-sub012/internal/http"
	"github.com/seahkrah/SmartAttend-sub012/internal/repository"
	"github.com/seahkrah/SmartAttend-sub012/internal/service"
	"github.com/seahkrah/SmartAttend-sub012/internal/store"
	"github.com/seahkrah/SmartAttend-sub012/internal/tenant"
	"github.com/seahkrah/SmartAttend-sub012/pkg/database"
	"github.com/seahkrah/SmartAttend-sub012/pkg/logger"
	"github.com/seahkrah/SmartAttend-sub012/pkg/redisx"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "smartattend-audit")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	redisClient := redisx.NewClient(&redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisx.Close(redisClient)

	kv := store.NewRedisKV(redisClient)
	sessions := store.NewSessionStore(kv, cfg.Session.KeyPrefix, cfg.Session.TTL)
	resolver := tenant.NewResolver()
	registry := tenant.DefaultRegistry()

	auditRepo := repository.NewPostgresAuditRepo(db)
	accessLogRepo := repository.NewPostgresAccessLogRepo(db)
	scoped := repository.NewScopedDB(db, registry)

	incidents := service.NewIncidentClient(cfg.Incident, log)
	audit := service.NewAuditService(auditRepo, accessLogRepo, incidents, log)

	auth := httpapi.NewAuthContext(sessions, resolver, log)
	router := httpapi.NewRouter(log)
	router.RegisterHealthRoute()
	router.RegisterAuditRoutes(httpapi.NewAuditHandler(audit, auth, log))
	router.RegisterStudentRoutes(httpapi.NewStudentsHandler(db, scoped, audit, auth, log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Dev bootstrap: seed a superadmin session so the audit endpoints are
	// reachable without the auth service. Token is logged once.
	if os.Getenv("SEED_DEV_SESSION") == "true" {
		token, err := sessions.Seed(ctx, store.Session{
			UserID:   "00000000-0000-0000-0000-000000000001",
			TenantID: "00000000-0000-0000-0000-000000000001",
			Role:     domain.RoleSuperadmin,
		})
		if err != nil {
			log.Warn("failed to seed dev session", zap.Error(err))
		} else {
			log.Info("seeded dev superadmin session", zap.String("token", token))
		}
	}

	if cfg.Verify.Enabled {
		go audit.RunIntegritySweep(ctx, cfg.Verify.Interval, cfg.Verify.Batch)
	}

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("shutdown error", zap.Error(err))
		}
	}
}
