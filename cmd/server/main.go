package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ledger-reconciliation-backend/internal/config"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/routes"
	service "ledger-reconciliation-backend/internal/services/reconciliation"
)

func main() {
	log := logger.New()

	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = logger.WithLevel(log, cfg.LogLevel)

	db, err := config.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}

	if err := db.AutoMigrate(
		&models.ReconciliationBatch{},
		&models.MatchResult{},
		&models.DocumentBucket{},
		&models.MatchAuditLog{},
	); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.OutputDir).Msg("cannot create output dir")
	}

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	svc := routes.RegisterRoutes(r, db, service.Settings{
		Matching:  cfg.Matching,
		Netting:   cfg.Netting,
		OutputDir: cfg.OutputDir,
	}, log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	// let running batches finish writing their reports
	svc.Wait()
	log.Info().Msg("server stopped")
}
