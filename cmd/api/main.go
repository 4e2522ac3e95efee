package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fallbackmetrics "github.com/dashboard-api/internal/application/fallback/metrics"
	"github.com/dashboard-api/internal/config"
	jwtinfra "github.com/dashboard-api/internal/infrastructure/jwt"
	"github.com/dashboard-api/internal/infrastructure/postgres"
	"github.com/dashboard-api/internal/infrastructure/smtp"
	"github.com/dashboard-api/internal/infrastructure/sns"
	transporthttp "github.com/dashboard-api/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	db, err := postgres.Open(cfg)
	if err != nil {
		log.Fatalf("open primary store: %v", err)
	}
	defer db.Close()

	// Best-effort schema bootstrap. An unreachable store is not fatal: the
	// process starts anyway and the first user-facing store failure flips
	// fallback mode.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Printf("WARN: schema bootstrap failed, starting degraded: %v", err)
		}
		cancel()
	}

	// JWT provider is optional: admin routes stay open in dev when keys are missing.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender is optional: admin codes fall back to email.
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	deps := &transporthttp.Deps{
		UserRepo:    postgres.NewUserRepo(db),
		Mailer:      mailer,
		SMSSender:   smsSender,
		JWTProvider: jwtProvider,
		Metrics:     fallbackmetrics.New(prometheus.DefaultRegisterer),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
