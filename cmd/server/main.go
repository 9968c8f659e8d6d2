package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/onboard-be/internal/auth"
	"github.com/hongminglow/onboard-be/internal/config"
	"github.com/hongminglow/onboard-be/internal/logging"
	"github.com/hongminglow/onboard-be/internal/mail"
	"github.com/hongminglow/onboard-be/internal/media"
	"github.com/hongminglow/onboard-be/internal/registration"
	"github.com/hongminglow/onboard-be/internal/server"
	postgres "github.com/hongminglow/onboard-be/internal/storage/postgres"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	restoreGlobals := zap.ReplaceGlobals(logger)
	defer restoreGlobals()

	ctx := context.Background()
	userStore, err := postgres.NewUserStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	defer userStore.Close()

	uploader, err := media.NewS3Uploader(ctx, cfg.S3)
	if err != nil {
		logger.Fatal("init image host", zap.Error(err))
	}

	mailer := mail.NewSMTPMailer(cfg.SMTP)
	verifyCtx, cancelVerify := context.WithTimeout(ctx, 10*time.Second)
	if err := mailer.Verify(verifyCtx); err != nil {
		logger.Warn("smtp relay not reachable at startup", zap.String("addr", cfg.SMTP.Address()), zap.Error(err))
	} else {
		logger.Info("smtp relay ready", zap.String("addr", cfg.SMTP.Address()))
	}
	cancelVerify()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	svc := registration.NewService(userStore, mailer, uploader, tokens, registration.Options{
		OTPCode: cfg.OTP.Code,
		OTPTTL:  cfg.OTP.TTL,
	}, logger)

	srv := server.New(cfg, svc, logger)

	go func() {
		logger.Info("onboard backend listening", zap.String("addr", cfg.HTTPAddress()), zap.String("env", cfg.Env))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("graceful shutdown error", zap.Error(err))
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}
