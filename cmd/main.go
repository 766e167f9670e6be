package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicescribe/internal/auth"
	"voicescribe/internal/clients/llm"
	"voicescribe/internal/clients/speech"
	"voicescribe/internal/config"
	httpserver "voicescribe/internal/http_server"
	"voicescribe/internal/lib/logger"
	"voicescribe/internal/lib/verification"
	"voicescribe/internal/rabbitmq"
	"voicescribe/internal/storage"
	"voicescribe/internal/storage/memory"
	"voicescribe/internal/storage/postgres"
	"voicescribe/internal/storage/redis"
	"voicescribe/internal/storage/s3"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := logger.Setup(cfg.Env)

	log.Info("starting voicescribe", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	users, recordings, ledger, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		log.Error("failed to set up storage", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	var publisher verification.Publisher
	if cfg.RabbitMQ.URL != "" {
		broker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
		if err != nil {
			log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer broker.Close()

		publisher = broker
	} else {
		log.Warn("rabbitmq not configured, verification emails disabled")
	}

	audio, err := s3.New(ctx, s3.Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	})
	if err != nil {
		log.Error("failed to set up audio store", slog.String("err", err.Error()))
		os.Exit(1)
	}

	authService := auth.New(
		log, users, ledger,
		cfg.Tokens.Secret, cfg.Tokens.VerificationTokenSecret,
		cfg.Tokens.AccessTokenTTL, cfg.Tokens.RefreshTokenTTL,
		cfg.Sessions.MaxPerUser,
	)

	go sweepExpiredTokens(ctx, log, ledger, cfg.Sessions.SweepInterval)

	router := httpserver.NewRouter(httpserver.Deps{
		Log:         log,
		Auth:        authService,
		Recordings:  recordings,
		Audio:       audio,
		Transcriber: speech.New(cfg.Speech),
		Analyzer:    llm.New(cfg.LLM),
		Publisher:   publisher,

		BaseURL:            cfg.HTTPServer.BaseURL,
		SecureCookies:      cfg.SecureCookies(),
		VerificationTTL:    cfg.Tokens.VerificationTokenTTL,
		VerificationSecret: cfg.Tokens.VerificationTokenSecret,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down HTTP server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("server stopped gracefully")
	}
}

// buildStorage assembles the repositories per configuration: the user
// and recording stores from storage.backend, the refresh-token ledger
// from storage.ledger (which may point at redis while the rest lives in
// postgres).
func buildStorage(ctx context.Context, cfg *config.Config) (
	storage.UserRepository,
	storage.RecordingRepository,
	storage.RefreshTokenRepository,
	func(),
	error,
) {
	var (
		users      storage.UserRepository
		recordings storage.RecordingRepository
		ledger     storage.RefreshTokenRepository
		closers    []func()
	)

	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		repo := memory.New()
		users, recordings, ledger = repo, repo, repo
	default:
		repo, err := postgres.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		closers = append(closers, repo.Close)
		users, recordings, ledger = repo, repo, repo
	}

	if cfg.Storage.Ledger == config.LedgerBackendRedis {
		rd, err := redis.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, nil, nil, err
		}
		closers = append(closers, rd.Close)
		ledger = rd
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	return users, recordings, ledger, closeAll, nil
}

// sweepExpiredTokens periodically drops dead ledger rows. Expired tokens
// are already invisible to lookups; this only reclaims space.
func sweepExpiredTokens(ctx context.Context, log *slog.Logger, ledger storage.RefreshTokenRepository, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.PurgeExpiredRefreshTokens(ctx)
			if err != nil {
				log.Error("refresh token sweep failed", slog.String("err", err.Error()))
				continue
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", slog.Int64("count", n))
			}
		}
	}
}
