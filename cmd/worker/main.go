// The worker binary drains the queue tasks produced by checkout: receipt
// emails and reorder notices. It shares the API's config surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/queue"
	"github.com/noah-isme/backend-pos/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("env", cfg.AppEnv).Str("component", "worker").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	var mailer common.EmailSender = common.NopEmailSender{}
	if cfg.NotifyReceiptEnabled {
		mailer = logMailer{log: logger}
	}

	receipts := queue.ReceiptMailer{
		Email:     mailer,
		Members:   store.NewMembers(pool),
		StoreName: cfg.StoreName,
	}
	reorders := queue.ReorderNotifier{Log: logger}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return queue.Worker{
			R:         redisClient,
			Prefix:    cfg.QueueRedisPrefix,
			Kind:      queue.KindReceiptEmail,
			PollEvery: cfg.QueuePollEvery,
			Handler:   receipts.Handle,
			Log:       logger,
		}.Run(gctx)
	})
	g.Go(func() error {
		return queue.Worker{
			R:         redisClient,
			Prefix:    cfg.QueueRedisPrefix,
			Kind:      queue.KindReorderNotice,
			PollEvery: cfg.QueuePollEvery,
			Handler:   reorders.Handle,
			Log:       logger,
		}.Run(gctx)
	})

	logger.Info().Msg("worker started")
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
	logger.Info().Msg("worker stopped")
}

// logMailer stands in for a real SMTP integration: delivery is recorded in
// the worker log.
type logMailer struct {
	log zerolog.Logger
}

func (m logMailer) Send(to, subject, body string) error {
	m.log.Info().Str("to", to).Str("subject", subject).Int("bytes", len(body)).Msg("receipt email sent")
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
