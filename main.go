// main.go
//
// guessroom server entry point.
// Responsibilities:
//   - Load configuration (.env + environment) and set up the global zerolog logger.
//   - Open the score ledger backend (memory, sqlite or redis).
//   - Wire ledger → room service → HTTP server and run until SIGINT/SIGTERM.
//   - On shutdown, stop HTTP first, then flush rooms and players.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/guessroom/internal/config"
	"github.com/robalobadob/guessroom/internal/game"
	"github.com/robalobadob/guessroom/internal/httpserver"
	"github.com/robalobadob/guessroom/internal/ledger"
	"github.com/robalobadob/guessroom/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("bye")
}

func setupLogging(cfg config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(ctx context.Context, cfg config.Config) error {
	reg := metrics.New()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	scores := ledger.New(store, ledger.Options{
		IdleTimeout: cfg.PlayerIdleTimeout,
		MailboxSize: cfg.MailboxSize,
		Metrics:     reg.Actors,
	})
	rooms := game.NewService(scores, game.Options{
		IdleTimeout: cfg.RoomIdleTimeout,
		MailboxSize: cfg.MailboxSize,
		Metrics:     reg,
	})

	opts := httpserver.Options{ClientOrigin: cfg.ClientOrigin, HistoryLimit: cfg.HistoryLimit}
	if cfg.MetricsEnabled {
		opts.Metrics = reg.Handler()
	}
	srv := httpserver.New(rooms, opts)

	log.Info().Str("addr", cfg.Addr()).Str("ledger", cfg.LedgerBackend).Msg("starting guessroom")
	serveErr := srv.ListenAndServe(ctx, cfg.Addr())

	// HTTP has drained; rooms go first since their in-flight resolutions still award points.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return errors.Join(serveErr, rooms.Close(flushCtx), scores.Close(flushCtx))
}

// openStore returns the configured ledger Store and its cleanup.
func openStore(ctx context.Context, cfg config.Config) (ledger.Store, func(), error) {
	switch cfg.LedgerBackend {
	case config.BackendMemory:
		log.Warn().Msg("memory ledger: scores are lost on restart")
		return ledger.NewMemoryStore(), func() {}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return ledger.NewRedisStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil

	default:
		db, err := openDB(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return ledger.NewSQLiteStore(db), closeDB(db), nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("close db")
		}
	}
}
