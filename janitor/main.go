package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/podcast-radar/internal/config"
	"github.com/DeafMist/podcast-radar/internal/logger"
	"github.com/DeafMist/podcast-radar/internal/mediastore"
)

type sweeper interface {
	SweepIdle(olderThan time.Time) (int, error)
}

func main() {
	log := logger.New("janitor")
	cfg, err := config.LoadJanitor()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	store, err := mediastore.New(mediastore.Options{Dir: cfg.MediaDir, Ext: cfg.MediaExt}, log)
	if err != nil {
		log.Error("init media store", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log.Info("janitor running",
		slog.String("media_dir", cfg.MediaDir),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)
	loop(ctx, log, store, cfg.Interval, cfg.MaxAge, time.Now)
	log.Info("shutdown signal received")
}

// loop sweeps once immediately and then on every tick until ctx is done.
func loop(ctx context.Context, log *slog.Logger, store sweeper, interval, maxAge time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(log, store, maxAge, now)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(log, store, maxAge, now)
		}
	}
}

func runOnce(log *slog.Logger, store sweeper, maxAge time.Duration, now func() time.Time) {
	removed, err := store.SweepIdle(now().Add(-maxAge))
	if errors.Is(err, mediastore.ErrLocked) {
		log.Info("ingest run in progress, skipping sweep")
		return
	}
	if err != nil {
		log.Warn("sweep failed (will retry on next interval)", slog.Any("err", err))
		return
	}

	if removed > 0 {
		log.Info("sweep completed", slog.Int("removed", removed))
	} else {
		log.Debug("sweep completed, no orphaned media found")
	}
}
