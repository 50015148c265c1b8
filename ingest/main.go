package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/podcast-radar/internal/config"
	"github.com/DeafMist/podcast-radar/internal/elasticsearch"
	"github.com/DeafMist/podcast-radar/internal/events"
	"github.com/DeafMist/podcast-radar/internal/feed"
	"github.com/DeafMist/podcast-radar/internal/ingest"
	"github.com/DeafMist/podcast-radar/internal/logger"
	"github.com/DeafMist/podcast-radar/internal/mediastore"
	"github.com/DeafMist/podcast-radar/internal/processing"
	"github.com/DeafMist/podcast-radar/internal/transcribe"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

type outcomePublisher interface {
	PublishSummary(ctx context.Context, summary *ingest.RunSummary) error
	Close() error
}

func main() {
	log := logger.New("ingest")
	cfg, err := config.LoadIngest()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(exitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := run(ctx, cfg, log)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Ingest, log *slog.Logger) int {
	esClient, err := elasticsearch.Connect(ctx, elasticsearch.Options{
		Addresses: cfg.ElasticsearchAddrs,
		Index:     cfg.ElasticsearchIndex,
		Username:  cfg.ElasticsearchUsername,
		Password:  cfg.ElasticsearchPassword,
		APIKey:    cfg.ElasticsearchAPIKey,
		PageSize:  cfg.IndexPageSize,
	}, elasticsearch.DefaultRetry, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		return exitCode(ctx, nil, err, cfg.FailOnError)
	}
	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		return exitCode(ctx, nil, err, cfg.FailOnError)
	}

	store, err := mediastore.New(mediastore.Options{
		Dir:       cfg.MediaDir,
		Ext:       cfg.MediaExt,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.DownloadTimeout,
	}, log)
	if err != nil {
		log.Error("init media store", slog.Any("err", err))
		return exitFailure
	}
	unlock, err := store.Lock()
	if err != nil {
		log.Error("lock media dir, is another ingest run active?", slog.Any("err", err))
		return exitFailure
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn("release media lock", slog.Any("err", err))
		}
	}()

	stt := transcribe.NewWhisper(transcribe.Options{
		Binary: cfg.WhisperBinary,
		Model:  cfg.WhisperModel,
	}, log)
	if !stt.Available() {
		log.Warn("whisper binary not found, episodes will fail at transcription",
			slog.String("binary", cfg.WhisperBinary),
		)
	}

	extractor, err := processing.NewExtractor(processing.ExtractorOptions{
		Language: cfg.Language,
		Mode:     cfg.KeywordMode,
		Limit:    cfg.KeywordLimit,
		MinLen:   cfg.KeywordMinLen,
	})
	if err != nil {
		log.Error("init keyword extractor", slog.Any("err", err))
		return exitFailure
	}

	source := feed.New(feed.Options{
		URL:       cfg.FeedURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FeedTimeout,
	}, log)

	processor := ingest.NewProcessor(store, stt, extractor, esClient, ingest.ProcessorOptions{
		Language:      cfg.Language,
		MinimalSchema: cfg.MinimalSchema,
	}, log)
	coordinator := ingest.NewCoordinator(source, esClient, processor, ingest.CoordinatorOptions{
		MaxEpisodes: cfg.MaxEpisodes,
	}, log)

	var publisher outcomePublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("close kafka publisher", slog.Any("err", err))
			}
		}()
	}

	log.Info("ingest started",
		slog.String("feed", cfg.FeedURL),
		slog.String("index", cfg.ElasticsearchIndex),
		slog.String("media_dir", cfg.MediaDir),
		slog.String("language", cfg.Language),
		slog.Bool("kafka", publisher != nil),
	)

	return finish(ctx, coordinator, publisher, cfg.FailOnError, log)
}

type runner interface {
	Run(ctx context.Context) (*ingest.RunSummary, error)
}

func finish(ctx context.Context, r runner, publisher outcomePublisher, failOnError bool, log *slog.Logger) int {
	summary, err := r.Run(ctx)
	if err != nil {
		log.Error("ingestion run failed", slog.Any("err", err))
		return exitCode(ctx, nil, err, failOnError)
	}
	summary.Log(log)
	if len(summary.Outcomes) > 0 && isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stdout, renderSummary(summary))
	}

	if publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := publisher.PublishSummary(pubCtx, summary); err != nil {
			log.Warn("publish outcomes", slog.Any("err", err))
		}
		cancel()
	}
	return exitCode(ctx, summary, nil, failOnError)
}

// exitCode maps a finished or aborted run to the process status.
func exitCode(ctx context.Context, summary *ingest.RunSummary, err error, failOnError bool) int {
	interrupted := ctx.Err() != nil || errors.Is(err, context.Canceled)
	switch {
	case err != nil && interrupted:
		return exitInterrupted
	case err != nil:
		return exitFailure
	case summary != nil && summary.Cancelled:
		return exitInterrupted
	case summary != nil && failOnError && summary.HasFailures():
		return exitFailure
	default:
		return exitOK
	}
}
