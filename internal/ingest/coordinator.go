package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/podcast-radar/internal/logger"
	"github.com/DeafMist/podcast-radar/internal/models"
)

// EpisodeSource lists the downloadable episodes of the feed in feed order.
type EpisodeSource interface {
	Episodes(ctx context.Context) ([]models.EpisodeMetadata, error)
}

// IndexLister returns the ids already present in the index.
type IndexLister interface {
	ListIndexedIDs(ctx context.Context) (map[string]struct{}, error)
}

// EpisodeProcessor handles one episode end to end.
type EpisodeProcessor interface {
	Process(ctx context.Context, ep models.EpisodeMetadata) Outcome
}

// Coordinator indexes the feed episodes that the index does not know yet.
type Coordinator struct {
	feed        EpisodeSource
	index       IndexLister
	processor   EpisodeProcessor
	maxEpisodes int
	log         *slog.Logger
	now         func() time.Time
}

// CoordinatorOptions tune a run.
type CoordinatorOptions struct {
	// MaxEpisodes caps how many new episodes one run processes. Zero means no limit.
	MaxEpisodes int
}

// NewCoordinator wires a coordinator.
func NewCoordinator(feed EpisodeSource, index IndexLister, processor EpisodeProcessor, opts CoordinatorOptions, log *slog.Logger) *Coordinator {
	if log == nil {
		log = logger.Discard()
	}
	return &Coordinator{
		feed:        feed,
		index:       index,
		processor:   processor,
		maxEpisodes: opts.MaxEpisodes,
		log:         log,
		now:         time.Now,
	}
}

// NewEpisodes returns the feed episodes whose id is not indexed, keeping feed order.
func NewEpisodes(feed []models.EpisodeMetadata, indexed map[string]struct{}) []models.EpisodeMetadata {
	out := make([]models.EpisodeMetadata, 0, len(feed))
	for _, ep := range feed {
		if _, ok := indexed[ep.ID]; ok {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// Run performs one ingestion pass. Episodes are processed one at a time in
// feed order; a failed episode never stops the run. Only failing to load the
// feed or the indexed ids is returned as an error.
//
// Cancellation is honoured between episodes only. The episode in flight runs
// to completion, including media cleanup.
func (c *Coordinator) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunID: uuid.NewString(), StartedAt: c.now()}
	log := c.log.With(slog.String("run_id", summary.RunID))

	episodes, err := c.feed.Episodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedFetch, err)
	}
	indexed, err := c.index.ListIndexedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListIndexed, err)
	}

	pending := NewEpisodes(episodes, indexed)
	summary.FeedEpisodes = len(episodes)
	summary.AlreadyIndexed = len(episodes) - len(pending)

	if c.maxEpisodes > 0 && len(pending) > c.maxEpisodes {
		summary.Deferred = len(pending) - c.maxEpisodes
		pending = pending[:c.maxEpisodes]
	}

	log.Info("ingestion run start",
		slog.Int("feed_episodes", summary.FeedEpisodes),
		slog.Int("already_indexed", summary.AlreadyIndexed),
		slog.Int("pending", len(pending)),
		slog.Int("deferred", summary.Deferred),
	)

	work := context.WithoutCancel(ctx)
	for i, ep := range pending {
		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.Deferred += len(pending) - i
			log.Warn("run cancelled between episodes", slog.Int("remaining", len(pending)-i))
			break
		}
		summary.Outcomes = append(summary.Outcomes, c.processor.Process(work, ep))
	}

	summary.FinishedAt = c.now()
	log.Info("ingestion run finished",
		slog.Int("succeeded", summary.Succeeded()),
		slog.Int("failed", summary.Failed()),
		slog.Bool("cancelled", summary.Cancelled),
		slog.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}
