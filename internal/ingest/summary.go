package ingest

import (
	"log/slog"
	"time"
)

// RunSummary is the ordered record of per-episode outcomes of one run.
type RunSummary struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	FeedEpisodes   int
	AlreadyIndexed int
	// Deferred counts new episodes left for a later run, either because of the
	// per-run cap or because the run was cancelled.
	Deferred  int
	Cancelled bool
	Outcomes  []Outcome
}

// Succeeded counts indexed episodes.
func (s *RunSummary) Succeeded() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts episodes that stopped at some stage.
func (s *RunSummary) Failed() int {
	return len(s.Outcomes) - s.Succeeded()
}

// HasFailures reports whether any episode failed.
func (s *RunSummary) HasFailures() bool {
	return s.Failed() > 0
}

// Log writes one line per episode followed by the totals.
func (s *RunSummary) Log(log *slog.Logger) {
	for _, o := range s.Outcomes {
		if o.OK() {
			log.Info("episode outcome",
				slog.String("episode_id", o.EpisodeID),
				slog.String("outcome", "success"),
			)
			continue
		}
		log.Warn("episode outcome",
			slog.String("episode_id", o.EpisodeID),
			slog.String("outcome", "failure"),
			slog.String("stage", string(o.Stage)),
			slog.Any("err", o.Err),
		)
	}
	log.Info("run summary",
		slog.String("run_id", s.RunID),
		slog.Int("feed_episodes", s.FeedEpisodes),
		slog.Int("already_indexed", s.AlreadyIndexed),
		slog.Int("succeeded", s.Succeeded()),
		slog.Int("failed", s.Failed()),
		slog.Int("deferred", s.Deferred),
		slog.Bool("cancelled", s.Cancelled),
	)
}
