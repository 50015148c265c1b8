package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/podcast-radar/internal/logger"
	"github.com/DeafMist/podcast-radar/internal/models"
)

// MediaStore places and removes downloaded audio, keyed by episode id.
type MediaStore interface {
	Acquire(ctx context.Context, episodeID, sourceURL string) (models.MediaAsset, error)
	Release(asset models.MediaAsset) error
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path, language string) (string, error)
}

// KeywordExtractor turns text into a set of keywords.
type KeywordExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// DocumentWriter creates or replaces index documents by id.
type DocumentWriter interface {
	Upsert(ctx context.Context, doc models.IndexDocument) error
}

// Outcome is the result of processing one episode.
type Outcome struct {
	EpisodeID string
	Title     string
	Stage     Stage
	Err       error
	Keywords  int
	Duration  time.Duration
}

// OK reports whether the episode was indexed.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// ProcessorOptions tune document assembly.
type ProcessorOptions struct {
	Language      string
	MinimalSchema bool
}

// Processor runs download, transcription, keyword extraction and indexing for one episode.
type Processor struct {
	media    MediaStore
	stt      Transcriber
	keywords KeywordExtractor
	index    DocumentWriter
	opts     ProcessorOptions
	log      *slog.Logger
}

// NewProcessor wires the episode pipeline.
func NewProcessor(media MediaStore, stt Transcriber, keywords KeywordExtractor, index DocumentWriter, opts ProcessorOptions, log *slog.Logger) *Processor {
	if log == nil {
		log = logger.Discard()
	}
	return &Processor{media: media, stt: stt, keywords: keywords, index: index, opts: opts, log: log}
}

// Process indexes a single episode. Failures are reported in the Outcome and
// never escape as errors or panics, so callers can move on to the next episode.
// Once the download succeeded the media asset is released on every path.
func (p *Processor) Process(ctx context.Context, ep models.EpisodeMetadata) Outcome {
	start := time.Now()
	log := p.log.With(slog.String("episode_id", ep.ID))
	log.Info("episode start", slog.String("title", ep.Title))

	keywords, err := p.run(ctx, ep, log)

	out := Outcome{
		EpisodeID: ep.ID,
		Title:     ep.Title,
		Err:       err,
		Keywords:  keywords,
		Duration:  time.Since(start),
	}
	if err != nil {
		out.Stage, _ = StageOf(err)
		log.Warn("episode failed",
			slog.String("stage", string(out.Stage)),
			slog.Any("err", err),
			slog.Duration("took", out.Duration),
		)
		return out
	}

	log.Info("episode indexed",
		slog.Int("keywords", keywords),
		slog.Duration("took", out.Duration),
	)
	return out
}

func (p *Processor) run(ctx context.Context, ep models.EpisodeMetadata, log *slog.Logger) (n int, err error) {
	var asset models.MediaAsset
	err = guard(StageDownload, func() error {
		var acqErr error
		asset, acqErr = p.media.Acquire(ctx, ep.ID, ep.MediaURL)
		return acqErr
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		if relErr := p.media.Release(asset); relErr != nil {
			log.Warn("release media", slog.String("path", asset.Path), slog.Any("err", relErr))
		}
	}()

	var text string
	err = guard(StageTranscription, func() error {
		var sttErr error
		text, sttErr = p.stt.Transcribe(ctx, asset.Path, p.opts.Language)
		return sttErr
	})
	if err != nil {
		return 0, err
	}
	log.Debug("transcribed", slog.Int("chars", len([]rune(text))))

	var keywords []string
	err = guard(StageExtraction, func() error {
		var exErr error
		keywords, exErr = p.keywords.Extract(ctx, text)
		return exErr
	})
	if err != nil {
		return 0, err
	}

	doc := models.BuildDocument(ep, keywords)
	if p.opts.MinimalSchema {
		doc = doc.Minimal()
	}

	err = guard(StageIndexWrite, func() error {
		return p.index.Upsert(ctx, doc)
	})
	if err != nil {
		return 0, err
	}
	return len(doc.Keywords), nil
}

// guard runs fn and tags any error or panic with the stage.
func guard(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
