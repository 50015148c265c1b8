package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/podcast-radar/internal/ingest"
	"github.com/DeafMist/podcast-radar/internal/logger"
)

// OutcomeEvent is the JSON body published for every processed episode.
type OutcomeEvent struct {
	RunID      string    `json:"run_id"`
	EpisodeID  string    `json:"episode_id"`
	Title      string    `json:"title"`
	Outcome    string    `json:"outcome"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	Keywords   int       `json:"keywords"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends run outcomes to Kafka. Failed episodes are also copied to a
// dead letter topic with the stage and error as headers.
type Publisher struct {
	outcomes messageWriter
	dlq      messageWriter
	log      *slog.Logger
}

// NewPublisher creates writers for topic and topic+"_dlq".
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	newWriter := func(t string) *kafka.Writer {
		return &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  t,
			Balancer:               &kafka.Hash{},
			MaxAttempts:            3,
			AllowAutoTopicCreation: true,
		}
	}
	return newPublisher(newWriter(topic), newWriter(topic+"_dlq"), log)
}

func newPublisher(outcomes, dlq messageWriter, log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{outcomes: outcomes, dlq: dlq, log: log}
}

// PublishSummary writes one message per outcome. Errors are logged and the
// first one is returned; they never affect the ingestion result.
func (p *Publisher) PublishSummary(ctx context.Context, summary *ingest.RunSummary) error {
	if summary == nil || len(summary.Outcomes) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(summary.Outcomes))
	var failed []kafka.Message
	for _, o := range summary.Outcomes {
		msg, err := buildMessage(summary, o)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if !o.OK() {
			failed = append(failed, dlqMessage(summary, o, msg))
		}
	}

	var firstErr error
	if err := p.outcomes.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("publish outcomes", slog.Any("err", err), slog.Int("messages", len(msgs)))
		firstErr = fmt.Errorf("publish outcomes: %w", err)
	}
	if len(failed) > 0 {
		if err := p.dlq.WriteMessages(ctx, failed...); err != nil {
			p.log.Error("publish failed episodes to DLQ", slog.Any("err", err), slog.Int("messages", len(failed)))
			if firstErr == nil {
				firstErr = fmt.Errorf("publish dlq: %w", err)
			}
		}
	}
	if firstErr == nil {
		p.log.Info("outcomes published", slog.Int("messages", len(msgs)), slog.Int("dlq", len(failed)))
	}
	return firstErr
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	errOut := p.outcomes.Close()
	errDLQ := p.dlq.Close()
	if errOut != nil {
		return errOut
	}
	return errDLQ
}

func buildMessage(summary *ingest.RunSummary, o ingest.Outcome) (kafka.Message, error) {
	ev := OutcomeEvent{
		RunID:      summary.RunID,
		EpisodeID:  o.EpisodeID,
		Title:      o.Title,
		Outcome:    "success",
		Keywords:   o.Keywords,
		DurationMS: o.Duration.Milliseconds(),
		FinishedAt: summary.FinishedAt.UTC(),
	}
	if !o.OK() {
		ev.Outcome = "failure"
		ev.Stage = string(o.Stage)
		ev.Error = o.Err.Error()
		ev.Keywords = 0
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal outcome: %w", err)
	}
	return kafka.Message{Key: []byte(o.EpisodeID), Value: data}, nil
}

func dlqMessage(summary *ingest.RunSummary, o ingest.Outcome, msg kafka.Message) kafka.Message {
	return kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(summary.RunID)},
			{Key: "stage", Value: []byte(o.Stage)},
			{Key: "error", Value: []byte(o.Err.Error())},
			{Key: "timestamp", Value: []byte(summary.FinishedAt.UTC().Format(time.RFC3339))},
		},
	}
}
