package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/webintel/webintel/internal/progress"
	"github.com/webintel/webintel/internal/scrape"
)

// PublisherSink forwards run lifecycle events to a topic so downstream
// consumers can react to run completion without polling the API. Page-level
// events are filtered out to keep topic volume low.
type PublisherSink struct {
	publisher scrape.Publisher
	topic     string
	logger    *zap.Logger
}

// LifecycleMessage is the JSON payload published per lifecycle event.
type LifecycleMessage struct {
	JobID string    `json:"job_id"`
	Stage string    `json:"stage"`
	TS    time.Time `json:"ts"`
	Note  string    `json:"note,omitempty"`
}

// NewPublisherSink constructs a PublisherSink for the provided topic.
func NewPublisherSink(publisher scrape.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes the lifecycle events in the batch. It returns the first
// publish error so the hub can log it.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StagePageFetched, progress.StagePageFailed:
			continue
		}
		msg := LifecycleMessage{
			JobID: evt.JobID,
			Stage: string(evt.Stage),
			TS:    evt.TS,
			Note:  evt.Note,
		}
		if _, err := s.publisher.Publish(ctx, s.topic, msg); err != nil {
			return fmt.Errorf("publish lifecycle event: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
