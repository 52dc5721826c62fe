package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webintel/webintel/internal/progress"
	pubmemory "github.com/webintel/webintel/internal/publisher/memory"
)

func TestPublisherSinkForwardsLifecycleEvents(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	sink := NewPublisherSink(pub, "run-events", nil)

	now := time.Now().UTC()
	batch := []progress.Event{
		{JobID: "run-1", TS: now, Stage: progress.StageJobStarted},
		{JobID: "run-1", TS: now, Stage: progress.StagePageFetched, Site: "example.com", StatusClass: progress.Status2xx},
		{JobID: "run-1", TS: now, Stage: progress.StageJobFailed, Note: "storage unavailable"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	msgs := pub.MessagesForTopic("run-events")
	require.Len(t, msgs, 2, "page events are not published")

	first, ok := msgs[0].Payload.(LifecycleMessage)
	require.True(t, ok)
	require.Equal(t, "run-1", first.JobID)
	require.Equal(t, string(progress.StageJobStarted), first.Stage)

	last, ok := msgs[1].Payload.(LifecycleMessage)
	require.True(t, ok)
	require.Equal(t, "storage unavailable", last.Note)
}

func TestPublisherSinkNilPublisherIsNoop(t *testing.T) {
	t.Parallel()
	sink := NewPublisherSink(nil, "run-events", nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "run-1", TS: time.Now(), Stage: progress.StageJobStarted},
	}))
}
