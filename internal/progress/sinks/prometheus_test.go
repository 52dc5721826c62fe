package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/webintel/webintel/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		{JobID: "run-1", TS: time.Now(), Stage: progress.StageJobStarted},
		{
			JobID:       "run-1",
			TS:          time.Now().Add(10 * time.Second),
			Stage:       progress.StagePageFetched,
			Site:        "example.com",
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{
			JobID: "run-1",
			TS:    time.Now().Add(11 * time.Second),
			Stage: progress.StagePageFailed,
			Site:  "example.com",
			Note:  "rate limited",
		},
		{JobID: "run-1", TS: time.Now().Add(15 * time.Second), Stage: progress.StageJobCompleted, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("failed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))

	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.pageFetches.WithLabelValues("example.com", string(progress.Status2xx))),
		1e-9,
	)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pageFailures.WithLabelValues("example.com")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "scrape_fetch_duration_seconds"))
}

func TestPrometheusSinkTracksActiveRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Stage: progress.StageJobStarted},
		{JobID: "b", TS: now, Stage: progress.StageJobStarted},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Stage: progress.StageJobStopped},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("stopped")))
}
