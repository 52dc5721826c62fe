// Package progress defines the event structures emitted by crawl runs.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobCreated   Stage = "JOB_CREATED"
	StageJobStarted   Stage = "JOB_STARTED"
	StageJobPaused    Stage = "JOB_PAUSED"
	StageJobResumed   Stage = "JOB_RESUMED"
	StageJobCompleted Stage = "JOB_COMPLETED"
	StageJobFailed    Stage = "JOB_FAILED"
	StageJobStopped   Stage = "JOB_STOPPED"
	StagePageFetched  Stage = "PAGE_FETCHED"
	StagePageFailed   Stage = "PAGE_FAILED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of run progress.
type Event struct {
	// JobID identifies the run the event belongs to.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// Site optionally scopes page events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// Depth is the crawl depth of the page for page events.
	Depth int
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures fetch latency for page events and wall time for
	// terminal job events.
	Dur time.Duration
	// Score carries the relevance score assigned to a fetched page.
	Score float64
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobCreated, StageJobStarted, StageJobPaused, StageJobResumed,
		StageJobCompleted, StageJobFailed, StageJobStopped:
	case StagePageFetched:
		if e.Site == "" {
			return errors.New("page fetched requires site")
		}
		if e.StatusClass == "" {
			return errors.New("page fetched requires status class")
		}
	case StagePageFailed:
		if e.Site == "" {
			return errors.New("page failed requires site")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Lifecycle reports whether the stage is a run state transition rather than
// per-page progress. Lifecycle events bypass batching delay.
func (s Stage) Lifecycle() bool {
	switch s {
	case StagePageFetched, StagePageFailed:
		return false
	default:
		return true
	}
}

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	switch s {
	case StageJobCompleted, StageJobFailed, StageJobStopped:
		return true
	default:
		return false
	}
}

// ClassifyStatus groups HTTP status codes for page events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
