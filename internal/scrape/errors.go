package scrape

import "errors"

// Sentinel errors forming the failure taxonomy. Callers classify with
// errors.Is; wrap with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrInvalidState rejects an illegal job transition. Surfaced to the
	// caller, never retried.
	ErrInvalidState = errors.New("invalid job state transition")

	// ErrInvalidConfig rejects a job configuration at creation time.
	ErrInvalidConfig = errors.New("invalid job configuration")

	// ErrNotFound indicates a missing job or page.
	ErrNotFound = errors.New("not found")

	// ErrUnreachable is a transient fetch failure (connection refused, DNS,
	// hard HTTP errors). Retried with bounded backoff.
	ErrUnreachable = errors.New("source unreachable")

	// ErrTimeout is a fetch that exceeded its deadline. Retried.
	ErrTimeout = errors.New("fetch timed out")

	// ErrRateLimited is a throttling response from the source. Retried with
	// a longer backoff than ErrUnreachable.
	ErrRateLimited = errors.New("rate limited by source")

	// ErrUnsupported means no collector is registered for the source kind.
	ErrUnsupported = errors.New("source kind not supported")

	// ErrExtractionFailed means content was fetched but yielded no usable
	// text. Recorded per item; the run continues.
	ErrExtractionFailed = errors.New("content extraction failed")

	// ErrEmbeddingFailed is non-fatal: the page is kept without semantic
	// searchability.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrStorageUnavailable is fatal for the run: the job transitions to
	// failed and the error is surfaced.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// TransientFetch reports whether err is a retryable fetch failure.
func TransientFetch(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
