// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that workers use to report run progress. Page events batch on a
// background goroutine; run lifecycle transitions flush immediately. Batches
// fan out to pluggable sinks such as Prometheus metrics or a pub/sub publisher,
// and events lost to backpressure are accounted per run.
package progress
