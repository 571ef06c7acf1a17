// Package metrics defines the observability hooks the pipeline records:
// build outcomes, stream relay activity, archive operations, and lock
// contention.
package metrics

import "time"

// BuildOutcomeLabel enumerates terminal build statuses.
type BuildOutcomeLabel string

const (
	BuildSuccess   BuildOutcomeLabel = "success"
	BuildFailed    BuildOutcomeLabel = "failed"
	BuildCancelled BuildOutcomeLabel = "cancelled"
)

// Recorder defines observability hooks for the build and archive paths.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	IncBuildOutcome(outcome BuildOutcomeLabel)
	ObserveBuildDuration(d time.Duration)
	IncStreamEvent(kind string) // kind: progress|failure|keepalive
	IncLockContention()         // a build request denied by the rate limit
	IncArchiveOp(op string, success bool)
	ObserveUploadBytes(resource string, bytes int64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)   {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)  {}
func (NoopRecorder) IncStreamEvent(string)               {}
func (NoopRecorder) IncLockContention()                  {}
func (NoopRecorder) IncArchiveOp(string, bool)           {}
func (NoopRecorder) ObserveUploadBytes(string, int64)    {}
