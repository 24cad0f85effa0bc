package resilience

import (
	"context"

	"github.com/harkvoice/hark/pkg/provider/stt"
)

// Transcriber implements [stt.Transcriber] with automatic failover across
// multiple transcription backends. Each backend has its own circuit breaker,
// so a flaky primary endpoint stops being tried once it trips and previews
// and finals flow through the next healthy backend instead.
type Transcriber struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// NewTranscriber creates a [Transcriber] with primary as the preferred
// backend.
func NewTranscriber(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *Transcriber {
	return &Transcriber{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription backend.
func (t *Transcriber) AddFallback(name string, tr stt.Transcriber) {
	t.group.AddFallback(name, tr)
}

// Transcribe runs the request against the first healthy backend. Every call
// participates in failover independently, so one failed preview does not
// pin subsequent finals to the fallback.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return ExecuteWithResult(t.group, func(tr stt.Transcriber) (string, error) {
		return tr.Transcribe(ctx, samples)
	})
}
