package resilience

import (
	"context"

	"github.com/harkvoice/hark/pkg/provider/tts"
)

// Synthesizer implements [tts.Synthesizer] with automatic failover across
// multiple synthesis backends. Failover is per sentence: each Synthesize
// call independently picks the first healthy backend, so a voice outage
// mid-response degrades to the fallback voice instead of silence.
type Synthesizer struct {
	group *FallbackGroup[tts.Synthesizer]
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a [Synthesizer] with primary as the preferred
// backend.
func NewSynthesizer(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *Synthesizer {
	return &Synthesizer{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis backend.
func (s *Synthesizer) AddFallback(name string, synth tts.Synthesizer) {
	s.group.AddFallback(name, synth)
}

// Synthesize renders the sentence with the first healthy backend.
func (s *Synthesizer) Synthesize(ctx context.Context, sentence string) ([]float32, int, error) {
	type rendered struct {
		samples []float32
		rate    int
	}
	out, err := ExecuteWithResult(s.group, func(synth tts.Synthesizer) (rendered, error) {
		samples, rate, err := synth.Synthesize(ctx, sentence)
		return rendered{samples: samples, rate: rate}, err
	})
	return out.samples, out.rate, err
}
