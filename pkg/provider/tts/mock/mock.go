// Package mock provides a test double for the tts package.
package mock

import (
	"context"
	"sync"

	"github.com/harkvoice/hark/pkg/audio"
	"github.com/harkvoice/hark/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesizer.Synthesize.
type SynthesizeCall struct {
	Sentence string
}

// Synthesizer is a mock implementation of tts.Synthesizer. The zero value
// returns a short silent sample block for every sentence.
type Synthesizer struct {
	mu sync.Mutex

	// Samples, when non-nil, is returned from every call. When nil, a block
	// of SamplesPerCall zeros is returned.
	Samples []float32

	// SamplesPerCall sizes the default silent block. Zero means 160 samples
	// (10 ms at 16 kHz).
	SamplesPerCall int

	// Rate is the reported sample rate. Zero means audio.CanonicalRate.
	Rate int

	// Err, if non-nil, is returned by every call.
	Err error

	// ErrFor lists sentences that fail; others succeed. Checked before Err.
	ErrFor map[string]error

	// Calls records every invocation.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns the scripted samples.
func (s *Synthesizer) Synthesize(ctx context.Context, sentence string) ([]float32, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, SynthesizeCall{Sentence: sentence})

	if err, ok := s.ErrFor[sentence]; ok && err != nil {
		return nil, 0, err
	}
	if s.Err != nil {
		return nil, 0, s.Err
	}

	rate := s.Rate
	if rate == 0 {
		rate = audio.CanonicalRate
	}
	if s.Samples != nil {
		return s.Samples, rate, nil
	}
	n := s.SamplesPerCall
	if n == 0 {
		n = 160
	}
	return make([]float32, n), rate, nil
}

// Sentences returns the sentences synthesized so far, in order. Thread-safe.
func (s *Synthesizer) Sentences() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		out[i] = c.Sentence
	}
	return out
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
