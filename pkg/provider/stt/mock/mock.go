// Package mock provides a test double for the stt package.
//
// Use Transcriber to feed scripted transcription results and inspect which
// sample blocks were submitted.
//
// Example:
//
//	tr := &mock.Transcriber{Results: []string{"hello", "hello world"}}
//	text, _ := tr.Transcribe(ctx, samples)
package mock

import (
	"context"
	"sync"

	"github.com/harkvoice/hark/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio that was passed in.
	Samples []float32
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Results are returned in order by successive Transcribe calls. When
	// exhausted, the last entry repeats. When empty, Transcribe returns "".
	Results []string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Errs, if non-empty, overrides Err per call: call i returns Errs[i]
	// (nil entries mean success). Calls past the end fall back to Err.
	Errs []error

	// Delay optionally blocks each call until the context is done or the
	// duration elapses, for exercising slow-backend behaviour.
	Delay func(ctx context.Context) error

	// Calls records every invocation.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if t.Delay != nil {
		if err := t.Delay(ctx); err != nil {
			return "", err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make([]float32, len(samples))
	copy(cp, samples)
	idx := len(t.Calls)
	t.Calls = append(t.Calls, TranscribeCall{Samples: cp})

	if idx < len(t.Errs) {
		if err := t.Errs[idx]; err != nil {
			return "", err
		}
	} else if t.Err != nil {
		return "", t.Err
	}

	if len(t.Results) == 0 {
		return "", nil
	}
	if idx >= len(t.Results) {
		idx = len(t.Results) - 1
	}
	return t.Results[idx], nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
