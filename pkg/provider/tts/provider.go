// Package tts defines the speech-synthesis provider contract.
//
// Synthesis is sentence-at-a-time: the streaming session queues each
// completed sentence as soon as it is detected, and the playback controller
// calls Synthesize per sentence in submission order. A failed sentence is
// skipped, not fatal.
package tts

import "context"

// Synthesizer converts one sentence of text into mono float32 samples.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation: a cancelled synthesis returns promptly with ctx.Err().
type Synthesizer interface {
	// Synthesize returns the rendered samples and their sample rate.
	Synthesize(ctx context.Context, sentence string) (samples []float32, sampleRate int, err error)
}
