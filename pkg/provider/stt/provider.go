// Package stt defines the speech-to-text provider contract.
//
// Transcription in hark is batch-shaped: the pipeline re-transcribes the
// accumulated utterance audio at a fixed preview cadence while speech is
// ongoing, and once more over the complete utterance when it closes. Both
// call sites hit the same Transcriber concurrently, so implementations must
// be safe for concurrent use.
package stt

import "context"

// Transcriber converts a block of mono float32 samples at 16 kHz into text.
//
// Transcribe must be safe to call concurrently: preview requests and the
// final request for an utterance can overlap. An empty result with a nil
// error means the audio contained no recognisable speech.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}
