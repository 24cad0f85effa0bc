// Package vad segments the capture stream into utterances.
//
// An [Engine] scores each frame with a speech probability; the [Segmenter]
// applies hysteresis, onset confirmation and a silence hangover on top of
// those scores to decide where utterances begin and end. The two are split
// so the scoring model can be swapped without touching the boundary logic.
package vad

import "github.com/harkvoice/hark/pkg/audio"

// Engine scores a single frame with a speech probability in [0, 1].
//
// Engines may keep small internal smoothing state; that state is private to
// the instance and only ever touched from the segmentation goroutine, so
// implementations need not be safe for concurrent use.
type Engine interface {
	SpeechProbability(frame audio.Frame) float32

	// Reset clears any internal smoothing state. Called when segmentation
	// is suspended (mute, playback) so stale state cannot bleed into the
	// next utterance.
	Reset()
}

// Energy is a level-based engine: the reported "probability" is the frame's
// smoothed RMS level, to be compared against RMS-scale thresholds. It is the
// fallback when no model-based engine is available and works well enough in
// quiet rooms.
type Energy struct {
	// Smoothing is the exponential moving average coefficient applied to
	// frame RMS, in (0, 1]. 1 means no smoothing. Zero value means 0.7.
	Smoothing float32

	level   float32
	started bool
}

// SpeechProbability implements Engine.
func (e *Energy) SpeechProbability(frame audio.Frame) float32 {
	alpha := e.Smoothing
	if alpha <= 0 || alpha > 1 {
		alpha = 0.7
	}
	if !e.started {
		e.level = frame.RMS
		e.started = true
	} else {
		e.level = alpha*frame.RMS + (1-alpha)*e.level
	}
	return e.level
}

// Reset implements Engine.
func (e *Energy) Reset() {
	e.level = 0
	e.started = false
}

var _ Engine = (*Energy)(nil)
