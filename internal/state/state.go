// Package state holds the process-wide runtime gauges and flags shared
// between pipeline stages.
//
// Every field is a single-writer/multi-reader atomic: the capture goroutine
// writes MicLevel, the playback controller writes SpeechPlaying and
// SpeechLevel, the interaction loop writes everything else. Readers tolerate
// a stale value of a fast-changing scalar, so no lock is involved anywhere.
package state

import (
	"math"
	"sync/atomic"
)

// Mode is the current application mode, owned by the interaction loop.
type Mode int32

const (
	// ModeIdle waits for the wake word; speech that does not match it is
	// discarded.
	ModeIdle Mode = iota

	// ModeChat submits finished utterances to the LLM.
	ModeChat

	// ModeTranscribe appends finished utterances to the transcript sink
	// without submitting anything.
	ModeTranscribe

	// ModeNote stores finished utterances as notes.
	ModeNote

	// ModeCommand treats every utterance as a spoken command.
	ModeCommand

	// ModePaused ignores speech entirely until resumed.
	ModePaused
)

// String returns the lowercase mode name used in logs and commands.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeChat:
		return "chat"
	case ModeTranscribe:
		return "transcribe"
	case ModeNote:
		return "note"
	case ModeCommand:
		return "command"
	case ModePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ParseMode maps a spoken or configured mode name to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "idle":
		return ModeIdle, true
	case "chat":
		return ModeChat, true
	case "transcribe":
		return ModeTranscribe, true
	case "note":
		return ModeNote, true
	case "command":
		return ModeCommand, true
	case "paused":
		return ModePaused, true
	default:
		return 0, false
	}
}

// Runtime is the shared runtime state. The zero value is ready to use:
// chat mode, mic open, TTS enabled.
type Runtime struct {
	micLevel    atomicFloat32
	speechLevel atomicFloat32

	speechPlaying atomic.Bool
	micMuted      atomic.Bool
	ttsEnabled    atomic.Bool // stored inverted so the zero value means enabled
	crosstalk     atomic.Bool

	mode atomic.Int32
}

// NewRuntime returns a Runtime in the given starting mode.
func NewRuntime(mode Mode) *Runtime {
	r := &Runtime{}
	r.mode.Store(int32(mode))
	return r
}

// MicLevel returns the most recent capture RMS level.
func (r *Runtime) MicLevel() float32 { return r.micLevel.Load() }

// SetMicLevel records the capture RMS level. Called only by the capture
// goroutine.
func (r *Runtime) SetMicLevel(v float32) { r.micLevel.Store(v) }

// SpeechLevel returns the most recent playback RMS level.
func (r *Runtime) SpeechLevel() float32 { return r.speechLevel.Load() }

// SetSpeechLevel records the playback RMS level. Called only by the playback
// controller.
func (r *Runtime) SetSpeechLevel(v float32) { r.speechLevel.Store(v) }

// SpeechPlaying reports whether TTS audio is currently playing.
func (r *Runtime) SpeechPlaying() bool { return r.speechPlaying.Load() }

// SetSpeechPlaying is called only by the playback controller.
func (r *Runtime) SetSpeechPlaying(v bool) { r.speechPlaying.Store(v) }

// MicMuted reports whether the microphone is muted (a VAD-gating decision;
// capture keeps running so the level meter stays live).
func (r *Runtime) MicMuted() bool { return r.micMuted.Load() }

// SetMicMuted is called only by the interaction loop.
func (r *Runtime) SetMicMuted(v bool) { r.micMuted.Store(v) }

// TTSEnabled reports whether responses are spoken aloud.
func (r *Runtime) TTSEnabled() bool { return !r.ttsEnabled.Load() }

// SetTTSEnabled is called only by the interaction loop.
func (r *Runtime) SetTTSEnabled(v bool) { r.ttsEnabled.Store(!v) }

// CrosstalkEnabled reports whether the mic stays live during playback for
// ducking and barge-in.
func (r *Runtime) CrosstalkEnabled() bool { return r.crosstalk.Load() }

// SetCrosstalkEnabled is called only by the interaction loop.
func (r *Runtime) SetCrosstalkEnabled(v bool) { r.crosstalk.Store(v) }

// Mode returns the current application mode.
func (r *Runtime) Mode() Mode { return Mode(r.mode.Load()) }

// SetMode is called only by the interaction loop.
func (r *Runtime) SetMode(m Mode) { r.mode.Store(int32(m)) }

// atomicFloat32 stores a float32 bit-cast into a uint32, the usual trick for
// lock-free float gauges.
type atomicFloat32 struct {
	bits atomic.Uint32
}

func (a *atomicFloat32) Load() float32 {
	return math.Float32frombits(a.bits.Load())
}

func (a *atomicFloat32) Store(v float32) {
	a.bits.Store(math.Float32bits(v))
}
