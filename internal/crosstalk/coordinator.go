// Package crosstalk coordinates the microphone and the speaker when both
// are live at once.
//
// Normally the VAD gate drops mic input while the assistant is talking.
// With crosstalk enabled the mic stays open during playback and the
// coordinator arbitrates: speech onset ducks the playback volume, a stop
// phrase cuts playback without submitting anything, and a sustained
// utterance that is not a stop phrase is a barge-in — playback stops and
// the transcript becomes a fresh submission.
package crosstalk

import (
	"context"
	"log/slog"
	"time"

	"github.com/harkvoice/hark/internal/command"
	"github.com/harkvoice/hark/internal/speech"
	"github.com/harkvoice/hark/internal/state"
)

// Action is the coordinator's verdict on an utterance spoken over playback.
type Action int

const (
	// ActionIgnore drops the utterance: playback was not live when it
	// started, or it was too short to count as a barge-in.
	ActionIgnore Action = iota

	// ActionStop cuts playback; the utterance is not submitted.
	ActionStop

	// ActionBargeIn cuts playback and hands the transcript to the caller
	// as a new submission.
	ActionBargeIn
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionBargeIn:
		return "barge-in"
	default:
		return "ignore"
	}
}

// Config tunes the coordinator.
type Config struct {
	// MinBargeIn is the shortest utterance treated as a barge-in rather
	// than background noise. Zero means 600ms.
	MinBargeIn time.Duration
}

// Metrics receives coordinator telemetry. May be nil.
type Metrics interface {
	BargeIn(ctx context.Context)
}

// Coordinator arbitrates mic input that overlaps assistant playback. It is
// driven by the interaction loop and is not safe for concurrent use.
type Coordinator struct {
	rt     *state.Runtime
	speech *speech.Controller
	cmds   *command.Processor
	cfg    Config
	log    *slog.Logger
	met    Metrics

	engaged bool
}

// NewCoordinator creates a Coordinator. met may be nil.
func NewCoordinator(rt *state.Runtime, sp *speech.Controller, cmds *command.Processor, cfg Config, log *slog.Logger, met Metrics) *Coordinator {
	if cfg.MinBargeIn <= 0 {
		cfg.MinBargeIn = 600 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{rt: rt, speech: sp, cmds: cmds, cfg: cfg, log: log, met: met}
}

// Engaged reports whether overlapping speech is currently being tracked.
func (c *Coordinator) Engaged() bool { return c.engaged }

// OnSpeechStart marks the beginning of an utterance. When crosstalk is
// enabled and playback is live, the playback volume ducks until the
// utterance resolves.
func (c *Coordinator) OnSpeechStart() {
	if !c.rt.CrosstalkEnabled() || !c.rt.SpeechPlaying() {
		return
	}
	c.engaged = true
	c.speech.SetDucked(true)
	c.log.Debug("crosstalk speech onset, ducking playback")
}

// OnAbandoned resolves a tracked utterance that never produced a final
// (too short, or transcription failed). Playback volume is restored.
func (c *Coordinator) OnAbandoned() {
	if !c.engaged {
		return
	}
	c.engaged = false
	c.speech.SetDucked(false)
}

// Resolve decides what to do with the final transcript of an utterance that
// began over playback. It restores the playback volume, then:
//
//   - a stop phrase stops playback and returns ActionStop;
//   - an utterance at least MinBargeIn long stops playback and returns
//     ActionBargeIn, leaving submission to the caller;
//   - anything shorter is ActionIgnore.
//
// Playback may have drained naturally while the utterance was in flight;
// a sustained utterance is then still ActionBargeIn (the caller should
// submit it), but nothing is stopped and no interruption is counted.
//
// Resolve returns ActionIgnore for utterances the coordinator never engaged
// with, so the caller can route those through the normal path.
func (c *Coordinator) Resolve(ctx context.Context, text string, dur time.Duration) Action {
	if !c.engaged {
		return ActionIgnore
	}
	c.engaged = false
	c.speech.SetDucked(false)

	playing := c.rt.SpeechPlaying()

	if c.cmds.IsStop(text) {
		if playing {
			c.speech.Stop()
			c.log.Info("crosstalk stop phrase, halting playback", "text", text)
		}
		return ActionStop
	}
	if dur < c.cfg.MinBargeIn {
		c.log.Debug("crosstalk utterance too short, ignoring", "dur", dur)
		return ActionIgnore
	}
	if !playing {
		c.log.Debug("playback already finished, passing utterance through", "dur", dur)
		return ActionBargeIn
	}

	c.speech.Stop()
	if c.met != nil {
		c.met.BargeIn(ctx)
	}
	c.log.Info("barge-in, interrupting playback", "dur", dur)
	return ActionBargeIn
}
