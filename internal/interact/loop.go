// Package interact runs the interaction state machine.
//
// The loop is the sole owner of the input buffer, the auto-submit deadline,
// and the wake-word conversation window. Every input — previews, finals,
// keyboard events, segmentation notifications, and a periodic tick —
// arrives over a channel and is handled on one goroutine, so no state here
// needs locking.
//
// The auto-submit timer is deliberately blunt:
//
//   - any preview cancels it, unconditionally;
//   - any final appends to the buffer and restarts the full countdown,
//     even if one was already running;
//   - any keyboard edit cancels it and never restarts it;
//   - Enter submits immediately;
//   - expiry is detected by the tick, not by a per-deadline timer.
//
// Restart-not-resume matters: two utterances separated by a pause must each
// get a full countdown from their own end, or the second would inherit a
// nearly-expired deadline from the first.
package interact

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harkvoice/hark/internal/command"
	"github.com/harkvoice/hark/internal/crosstalk"
	"github.com/harkvoice/hark/internal/state"
	"github.com/harkvoice/hark/internal/transcribe"
	"github.com/harkvoice/hark/internal/vad"
	"github.com/harkvoice/hark/internal/wake"
)

// crossGracePeriod bounds how long a crosstalk engagement may wait for its
// final transcript before the duck is released. Covers the longest possible
// utterance plus a transcription retry.
const crossGracePeriod = 20 * time.Second

// Submitter receives completed input. Implemented by session.Manager.
type Submitter interface {
	Submit(ctx context.Context, text string)
	Stop()
}

// NoteStore persists finals spoken in note mode and answers recall
// queries. Implemented by the pgvector-backed store.
type NoteStore interface {
	Save(ctx context.Context, text string) error

	// Recall returns the stored note texts most similar to query.
	Recall(ctx context.Context, query string, topK int) ([]string, error)
}

// TranscriptSink receives finals spoken in transcribe mode.
type TranscriptSink interface {
	Append(text string) error
}

// Config tunes the loop.
type Config struct {
	// AutoSubmitDelay is the quiet period after a final before the buffer
	// submits itself. Zero means 1.5s.
	AutoSubmitDelay time.Duration

	// RequireWake gates idle-mode input behind the wake word.
	RequireWake bool

	// WakeWindow is how long a conversation stays open after activity
	// before the wake word is required again. Zero means 60s.
	WakeWindow time.Duration

	// Tick is the poll interval for deadline expiry. Zero means 50ms.
	Tick time.Duration
}

// Deps carries the loop's collaborators. Channels may be nil when the
// corresponding input source does not exist; a nil channel never fires.
type Deps struct {
	Runtime   *state.Runtime
	Previews  <-chan transcribe.Result
	Finals    <-chan transcribe.Result
	Keys      <-chan KeyEvent
	VADEvents <-chan vad.EventType

	// ConfigUpdates delivers hot-reloaded settings. May be nil.
	ConfigUpdates <-chan Config

	Wake      *wake.Matcher
	Commands  *command.Processor
	Session   Submitter
	Crosstalk *crosstalk.Coordinator

	// Notes and Transcript may be nil; the corresponding modes then log
	// and drop their input.
	Notes      NoteStore
	Transcript TranscriptSink

	Log *slog.Logger
}

// Loop is the interaction state machine. Construct with New, then call Run
// exactly once; no method is safe to call concurrently with Run.
type Loop struct {
	d   Deps
	cfg Config
	log *slog.Logger

	// now is swappable in tests.
	now func() time.Time

	buffer            string
	preview           string
	deadline          time.Time
	conversationUntil time.Time
	requireWake       bool
	crossGrace        time.Time
}

// New creates a Loop.
func New(d Deps, cfg Config) *Loop {
	cfg = withDefaults(cfg)
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Loop{
		d:           d,
		cfg:         cfg,
		log:         d.Log,
		now:         time.Now,
		requireWake: cfg.RequireWake,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.AutoSubmitDelay <= 0 {
		cfg.AutoSubmitDelay = 1500 * time.Millisecond
	}
	if cfg.WakeWindow <= 0 {
		cfg.WakeWindow = time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 50 * time.Millisecond
	}
	return cfg
}

// applyConfig hot-applies updated timing and gating knobs. The tick interval
// is fixed at construction; a changed Tick is ignored.
func (l *Loop) applyConfig(cfg Config) {
	cfg.Tick = l.cfg.Tick
	l.cfg = withDefaults(cfg)
	l.requireWake = l.cfg.RequireWake
	l.log.Info("interaction settings reloaded",
		"auto_submit_delay", l.cfg.AutoSubmitDelay,
		"require_wake", l.requireWake,
		"wake_window", l.cfg.WakeWindow)
}

// Run consumes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	tick := time.NewTicker(l.cfg.Tick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-l.d.Previews:
			l.handlePreview(res)
		case res := <-l.d.Finals:
			l.handleFinal(ctx, res)
		case ev := <-l.d.Keys:
			l.handleKey(ctx, ev)
		case t := <-l.d.VADEvents:
			l.handleVAD(t)
		case cfg := <-l.d.ConfigUpdates:
			l.applyConfig(cfg)
		case <-tick.C:
			l.handleTick(ctx)
		}
	}
}

// handlePreview cancels the auto-submit countdown. No state check, no text
// inspection: the user is audibly mid-utterance, so the buffer must not
// submit underneath them.
func (l *Loop) handlePreview(res transcribe.Result) {
	l.deadline = time.Time{}
	l.preview = res.Text
	l.log.Debug("preview", "utterance", res.UtteranceID, "text", res.Text)
}

func (l *Loop) handleFinal(ctx context.Context, res transcribe.Result) {
	l.preview = ""
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return
	}

	// An utterance spoken over playback belongs to the crosstalk
	// coordinator, whatever it resolves to.
	if l.d.Crosstalk != nil && l.d.Crosstalk.Engaged() {
		if l.d.Crosstalk.Resolve(ctx, text, res.Dur) == crosstalk.ActionBargeIn {
			l.buffer = ""
			l.deadline = time.Time{}
			l.touchConversation()
			l.d.Session.Submit(ctx, text)
		}
		return
	}

	now := l.now()
	mode := l.d.Runtime.Mode()

	if l.requireWake && mode == state.ModeChat && now.After(l.conversationUntil) {
		l.log.Info("conversation window expired")
		l.d.Runtime.SetMode(state.ModeIdle)
		mode = state.ModeIdle
	}
	if l.requireWake && mode == state.ModeIdle {
		rem, ok := l.d.Wake.Match(text)
		if !ok {
			l.log.Debug("no wake word, ignoring", "text", text)
			return
		}
		l.log.Info("wake word matched")
		l.d.Runtime.SetMode(state.ModeChat)
		l.touchConversation()
		mode = state.ModeChat
		text = rem
		if text == "" {
			return
		}
	}

	switch mode {
	case state.ModePaused:
		// Only a resume phrase gets through; everything else is asleep.
		if res := l.d.Commands.Process(text); res.Kind == command.SetMode {
			l.applyCommand(ctx, res)
		}

	case state.ModeTranscribe:
		if res := l.d.Commands.Process(text); res.Kind != command.PassThrough {
			l.applyCommand(ctx, res)
			return
		}
		l.appendTranscript(text)

	case state.ModeNote:
		if res := l.d.Commands.Process(text); res.Kind != command.PassThrough {
			l.applyCommand(ctx, res)
			return
		}
		if query, ok := recallQuery(text); ok {
			l.recallNotes(ctx, query)
			return
		}
		l.saveNote(ctx, text)

	case state.ModeCommand:
		res := l.d.Commands.Process(text)
		if res.Kind == command.PassThrough {
			l.log.Info("unrecognized command", "text", text)
			return
		}
		l.applyCommand(ctx, res)

	default: // Chat, or Idle with wake disabled
		if res := l.d.Commands.Process(text); res.Kind != command.PassThrough {
			l.applyCommand(ctx, res)
			return
		}
		l.appendFinal(text, now)
	}
}

// appendFinal grows the buffer and restarts the countdown from now. The
// deadline is overwritten even when already running.
func (l *Loop) appendFinal(text string, now time.Time) {
	if l.buffer == "" {
		l.buffer = text
	} else {
		l.buffer += " " + text
	}
	l.deadline = now.Add(l.cfg.AutoSubmitDelay)
	l.touchConversation()
	l.log.Debug("final appended", "buffer", l.buffer)
}

func (l *Loop) handleKey(ctx context.Context, ev KeyEvent) {
	l.deadline = time.Time{}

	switch ev.Kind {
	case KeyEnter:
		l.submit(ctx)
	case KeyRune:
		l.buffer += string(ev.Rune)
	case KeyBackspace:
		if r := []rune(l.buffer); len(r) > 0 {
			l.buffer = string(r[:len(r)-1])
		}
	}
}

func (l *Loop) handleVAD(t vad.EventType) {
	if t != vad.SpeechStart || l.d.Crosstalk == nil {
		return
	}
	l.d.Crosstalk.OnSpeechStart()
	if l.d.Crosstalk.Engaged() {
		l.crossGrace = l.now().Add(crossGracePeriod)
	}
}

func (l *Loop) handleTick(ctx context.Context) {
	now := l.now()

	if !l.deadline.IsZero() && !now.Before(l.deadline) {
		l.deadline = time.Time{}
		l.log.Info("auto-submit deadline reached")
		l.submit(ctx)
	}

	if l.requireWake && l.d.Runtime.Mode() == state.ModeChat &&
		l.buffer == "" && now.After(l.conversationUntil) {
		l.log.Info("conversation window expired")
		l.d.Runtime.SetMode(state.ModeIdle)
	}

	// A crosstalk engagement whose utterance never produced a final (too
	// short, transcription discarded) must not leave playback ducked.
	if l.d.Crosstalk != nil && l.d.Crosstalk.Engaged() && now.After(l.crossGrace) {
		l.d.Crosstalk.OnAbandoned()
	}
}

func (l *Loop) submit(ctx context.Context) {
	text := strings.TrimSpace(l.buffer)
	l.buffer = ""
	l.deadline = time.Time{}
	if text == "" {
		return
	}
	// A typed line starting with "/" is a command, not input. The keyboard
	// path never crosses the audio gate, so "/unmute microphone" works
	// while the microphone is muted and voiced commands cannot be heard.
	if cmd, ok := strings.CutPrefix(text, "/"); ok {
		res := l.d.Commands.Process(cmd)
		if res.Kind == command.PassThrough {
			l.log.Info("unrecognized command", "text", cmd)
			return
		}
		l.applyCommand(ctx, res)
		return
	}
	l.touchConversation()
	l.log.Info("submitting input", "chars", len(text))
	l.d.Session.Submit(ctx, text)
}

// applyCommand executes one interpreted control command, spoken or typed.
func (l *Loop) applyCommand(ctx context.Context, res command.Result) {
	switch res.Kind {
	case command.Stop:
		l.log.Info("stop command")
		l.d.Session.Stop()

	case command.SetMode:
		l.log.Info("mode switch", "mode", res.Mode)
		l.d.Runtime.SetMode(res.Mode)
		if res.Mode == state.ModeChat {
			l.touchConversation()
		}

	case command.Toggle:
		switch res.Target {
		case command.SwitchMic:
			l.log.Info("microphone mute", "muted", res.On)
			l.d.Runtime.SetMicMuted(res.On)
		case command.SwitchTTS:
			l.log.Info("voice output", "enabled", res.On)
			l.d.Runtime.SetTTSEnabled(res.On)
			if !res.On {
				l.d.Session.Stop()
			}
		case command.SwitchWake:
			l.log.Info("wake word requirement", "enabled", res.On)
			l.requireWake = res.On
		case command.SwitchCrosstalk:
			l.log.Info("crosstalk", "enabled", res.On)
			l.d.Runtime.SetCrosstalkEnabled(res.On)
		}

	case command.Custom:
		l.log.Info("custom command", "payload", res.Payload)
		l.d.Session.Submit(ctx, res.Payload)
	}
}

func (l *Loop) appendTranscript(text string) {
	if l.d.Transcript == nil {
		l.log.Warn("no transcript sink configured, dropping text")
		return
	}
	if err := l.d.Transcript.Append(text); err != nil {
		l.log.Error("transcript append failed", "error", err)
	}
}

// recallQuery detects the "recall ..." prefix in note mode, preserving the
// query's original casing.
func recallQuery(text string) (string, bool) {
	first, rest, ok := strings.Cut(text, " ")
	if !ok || !strings.EqualFold(first, "recall") {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

// recallNotes looks up matching notes and hands them to the model to read
// back.
func (l *Loop) recallNotes(ctx context.Context, query string) {
	if l.d.Notes == nil {
		l.log.Warn("no note store configured, cannot recall")
		return
	}
	texts, err := l.d.Notes.Recall(ctx, query, 3)
	if err != nil {
		l.log.Error("note recall failed", "error", err)
		return
	}
	if len(texts) == 0 {
		l.log.Info("no notes matched", "query", query)
		return
	}

	var b strings.Builder
	b.WriteString("Read these saved notes of mine back to me, briefly:\n")
	for _, t := range texts {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	l.d.Session.Submit(ctx, b.String())
}

func (l *Loop) saveNote(ctx context.Context, text string) {
	if l.d.Notes == nil {
		l.log.Warn("no note store configured, dropping note")
		return
	}
	if err := l.d.Notes.Save(ctx, text); err != nil {
		l.log.Error("note save failed", "error", err)
	}
}

func (l *Loop) touchConversation() {
	l.conversationUntil = l.now().Add(l.cfg.WakeWindow)
}
