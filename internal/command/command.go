// Package command interprets spoken control phrases on final transcripts.
//
// Resolution order is fixed: stop phrases first (they must win even
// mid-playback), then the builtin mode and toggle phrases, then
// user-configured custom commands, and finally pass-through — the text is
// ordinary input for the current mode.
package command

import (
	"strings"

	"github.com/harkvoice/hark/internal/state"
	"github.com/harkvoice/hark/internal/wake"
)

// Kind classifies what a transcript turned out to be.
type Kind int

const (
	// PassThrough means the text is not a command; handle it as input.
	PassThrough Kind = iota

	// Stop halts playback and cancels the in-flight response.
	Stop

	// SetMode switches the application mode.
	SetMode

	// Toggle flips one of the runtime switches.
	Toggle

	// Custom carries a user-configured payload for an external hook.
	Custom
)

// Switch identifies a runtime toggle target.
type Switch int

const (
	SwitchMic Switch = iota
	SwitchTTS
	SwitchWake
	SwitchCrosstalk
)

// Result is the interpretation of one transcript.
type Result struct {
	Kind Kind

	// Mode is set when Kind is SetMode.
	Mode state.Mode

	// Target and On are set when Kind is Toggle.
	Target Switch
	On     bool

	// Payload is set when Kind is Custom.
	Payload string
}

// CustomCommand maps a spoken phrase to an action string from the config
// file. Actions take the form "mode:<name>", "toggle:<switch>:<on|off>", or
// "custom:<payload>".
type CustomCommand struct {
	Phrase string
	Action string
}

// builtin pairs a spoken phrase with its fixed interpretation.
type builtin struct {
	phrase string
	result Result
}

var builtins = []builtin{
	{"chat mode", Result{Kind: SetMode, Mode: state.ModeChat}},
	{"transcribe mode", Result{Kind: SetMode, Mode: state.ModeTranscribe}},
	{"note mode", Result{Kind: SetMode, Mode: state.ModeNote}},
	{"command mode", Result{Kind: SetMode, Mode: state.ModeCommand}},
	{"go to sleep", Result{Kind: SetMode, Mode: state.ModePaused}},
	{"pause listening", Result{Kind: SetMode, Mode: state.ModePaused}},
	{"wake up", Result{Kind: SetMode, Mode: state.ModeChat}},
	{"resume listening", Result{Kind: SetMode, Mode: state.ModeChat}},

	{"mute microphone", Result{Kind: Toggle, Target: SwitchMic, On: true}},
	{"unmute microphone", Result{Kind: Toggle, Target: SwitchMic, On: false}},
	{"disable voice", Result{Kind: Toggle, Target: SwitchTTS, On: false}},
	{"enable voice", Result{Kind: Toggle, Target: SwitchTTS, On: true}},
	{"disable wake word", Result{Kind: Toggle, Target: SwitchWake, On: false}},
	{"enable wake word", Result{Kind: Toggle, Target: SwitchWake, On: true}},
	{"disable crosstalk", Result{Kind: Toggle, Target: SwitchCrosstalk, On: false}},
	{"enable crosstalk", Result{Kind: Toggle, Target: SwitchCrosstalk, On: true}},
}

// Processor resolves transcripts against stop phrases, builtins, and custom
// commands. It is stateless and safe for concurrent use.
type Processor struct {
	stopPhrases []string
	custom      []CustomCommand
}

// New creates a Processor. stopPhrases defaults to "stop" and "stop talking"
// when empty.
func New(stopPhrases []string, custom []CustomCommand) *Processor {
	if len(stopPhrases) == 0 {
		stopPhrases = []string{"stop", "stop talking"}
	}
	return &Processor{stopPhrases: stopPhrases, custom: custom}
}

// StopPhrases returns the configured stop phrases.
func (p *Processor) StopPhrases() []string { return p.stopPhrases }

// IsStop reports whether text matches a stop phrase. Matching is fuzzy with
// the same tolerance as the wake word, since a shouted "stop" over playback
// transcribes unreliably.
func (p *Processor) IsStop(text string) bool {
	for _, phrase := range p.stopPhrases {
		if wake.FuzzyPhrase(text, phrase) {
			return true
		}
	}
	return false
}

// Process interprets one transcript.
func (p *Processor) Process(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Kind: PassThrough}
	}

	if p.IsStop(trimmed) {
		return Result{Kind: Stop}
	}

	for _, b := range builtins {
		if wake.FuzzyPhrase(trimmed, b.phrase) {
			return b.result
		}
	}

	for _, c := range p.custom {
		if !wake.FuzzyPhrase(trimmed, c.Phrase) {
			continue
		}
		if r, ok := parseAction(c.Action); ok {
			return r
		}
		// A malformed action string is a config bug; fall through so the
		// text is at least not swallowed.
	}

	return Result{Kind: PassThrough}
}

// parseAction decodes a custom command action string.
func parseAction(action string) (Result, bool) {
	switch {
	case strings.HasPrefix(action, "mode:"):
		m, ok := state.ParseMode(strings.TrimPrefix(action, "mode:"))
		if !ok {
			return Result{}, false
		}
		return Result{Kind: SetMode, Mode: m}, true

	case strings.HasPrefix(action, "toggle:"):
		parts := strings.SplitN(strings.TrimPrefix(action, "toggle:"), ":", 2)
		if len(parts) != 2 {
			return Result{}, false
		}
		var target Switch
		switch parts[0] {
		case "mic":
			target = SwitchMic
		case "tts":
			target = SwitchTTS
		case "wake":
			target = SwitchWake
		case "crosstalk":
			target = SwitchCrosstalk
		default:
			return Result{}, false
		}
		switch parts[1] {
		case "on":
			return Result{Kind: Toggle, Target: target, On: true}, true
		case "off":
			return Result{Kind: Toggle, Target: target, On: false}, true
		}
		return Result{}, false

	case strings.HasPrefix(action, "custom:"):
		return Result{Kind: Custom, Payload: strings.TrimPrefix(action, "custom:")}, true
	}
	return Result{}, false
}
