package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// sets RestartNeeded.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InteractionChanged is set when any interaction knob the loop reads
	// per-utterance changed (wake word, stop phrases, commands, crosstalk,
	// timings).
	InteractionChanged bool
	NewInteraction     InteractionConfig

	// RestartNeeded is set when a change cannot be applied live
	// (capture source, providers, notes store, record dir, metrics addr).
	RestartNeeded bool
}

// Changed reports whether the diff carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.InteractionChanged || d.RestartNeeded
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	if !interactionEqual(old.Interaction, new.Interaction) {
		d.InteractionChanged = true
		d.NewInteraction = new.Interaction
	}

	if old.Capture != new.Capture ||
		old.Playback != new.Playback ||
		old.VAD != new.VAD ||
		old.Transcribe != new.Transcribe ||
		old.Session != new.Session ||
		!providersEqual(old.Providers, new.Providers) ||
		old.Notes != new.Notes ||
		old.Record != new.Record ||
		old.Transcript != new.Transcript ||
		old.Metrics != new.Metrics ||
		old.Log.Format != new.Log.Format {
		d.RestartNeeded = true
	}

	return d
}

func interactionEqual(a, b InteractionConfig) bool {
	return a.AutoSubmitDelay == b.AutoSubmitDelay &&
		a.WakeWord == b.WakeWord &&
		a.RequireWake == b.RequireWake &&
		a.WakeWindow == b.WakeWindow &&
		a.Crosstalk == b.Crosstalk &&
		a.DuckVolume == b.DuckVolume &&
		a.MinBargeIn == b.MinBargeIn &&
		slices.Equal(a.StopPhrases, b.StopPhrases) &&
		slices.Equal(a.Commands, b.Commands)
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.Embeddings, b.Embeddings) &&
		chainEqual(a.STT, b.STT) &&
		chainEqual(a.LLM, b.LLM) &&
		chainEqual(a.TTS, b.TTS)
}

func chainEqual(a, b []ProviderEntry) bool {
	return slices.EqualFunc(a, b, entryEqual)
}

// entryEqual ignores Options. Provider factories only run at startup, so
// an options-only edit still needs a restart; it just is not detected here.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
