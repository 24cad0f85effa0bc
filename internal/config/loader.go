package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":        {"elevenlabs", "coqui"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Logging
	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "" && !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	// Capture
	switch cfg.Capture.Kind {
	case "":
		errs = append(errs, errors.New("capture.kind is required"))
	case CaptureWS:
		if cfg.Capture.URL == "" {
			errs = append(errs, errors.New(`capture.url is required when capture.kind is "ws"`))
		}
	case CaptureFile:
		if cfg.Capture.Path == "" {
			errs = append(errs, errors.New(`capture.path is required when capture.kind is "file"`))
		}
	default:
		errs = append(errs, fmt.Errorf("capture.kind %q is invalid; valid values: ws, file", cfg.Capture.Kind))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is negative", cfg.Capture.SampleRate))
	}

	// VAD
	if !cfg.VAD.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("vad.engine %q is invalid; valid values: energy, none", cfg.VAD.Engine))
	}
	if cfg.VAD.EnterThreshold > 0 && cfg.VAD.ExitThreshold > 0 &&
		cfg.VAD.ExitThreshold >= cfg.VAD.EnterThreshold {
		errs = append(errs, fmt.Errorf("vad.exit_threshold %.4f must be below vad.enter_threshold %.4f",
			cfg.VAD.ExitThreshold, cfg.VAD.EnterThreshold))
	}

	// Transcription
	if cfg.Transcribe.PreviewInterval < 0 {
		errs = append(errs, errors.New("transcribe.preview_interval is negative"))
	}

	// Interaction
	if cfg.Interaction.AutoSubmitDelay < 0 {
		errs = append(errs, errors.New("interaction.auto_submit_delay is negative"))
	}
	if cfg.Interaction.RequireWake && strings.TrimSpace(cfg.Interaction.WakeWord) == "" {
		errs = append(errs, errors.New("interaction.wake_word is required when interaction.require_wake is set"))
	}
	if dv := cfg.Interaction.DuckVolume; dv < 0 || dv > 1 {
		errs = append(errs, fmt.Errorf("interaction.duck_volume %.2f is out of range [0, 1]", dv))
	}
	if cfg.Interaction.MinBargeIn < 0 {
		errs = append(errs, errors.New("interaction.min_barge_in is negative"))
	}
	for i, cc := range cfg.Interaction.Commands {
		prefix := fmt.Sprintf("interaction.commands[%d]", i)
		if strings.TrimSpace(cc.Phrase) == "" {
			errs = append(errs, fmt.Errorf("%s.phrase is required", prefix))
		}
		if !validAction(cc.Action) {
			errs = append(errs, fmt.Errorf("%s.action %q is invalid; expected mode:<name>, toggle:<switch>:<on|off>, or custom:<payload>", prefix, cc.Action))
		}
	}

	// Session
	if t := cfg.Session.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("session.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Session.MaxTokens < 0 {
		errs = append(errs, errors.New("session.max_tokens is negative"))
	}

	// Providers
	validateProviderChain("stt", cfg.Providers.STT, &errs)
	validateProviderChain("llm", cfg.Providers.LLM, &errs)
	validateProviderChain("tts", cfg.Providers.TTS, &errs)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if len(cfg.Providers.STT) == 0 {
		errs = append(errs, errors.New("providers.stt needs at least one entry"))
	}
	if len(cfg.Providers.LLM) == 0 {
		errs = append(errs, errors.New("providers.llm needs at least one entry"))
	}
	if len(cfg.Providers.TTS) == 0 {
		slog.Warn("no TTS provider configured; responses will be text-only")
	}

	// Notes needs embeddings to build vectors.
	if cfg.Notes.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("notes.postgres_dsn is set but providers.embeddings is not configured"))
	}
	if cfg.Notes.PostgresDSN == "" {
		slog.Warn("notes.postgres_dsn is empty; note mode will not be available")
	}

	// Record
	if cfg.Record.Enabled && cfg.Record.Dir == "" {
		errs = append(errs, errors.New("record.dir is required when record.enabled is set"))
	}

	return errors.Join(errs...)
}

// validAction reports whether s parses as a custom command action.
func validAction(s string) bool {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return false
	}
	switch kind {
	case "mode", "custom":
		return rest != ""
	case "toggle":
		name, state, ok := strings.Cut(rest, ":")
		return ok && name != "" && (state == "on" || state == "off")
	}
	return false
}

// validateProviderChain checks each entry of an ordered fallback chain.
func validateProviderChain(kind string, chain []ProviderEntry, errs *[]error) {
	for i, entry := range chain {
		if entry.Name == "" {
			*errs = append(*errs, fmt.Errorf("providers.%s[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, entry.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
