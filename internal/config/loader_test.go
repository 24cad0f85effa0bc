package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/harkvoice/hark/internal/config"
)

// validYAML keeps the interaction block last so tests can extend it by
// appending indented keys.
const validYAML = `
log:
  level: info
capture:
  kind: ws
  url: ws://localhost:8090/mic
  sample_rate: 48000
providers:
  stt:
    - name: whisper
      base_url: http://localhost:8081
  llm:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
  tts:
    - name: elevenlabs
      api_key: el-test
interaction:
  auto_submit_delay: 1.5s
  wake_word: hey hark
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Kind != config.CaptureWS {
		t.Errorf("capture.kind = %q, want %q", cfg.Capture.Kind, config.CaptureWS)
	}
	if cfg.Capture.SampleRate != 48000 {
		t.Errorf("capture.sample_rate = %d, want 48000", cfg.Capture.SampleRate)
	}
	if cfg.Interaction.AutoSubmitDelay != 1500*time.Millisecond {
		t.Errorf("auto_submit_delay = %v, want 1.5s", cfg.Interaction.AutoSubmitDelay)
	}
	if len(cfg.Providers.LLM) != 1 || cfg.Providers.LLM[0].Model != "gpt-4o-mini" {
		t.Errorf("providers.llm = %+v, want one gpt-4o-mini entry", cfg.Providers.LLM)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
bogus_section:
  whatever: 1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_CaptureKindRequired(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    - name: whisper
  llm:
    - name: openai
  tts:
    - name: coqui
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing capture.kind, got nil")
	}
	if !strings.Contains(err.Error(), "capture.kind") {
		t.Errorf("error should mention capture.kind, got: %v", err)
	}
}

func TestValidate_WSCaptureNeedsURL(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  kind: ws
providers:
  stt:
    - name: whisper
  llm:
    - name: openai
  tts:
    - name: coqui
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for ws capture without url, got nil")
	}
	if !strings.Contains(err.Error(), "capture.url") {
		t.Errorf("error should mention capture.url, got: %v", err)
	}
}

func TestValidate_ProvidersRequired(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  kind: file
  path: /tmp/audio.pcm
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty provider chains, got nil")
	}
	if !strings.Contains(err.Error(), "providers.stt") {
		t.Errorf("error should mention providers.stt, got: %v", err)
	}
	if !strings.Contains(err.Error(), "providers.llm") {
		t.Errorf("error should mention providers.llm, got: %v", err)
	}
}

func TestValidate_WakeWordRequiredWhenGated(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
  require_wake: true
`
	// Indentation above appends to the interaction block; wake_word is set
	// in validYAML, so strip it first.
	yaml = strings.Replace(yaml, "  wake_word: hey hark\n", "", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for require_wake without wake_word, got nil")
	}
	if !strings.Contains(err.Error(), "wake_word") {
		t.Errorf("error should mention wake_word, got: %v", err)
	}
}

func TestValidate_HysteresisOrdering(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
vad:
  enter_threshold: 0.01
  exit_threshold: 0.02
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for exit >= enter threshold, got nil")
	}
	if !strings.Contains(err.Error(), "exit_threshold") {
		t.Errorf("error should mention exit_threshold, got: %v", err)
	}
}

func TestValidate_VADEngine(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML + `
vad:
  engine: none
  chunk_fallback: 4s
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VAD.Engine != config.VADNone {
		t.Errorf("vad.engine = %q, want %q", cfg.VAD.Engine, config.VADNone)
	}
	if got := cfg.VAD.Segmenter().ChunkFallback; got != 4*time.Second {
		t.Errorf("chunk_fallback = %v, want 4s", got)
	}

	_, err = config.LoadFromReader(strings.NewReader(validYAML + `
vad:
  engine: silero
`))
	if err == nil {
		t.Fatal("expected error for unknown vad.engine, got nil")
	}
	if !strings.Contains(err.Error(), "vad.engine") {
		t.Errorf("error should mention vad.engine, got: %v", err)
	}
}

func TestValidate_PreviewInterval(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML + `
transcribe:
  preview_interval: 250ms
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transcribe.PreviewInterval != 250*time.Millisecond {
		t.Errorf("preview_interval = %v, want 250ms", cfg.Transcribe.PreviewInterval)
	}

	_, err = config.LoadFromReader(strings.NewReader(validYAML + `
transcribe:
  preview_interval: -1s
`))
	if err == nil {
		t.Fatal("expected error for negative preview_interval, got nil")
	}
	if !strings.Contains(err.Error(), "preview_interval") {
		t.Errorf("error should mention preview_interval, got: %v", err)
	}
}

func TestValidate_DuckVolumeRange(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
  duck_volume: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duck_volume out of range, got nil")
	}
	if !strings.Contains(err.Error(), "duck_volume") {
		t.Errorf("error should mention duck_volume, got: %v", err)
	}
}

func TestValidate_BadCustomCommandAction(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
  commands:
    - phrase: red alert
      action: klaxon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid command action, got nil")
	}
	if !strings.Contains(err.Error(), "action") {
		t.Errorf("error should mention action, got: %v", err)
	}
}

func TestValidate_GoodCustomCommandActions(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
  commands:
    - phrase: note this
      action: "mode:note"
    - phrase: quiet please
      action: "toggle:tts:off"
    - phrase: summarize
      action: "custom:summarize the conversation so far"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NotesNeedEmbeddings(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
notes:
  postgres_dsn: "postgres://localhost/hark"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for notes without embeddings provider, got nil")
	}
	if !strings.Contains(err.Error(), "embeddings") {
		t.Errorf("error should mention embeddings, got: %v", err)
	}
}

func TestValidate_RecordNeedsDir(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
record:
  enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for record.enabled without dir, got nil")
	}
	if !strings.Contains(err.Error(), "record.dir") {
		t.Errorf("error should mention record.dir, got: %v", err)
	}
}

func TestValidate_TemperatureRange(t *testing.T) {
	t.Parallel()
	yaml := validYAML + `
session:
  temperature: 3.0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for temperature out of range, got nil")
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("error should mention temperature, got: %v", err)
	}
}
