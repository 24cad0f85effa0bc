package config_test

import (
	"testing"
	"time"

	"github.com/harkvoice/hark/internal/config"
	"github.com/harkvoice/hark/internal/vad"
)

func TestLogLevelIsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error(`"verbose" should be invalid`)
	}
}

func TestLogFormatIsValid(t *testing.T) {
	t.Parallel()
	if !config.LogText.IsValid() || !config.LogJSON.IsValid() {
		t.Error("text and json should be valid formats")
	}
	if config.LogFormat("xml").IsValid() {
		t.Error(`"xml" should be invalid`)
	}
}

func TestCaptureKindIsValid(t *testing.T) {
	t.Parallel()
	if !config.CaptureWS.IsValid() || !config.CaptureFile.IsValid() {
		t.Error("ws and file should be valid capture kinds")
	}
	if config.CaptureKind("alsa").IsValid() {
		t.Error(`"alsa" should be invalid`)
	}
}

func TestVADConfigSegmenter_Defaults(t *testing.T) {
	t.Parallel()
	got := config.VADConfig{}.Segmenter()
	want := vad.DefaultSegmenterConfig()
	if got != want {
		t.Errorf("empty VADConfig should yield defaults: got %+v, want %+v", got, want)
	}
}

func TestVADConfigSegmenter_Overrides(t *testing.T) {
	t.Parallel()
	got := config.VADConfig{
		EnterThreshold: 0.05,
		HangoverFrames: 30,
		MaxUtterance:   20 * time.Second,
	}.Segmenter()

	if got.EnterThreshold != 0.05 {
		t.Errorf("EnterThreshold = %v, want 0.05", got.EnterThreshold)
	}
	if got.HangoverFrames != 30 {
		t.Errorf("HangoverFrames = %d, want 30", got.HangoverFrames)
	}
	if got.MaxUtterance != 20*time.Second {
		t.Errorf("MaxUtterance = %v, want 20s", got.MaxUtterance)
	}

	// Untouched fields keep defaults.
	def := vad.DefaultSegmenterConfig()
	if got.ExitThreshold != def.ExitThreshold {
		t.Errorf("ExitThreshold = %v, want default %v", got.ExitThreshold, def.ExitThreshold)
	}
	if got.MinUtterance != def.MinUtterance {
		t.Errorf("MinUtterance = %v, want default %v", got.MinUtterance, def.MinUtterance)
	}
}
