package resilience

import (
	"context"
	"errors"
	"testing"

	ttsmock "github.com/harkvoice/hark/pkg/provider/tts/mock"
)

func TestSynthesizerFailsOverPerSentence(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Synthesizer{Err: errors.New("voice service down")}
	backup := &ttsmock.Synthesizer{Rate: 22050}

	s := NewSynthesizer(primary, "primary", FallbackConfig{})
	s.AddFallback("backup", backup)

	samples, rate, err := s.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(samples) == 0 || rate != 22050 {
		t.Errorf("samples = %d, rate = %d", len(samples), rate)
	}
	if got := backup.Sentences(); len(got) != 1 || got[0] != "Hello there." {
		t.Errorf("backup sentences = %q", got)
	}
}

func TestSynthesizerAllFailed(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Synthesizer{Err: errors.New("down")}

	s := NewSynthesizer(primary, "only", FallbackConfig{})
	if _, _, err := s.Synthesize(context.Background(), "Hi."); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}
