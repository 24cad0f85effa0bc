package crosstalk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harkvoice/hark/internal/command"
	"github.com/harkvoice/hark/internal/speech"
	"github.com/harkvoice/hark/internal/state"
	ttsmock "github.com/harkvoice/hark/pkg/provider/tts/mock"
)

// volumeSink records volume changes; Play is never reached in these tests.
type volumeSink struct {
	mu      sync.Mutex
	volumes []float32
}

func (s *volumeSink) Play(ctx context.Context, samples []float32, rate int) error { return nil }

func (s *volumeSink) SetVolume(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes = append(s.volumes, v)
}

func (s *volumeSink) recorded() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.volumes...)
}

type countingMetrics struct{ bargeIns int }

func (m *countingMetrics) BargeIn(context.Context) { m.bargeIns++ }

func newCoordinator(t *testing.T, crosstalkOn, playing bool) (*Coordinator, *volumeSink, *countingMetrics, *state.Runtime) {
	t.Helper()
	rt := state.NewRuntime(state.ModeChat)
	rt.SetCrosstalkEnabled(crosstalkOn)
	rt.SetSpeechPlaying(playing)

	sink := &volumeSink{}
	ctrl := speech.NewController(&ttsmock.Synthesizer{}, sink, rt, speech.Config{DuckVolume: 0.2}, nil)
	cmds := command.New(nil, nil)
	met := &countingMetrics{}
	return NewCoordinator(rt, ctrl, cmds, Config{}, nil, met), sink, met, rt
}

func TestDucksOnOverlappingSpeech(t *testing.T) {
	t.Parallel()
	c, sink, _, _ := newCoordinator(t, true, true)

	c.OnSpeechStart()
	if !c.Engaged() {
		t.Fatal("coordinator did not engage")
	}
	if got := sink.recorded(); len(got) != 1 || got[0] != 0.2 {
		t.Errorf("volumes = %v, want [0.2]", got)
	}

	c.OnAbandoned()
	if c.Engaged() {
		t.Error("still engaged after abandon")
	}
	if got := sink.recorded(); len(got) != 2 || got[1] != 1 {
		t.Errorf("volumes = %v, want duck then restore", got)
	}
}

func TestDisabledNeverEngages(t *testing.T) {
	t.Parallel()
	c, sink, _, _ := newCoordinator(t, false, true)

	c.OnSpeechStart()
	if c.Engaged() {
		t.Error("engaged with crosstalk disabled")
	}
	if got := sink.recorded(); len(got) != 0 {
		t.Errorf("volumes = %v, want none", got)
	}
	if a := c.Resolve(context.Background(), "hello there friend", time.Second); a != ActionIgnore {
		t.Errorf("action = %v, want ignore", a)
	}
}

func TestIdlePlaybackNeverEngages(t *testing.T) {
	t.Parallel()
	c, _, _, _ := newCoordinator(t, true, false)

	c.OnSpeechStart()
	if c.Engaged() {
		t.Error("engaged with no playback live")
	}
}

func TestStopPhraseHaltsWithoutSubmitting(t *testing.T) {
	t.Parallel()
	c, sink, met, _ := newCoordinator(t, true, true)

	c.OnSpeechStart()
	a := c.Resolve(context.Background(), "stop talking", 300*time.Millisecond)
	if a != ActionStop {
		t.Fatalf("action = %v, want stop", a)
	}
	if met.bargeIns != 0 {
		t.Error("stop phrase counted as barge-in")
	}
	// Duck on onset, restore on resolve.
	if got := sink.recorded(); len(got) != 2 || got[0] != 0.2 || got[1] != 1 {
		t.Errorf("volumes = %v, want [0.2 1]", got)
	}
}

func TestSustainedSpeechBargesIn(t *testing.T) {
	t.Parallel()
	c, _, met, _ := newCoordinator(t, true, true)

	c.OnSpeechStart()
	a := c.Resolve(context.Background(), "actually tell me about something else", 900*time.Millisecond)
	if a != ActionBargeIn {
		t.Fatalf("action = %v, want barge-in", a)
	}
	if met.bargeIns != 1 {
		t.Errorf("barge-in count = %d, want 1", met.bargeIns)
	}
	if c.Engaged() {
		t.Error("still engaged after resolve")
	}
}

func TestShortUtteranceIgnored(t *testing.T) {
	t.Parallel()
	c, sink, met, _ := newCoordinator(t, true, true)

	c.OnSpeechStart()
	a := c.Resolve(context.Background(), "um", 200*time.Millisecond)
	if a != ActionIgnore {
		t.Fatalf("action = %v, want ignore", a)
	}
	if met.bargeIns != 0 {
		t.Error("short utterance counted as barge-in")
	}
	if got := sink.recorded(); len(got) != 2 || got[1] != 1 {
		t.Errorf("volumes = %v, want volume restored", got)
	}
}

func TestPlaybackDrainedBeforeResolve(t *testing.T) {
	t.Parallel()
	c, sink, met, rt := newCoordinator(t, true, true)

	c.OnSpeechStart()
	// Playback finishes on its own while the utterance is still in flight.
	rt.SetSpeechPlaying(false)

	a := c.Resolve(context.Background(), "actually tell me about something else", 900*time.Millisecond)
	if a != ActionBargeIn {
		t.Fatalf("action = %v, want barge-in", a)
	}
	if met.bargeIns != 0 {
		t.Errorf("barge-in count = %d, nothing was interrupted", met.bargeIns)
	}
	if c.Engaged() {
		t.Error("still engaged after resolve")
	}
	if got := sink.recorded(); len(got) != 2 || got[1] != 1 {
		t.Errorf("volumes = %v, want volume restored", got)
	}
}

func TestStopPhraseAfterPlaybackDrained(t *testing.T) {
	t.Parallel()
	c, _, met, rt := newCoordinator(t, true, true)

	c.OnSpeechStart()
	rt.SetSpeechPlaying(false)

	a := c.Resolve(context.Background(), "stop talking", 300*time.Millisecond)
	if a != ActionStop {
		t.Fatalf("action = %v, want stop", a)
	}
	if met.bargeIns != 0 {
		t.Error("stop phrase counted as barge-in")
	}
}

func TestFuzzyStopPhrase(t *testing.T) {
	t.Parallel()
	c, _, _, _ := newCoordinator(t, true, true)

	c.OnSpeechStart()
	// One edit away from "stop".
	if a := c.Resolve(context.Background(), "stap", 300*time.Millisecond); a != ActionStop {
		t.Errorf("action = %v, want stop for near-miss phrase", a)
	}
}
