package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harkvoice/hark/internal/config"
	"github.com/harkvoice/hark/internal/notes"
	"github.com/harkvoice/hark/pkg/audio"
	llmmock "github.com/harkvoice/hark/pkg/provider/llm/mock"
	sttmock "github.com/harkvoice/hark/pkg/provider/stt/mock"
	ttsmock "github.com/harkvoice/hark/pkg/provider/tts/mock"
)

// fakeSource replays scripted frames, then leaves the channel open so the
// pipeline keeps running until the test cancels it.
type fakeSource struct {
	frames []audio.Frame
	keep   bool // keep the channel open after the script runs out
}

func (s *fakeSource) Frames(ctx context.Context) (<-chan audio.Frame, <-chan error) {
	out := make(chan audio.Frame)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		if !s.keep {
			defer close(out)
		}
		for _, fr := range s.frames {
			select {
			case out <- fr:
			case <-ctx.Done():
				return
			}
		}
		if s.keep {
			<-ctx.Done()
		}
	}()
	return out, errs
}

// countingSink records playbacks.
type countingSink struct {
	mu    sync.Mutex
	plays int
}

func (s *countingSink) Play(ctx context.Context, samples []float32, rate int) error {
	s.mu.Lock()
	s.plays++
	s.mu.Unlock()
	return nil
}

func (s *countingSink) SetVolume(float32) {}

func (s *countingSink) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

// fakeNotes satisfies notes.Store without a database.
type fakeNotes struct{ saved []string }

func (n *fakeNotes) Save(ctx context.Context, text string) error {
	n.saved = append(n.saved, text)
	return nil
}

func (n *fakeNotes) Search(ctx context.Context, query string, topK int) ([]notes.Result, error) {
	return nil, nil
}

func (n *fakeNotes) Recall(ctx context.Context, query string, topK int) ([]string, error) {
	return nil, nil
}

// speechFrames produces loud frames followed by silent ones, enough to
// drive the segmenter through a full utterance.
func speechFrames(loud, silent int) []audio.Frame {
	frames := make([]audio.Frame, 0, loud+silent)
	mk := func(level float32, seq uint64) audio.Frame {
		samples := make([]float32, audio.FrameSamples)
		for i := range samples {
			samples[i] = level
		}
		return audio.Frame{
			Samples:   samples,
			Seq:       seq,
			RMS:       audio.RMSLevel(samples),
			Timestamp: time.Duration(seq) * 30 * time.Millisecond,
		}
	}
	var seq uint64
	for range loud {
		frames = append(frames, mk(0.5, seq))
		seq++
	}
	for range silent {
		frames = append(frames, mk(0, seq))
		seq++
	}
	return frames
}

func testConfig() *config.Config {
	return &config.Config{
		Capture: config.CaptureConfig{Kind: config.CaptureFile, Path: "unused"},
		Interaction: config.InteractionConfig{
			AutoSubmitDelay: 40 * time.Millisecond,
		},
		VAD: config.VADConfig{
			MinUtterance: 100 * time.Millisecond,
		},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestPipelineEndToEnd drives audio through segmentation, transcription,
// auto-submit, the model stream, and synthesis down to the playback sink.
func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr := &sttmock.Transcriber{Results: []string{"hello there"}}
	model := &llmmock.Provider{}
	synth := &ttsmock.Synthesizer{}
	prov := &Providers{STT: tr, LLM: model, TTS: synth}

	// 20 loud frames (600ms of speech) then 20 silent ones close the
	// utterance; keep the stream open so the auto-submit tick can fire.
	src := &fakeSource{frames: speechFrames(20, 20), keep: true}
	sink := &countingSink{}

	a, err := New(ctx, testConfig(), prov, nil, WithSource(src), WithSink(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(runCtx) }()

	waitFor(t, func() bool { return tr.CallCount() > 0 }, "transcriber never called")
	waitFor(t, func() bool { return model.CallCount() > 0 }, "model never called")

	stop()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Safe to read directly: Run has joined every pipeline goroutine.
	req := model.StreamCalls[0].Req
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" || last.Content != "hello there" {
		t.Errorf("submitted message = %+v, want user %q", last, "hello there")
	}
}

// TestChunkFallbackWithoutEngine verifies that vad.engine "none" cuts audio
// into fixed chunks: quiet frames that the energy engine would discard still
// reach the transcriber.
func TestChunkFallbackWithoutEngine(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig()
	cfg.VAD.Engine = config.VADNone
	cfg.VAD.ChunkFallback = 300 * time.Millisecond
	cfg.Transcribe.PreviewInterval = 100 * time.Millisecond

	tr := &sttmock.Transcriber{Results: []string{"chunked text"}}
	prov := &Providers{STT: tr, LLM: &llmmock.Provider{}, TTS: &ttsmock.Synthesizer{}}

	// 15 near-silent frames are 450ms of audio, past one chunk length.
	src := &fakeSource{frames: speechFrames(0, 15), keep: true}

	a, err := New(ctx, cfg, prov, nil, WithSource(src), WithSink(&countingSink{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(runCtx) }()

	waitFor(t, func() bool { return tr.CallCount() > 0 }, "chunk never transcribed")

	stop()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// TestRunStopsOnSourceClose verifies a cleanly ending capture stream winds
// the pipeline down without an error.
func TestRunStopsOnSourceClose(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prov := &Providers{
		STT: &sttmock.Transcriber{},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Synthesizer{},
	}
	src := &fakeSource{frames: nil} // closes immediately

	a, err := New(ctx, testConfig(), prov, nil, WithSource(src), WithSink(&countingSink{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(runCtx) }()

	// The pump returns nil when the source closes; the remaining pipeline
	// goroutines only stop on cancellation.
	time.Sleep(50 * time.Millisecond)
	stop()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// TestApplyDiffHotReloadsInteraction checks that a watcher diff reaches the
// runtime switches without restarting.
func TestApplyDiffHotReloadsInteraction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	prov := &Providers{
		STT: &sttmock.Transcriber{},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Synthesizer{},
	}
	a, err := New(ctx, testConfig(), prov, nil,
		WithSource(&fakeSource{}), WithSink(&countingSink{}), WithNotes(&fakeNotes{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	if a.rt.CrosstalkEnabled() {
		t.Fatal("crosstalk should start disabled")
	}

	a.ApplyDiff(config.ConfigDiff{
		InteractionChanged: true,
		NewInteraction: config.InteractionConfig{
			Crosstalk:       true,
			AutoSubmitDelay: 2 * time.Second,
		},
	})

	if !a.rt.CrosstalkEnabled() {
		t.Error("crosstalk not enabled by diff")
	}
	select {
	case update := <-a.cfgUpdates:
		if update.AutoSubmitDelay != 2*time.Second {
			t.Errorf("update delay = %v, want 2s", update.AutoSubmitDelay)
		}
	default:
		t.Error("no config update queued for the loop")
	}
}
