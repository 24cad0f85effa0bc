// Package app wires all hark subsystems into a running voice pipeline.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the pipeline goroutines under an errgroup, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSource, WithSink,
// WithNotes, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/harkvoice/hark/internal/capture"
	capturefile "github.com/harkvoice/hark/internal/capture/file"
	"github.com/harkvoice/hark/internal/capture/wsbridge"
	"github.com/harkvoice/hark/internal/command"
	"github.com/harkvoice/hark/internal/config"
	"github.com/harkvoice/hark/internal/crosstalk"
	"github.com/harkvoice/hark/internal/health"
	"github.com/harkvoice/hark/internal/interact"
	"github.com/harkvoice/hark/internal/notes"
	notespg "github.com/harkvoice/hark/internal/notes/postgres"
	"github.com/harkvoice/hark/internal/observe"
	"github.com/harkvoice/hark/internal/record"
	"github.com/harkvoice/hark/internal/session"
	"github.com/harkvoice/hark/internal/speech"
	"github.com/harkvoice/hark/internal/state"
	"github.com/harkvoice/hark/internal/transcribe"
	"github.com/harkvoice/hark/internal/transcript"
	"github.com/harkvoice/hark/internal/vad"
	"github.com/harkvoice/hark/internal/wake"
	"github.com/harkvoice/hark/pkg/audio"
	"github.com/harkvoice/hark/pkg/provider/embeddings"
	"github.com/harkvoice/hark/pkg/provider/llm"
	"github.com/harkvoice/hark/pkg/provider/stt"
	"github.com/harkvoice/hark/pkg/provider/tts"
)

// Providers holds one interface value per provider slot, populated by main.go
// via the config registry (with resilience fallback wrappers already applied).
// Embeddings may be nil when notes are disabled; TTS may be nil for text-only
// operation.
type Providers struct {
	STT        stt.Transcriber
	LLM        llm.Provider
	TTS        tts.Synthesizer
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the hark pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	met       *observe.Metrics
	rt        *state.Runtime

	source     capture.Source
	sink       speech.Sink
	speech     *speech.Controller
	sess       *session.Manager
	dispatcher *transcribe.Dispatcher
	seg        *vad.Segmenter
	cross      *crosstalk.Coordinator
	loop       *interact.Loop
	recorder   *record.Recorder
	notes      notes.Store
	health     *health.Handler

	keys       chan interact.KeyEvent
	vadEvents  chan vad.EventType
	cfgUpdates chan interact.Config

	// logLevel, when set via WithLogLevelVar, lets ApplyDiff hot-apply
	// log level changes.
	logLevel *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a microphone source instead of creating one from config.
func WithSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects a playback sink instead of dialing the playback bridge.
func WithSink(s speech.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithNotes injects a note store instead of connecting to PostgreSQL.
func WithNotes(s notes.Store) Option {
	return func(a *App) { a.notes = s }
}

// WithMetrics injects a metrics instance instead of the global provider's.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.met = m }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// config reloads can adjust verbosity.
func WithLogLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		cfg:        cfg,
		providers:  providers,
		log:        log,
		keys:       make(chan interact.KeyEvent, 16),
		vadEvents:  make(chan vad.EventType, 4),
		cfgUpdates: make(chan interact.Config, 1),
	}
	for _, o := range opts {
		o(a)
	}

	if a.met == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.met = m
	}

	a.rt = state.NewRuntime(state.ModeChat)
	a.rt.SetCrosstalkEnabled(cfg.Interaction.Crosstalk)

	if err := a.initCapture(ctx); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}
	if err := a.initNotes(ctx); err != nil {
		return nil, fmt.Errorf("app: init notes: %w", err)
	}
	if err := a.initRecorder(); err != nil {
		return nil, fmt.Errorf("app: init recorder: %w", err)
	}
	a.initPipeline()

	return a, nil
}

// initCapture builds the microphone source and the playback sink.
func (a *App) initCapture(ctx context.Context) error {
	if a.source == nil {
		switch a.cfg.Capture.Kind {
		case config.CaptureWS:
			a.source = wsbridge.NewSource(wsbridge.SourceConfig{
				URL:        a.cfg.Capture.URL,
				SampleRate: a.cfg.Capture.SampleRate,
			}, a.rt, a.log)
		case config.CaptureFile:
			a.source = capturefile.New(capturefile.Config{
				Path:       a.cfg.Capture.Path,
				SampleRate: a.cfg.Capture.SampleRate,
				Realtime:   a.cfg.Capture.Realtime,
			}, a.rt, a.log)
		default:
			return fmt.Errorf("unknown capture kind %q", a.cfg.Capture.Kind)
		}
	}

	if a.sink == nil {
		if a.cfg.Playback.URL == "" {
			a.log.Warn("no playback bridge configured; synthesized audio will be discarded")
			a.sink = discardSink{}
			return nil
		}
		sink, err := wsbridge.NewSink(ctx, wsbridge.SinkConfig{URL: a.cfg.Playback.URL}, a.log)
		if err != nil {
			return fmt.Errorf("dial playback bridge: %w", err)
		}
		a.sink = sink
		a.closers = append(a.closers, sink.Close)
	}
	return nil
}

// initNotes connects the pgvector note store when a DSN is configured.
func (a *App) initNotes(ctx context.Context) error {
	if a.notes != nil || a.cfg.Notes.PostgresDSN == "" {
		return nil
	}
	if a.providers.Embeddings == nil {
		return errors.New("notes configured but no embeddings provider")
	}
	store, err := notespg.New(ctx, a.cfg.Notes.PostgresDSN, a.providers.Embeddings)
	if err != nil {
		return err
	}
	a.notes = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.health = health.New(health.Checker{
		Name:  "notes",
		Check: store.Ping,
	})
	return nil
}

// initRecorder sets up on-disk utterance recording when enabled.
func (a *App) initRecorder() error {
	if !a.cfg.Record.Enabled {
		return nil
	}
	rec, err := record.NewRecorder(a.cfg.Record.Dir, a.log)
	if err != nil {
		return err
	}
	a.recorder = rec
	return nil
}

// initPipeline builds the segmenter, dispatcher, speech controller, session
// manager, crosstalk coordinator, and interaction loop.
func (a *App) initPipeline() {
	cfg := a.cfg

	var engine vad.Engine
	if cfg.VAD.Engine != config.VADNone {
		engine = &vad.Energy{}
	}
	a.seg = vad.NewSegmenter(engine, cfg.VAD.Segmenter())

	a.dispatcher = transcribe.New(a.providers.STT, transcribe.Config{
		PreviewInterval: cfg.Transcribe.PreviewInterval,
	}, a.log, a.met)

	synth := a.providers.TTS
	if synth == nil {
		a.rt.SetTTSEnabled(false)
		synth = silentSynth{}
	}
	a.speech = speech.NewController(synth, a.sink, a.rt, speech.Config{
		DuckVolume: cfg.Interaction.DuckVolume,
	}, a.log)

	a.sess = session.NewManager(a.providers.LLM, a.speech, a.rt, session.Config{
		SystemPrompt: cfg.Session.SystemPrompt,
		Temperature:  cfg.Session.Temperature,
		MaxTokens:    cfg.Session.MaxTokens,
		MaxHistory:   cfg.Session.MaxHistory,
	}, a.log, a.met, a.speakNotice)

	cmds := command.New(cfg.Interaction.StopPhrases, cfg.Interaction.Commands)
	a.cross = crosstalk.NewCoordinator(a.rt, a.speech, cmds, crosstalk.Config{
		MinBargeIn: cfg.Interaction.MinBargeIn,
	}, a.log, a.met)

	var sink interact.TranscriptSink
	ts, err := transcript.NewWriter(transcript.Config{Path: cfg.Transcript.Path})
	if err != nil {
		a.log.Warn("transcript writer unavailable; transcribe mode will drop input", "err", err)
	} else {
		sink = ts
		a.closers = append(a.closers, ts.Close)
	}

	var noteStore interact.NoteStore
	if a.notes != nil {
		noteStore = a.notes
	}

	a.loop = interact.New(interact.Deps{
		Runtime:       a.rt,
		Previews:      a.dispatcher.Previews(),
		Finals:        a.dispatcher.Finals(),
		Keys:          a.keys,
		VADEvents:     a.vadEvents,
		ConfigUpdates: a.cfgUpdates,
		Wake:          wake.NewMatcher(cfg.Interaction.WakeWord),
		Commands:      cmds,
		Session:       a.sess,
		Crosstalk:     a.cross,
		Notes:         noteStore,
		Transcript:    sink,
		Log:           a.log,
	}, interact.Config{
		AutoSubmitDelay: cfg.Interaction.AutoSubmitDelay,
		RequireWake:     cfg.Interaction.RequireWake,
		WakeWindow:      cfg.Interaction.WakeWindow,
	})

	if a.health == nil {
		a.health = health.New()
	}
}

// speakNotice surfaces a session failure to the user. The notice is spoken
// when playback is available; the error is always logged.
func (a *App) speakNotice(notice string, err error) {
	a.log.Error("session exchange failed", "err", err)
	if a.rt.TTSEnabled() {
		a.speech.Enqueue(notice)
	}
}

// Keys returns the channel the terminal reader feeds keystrokes into.
func (a *App) Keys() chan<- interact.KeyEvent { return a.keys }

// Run starts all pipeline goroutines and blocks until ctx is cancelled or a
// subsystem fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	frames, errs := a.source.Frames(ctx)
	g.Go(func() error { return a.pump(ctx, frames, errs) })
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	g.Go(func() error { return a.speech.Run(ctx) })
	g.Go(func() error { return a.loop.Run(ctx) })

	if a.cfg.Metrics.ListenAddr != "" {
		a.serveMetrics(ctx, g)
	}

	a.log.Info("hark running",
		"capture", a.cfg.Capture.Kind,
		"crosstalk", a.rt.CrosstalkEnabled(),
		"notes", a.notes != nil)

	err := g.Wait()
	a.sess.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pump drives frames through gating and segmentation, fanning boundary
// events out to the dispatcher, the recorder, and the interaction loop.
func (a *App) pump(ctx context.Context, frames <-chan audio.Frame, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				// A nil channel never fires again.
				errs = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("capture: %w", err)
			}
		case fr, ok := <-frames:
			if !ok {
				a.log.Info("capture source closed")
				return nil
			}
			if a.skipFrame() {
				a.seg.Reset()
				continue
			}
			for _, ev := range a.seg.Process(fr) {
				a.onVADEvent(ctx, ev)
			}
		}
	}
}

// skipFrame drops microphone input while hark itself is speaking (unless
// crosstalk is on) and while the mic is muted. Paused mode still hears
// frames: the loop filters at the transcript level so "resume listening"
// works.
func (a *App) skipFrame() bool {
	if a.rt.MicMuted() {
		return true
	}
	return a.rt.SpeechPlaying() && !a.rt.CrosstalkEnabled()
}

// onVADEvent fans one segmentation event out to its consumers.
func (a *App) onVADEvent(ctx context.Context, ev vad.Event) {
	a.dispatcher.OnEvent(ev)
	if a.recorder != nil {
		a.recorder.OnEvent(ev)
	}

	switch ev.Type {
	case vad.SpeechStart:
		// The loop only needs onsets, and must never block the audio path.
		select {
		case a.vadEvents <- ev.Type:
		default:
		}
	case vad.SpeechEnd:
		a.met.UtteranceClosed(ctx, ev.Utterance.Dur())
	}
}

// serveMetrics starts the metrics/health HTTP server under the errgroup.
func (a *App) serveMetrics(ctx context.Context, g *errgroup.Group) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)

	srv := &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           observe.Middleware(a.met)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ApplyDiff hot-applies a config change detected by the watcher. Changes the
// running pipeline cannot absorb are logged as needing a restart.
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.InteractionChanged {
		a.rt.SetCrosstalkEnabled(d.NewInteraction.Crosstalk)
		update := interact.Config{
			AutoSubmitDelay: d.NewInteraction.AutoSubmitDelay,
			RequireWake:     d.NewInteraction.RequireWake,
			WakeWindow:      d.NewInteraction.WakeWindow,
		}
		select {
		case a.cfgUpdates <- update:
		default:
			// A pending update is stale; replace it.
			select {
			case <-a.cfgUpdates:
			default:
			}
			a.cfgUpdates <- update
		}
	}
	if d.RestartNeeded {
		a.log.Warn("config change requires a restart to take effect")
	}
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		a.sess.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// discardSink drops playback audio. Used when no playback bridge is
// configured; synthesis still runs so latency metrics stay meaningful.
type discardSink struct{}

func (discardSink) Play(ctx context.Context, samples []float32, rate int) error { return nil }
func (discardSink) SetVolume(float32)                                           {}

// silentSynth replaces a missing TTS provider. The speech controller is
// still constructed so the session manager has a stable collaborator, but
// TTS stays disabled in runtime state and nothing is enqueued.
type silentSynth struct{}

func (silentSynth) Synthesize(ctx context.Context, sentence string) ([]float32, int, error) {
	return nil, 0, nil
}
