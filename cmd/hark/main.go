// Command hark is the main entry point for the hark voice interaction
// pipeline.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/harkvoice/hark/internal/app"
	"github.com/harkvoice/hark/internal/config"
	"github.com/harkvoice/hark/internal/interact"
	"github.com/harkvoice/hark/internal/observe"
	"github.com/harkvoice/hark/internal/resilience"
	"github.com/harkvoice/hark/internal/summarize"
	"github.com/harkvoice/hark/pkg/provider/embeddings"
	oaembed "github.com/harkvoice/hark/pkg/provider/embeddings/openai"
	"github.com/harkvoice/hark/pkg/provider/llm"
	"github.com/harkvoice/hark/pkg/provider/llm/anyllm"
	"github.com/harkvoice/hark/pkg/provider/stt"
	"github.com/harkvoice/hark/pkg/provider/stt/whisper"
	"github.com/harkvoice/hark/pkg/provider/tts"
	"github.com/harkvoice/hark/pkg/provider/tts/coqui"
	"github.com/harkvoice/hark/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override the configured log format (text, json)")
	summarizePath := flag.String("summarize", "", "summarize the transcript file at this path and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hark: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hark: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Flags override the config file. The level lives in a LevelVar so config
	// hot reloads can change verbosity without rebuilding the handler.
	logCfg := cfg.Log
	if *logLevel != "" {
		lvl := config.LogLevel(*logLevel)
		if !lvl.IsValid() {
			fmt.Fprintf(os.Stderr, "hark: invalid -log-level %q\n", *logLevel)
			return 2
		}
		logCfg.Level = lvl
	}
	if *logFormat != "" {
		format := config.LogFormat(*logFormat)
		if !format.IsValid() {
			fmt.Fprintf(os.Stderr, "hark: invalid -log-format %q\n", *logFormat)
			return 2
		}
		logCfg.Format = format
	}

	levelVar := new(slog.LevelVar)
	logger := newLogger(logCfg, levelVar)
	slog.SetDefault(logger)

	slog.Info("hark starting",
		"config", *configPath,
		"log_level", logCfg.Level,
		"capture", cfg.Capture.Kind,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hark",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Transcript summarization ──────────────────────────────────────────────
	if *summarizePath != "" {
		return runSummarize(ctx, providers.LLM, *summarizePath)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, logger, app.WithLogLevelVar(levelVar))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyDiff(config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Keyboard input ────────────────────────────────────────────────────────
	go readKeys(ctx, os.Stdin, application.Keys())

	slog.Info("pipeline ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// runSummarize condenses the transcript file at path with the configured
// model chain and prints the summary to stdout.
func runSummarize(ctx context.Context, model llm.Provider, path string) int {
	if model == nil {
		fmt.Fprintln(os.Stderr, "hark: -summarize needs a configured llm provider")
		return 1
	}
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hark: read transcript: %v\n", err)
		return 1
	}

	s := summarize.New(model, summarize.Config{}, slog.Default())
	summary, err := s.Summarize(ctx, string(content))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hark: %v\n", err)
		return 1
	}
	fmt.Println(summary)
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders are the any-llm backend names that share the optional
// APIKey + optional BaseURL construction pattern.
var anyLLMProviders = []string{
	"openai", "anthropic", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, optString(entry.Options, "voice_id"), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, coqui.WithVoice(voice))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildProviders instantiates every provider chain named in cfg and wraps
// multi-entry chains in failover groups with per-backend circuit breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := resilience.FallbackConfig{}

	transcribers, err := reg.STTChain(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt chain: %w", err)
	}
	switch len(transcribers) {
	case 0:
	case 1:
		ps.STT = transcribers[0]
	default:
		group := resilience.NewTranscriber(transcribers[0], cfg.Providers.STT[0].Name, fbCfg)
		for i, tr := range transcribers[1:] {
			group.AddFallback(cfg.Providers.STT[i+1].Name, tr)
		}
		ps.STT = group
	}
	logChain("stt", cfg.Providers.STT)

	models, err := reg.LLMChain(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm chain: %w", err)
	}
	switch len(models) {
	case 0:
	case 1:
		ps.LLM = models[0]
	default:
		group := resilience.NewLLMFallback(models[0], cfg.Providers.LLM[0].Name, fbCfg)
		for i, p := range models[1:] {
			group.AddFallback(cfg.Providers.LLM[i+1].Name, p)
		}
		ps.LLM = group
	}
	logChain("llm", cfg.Providers.LLM)

	synths, err := reg.TTSChain(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts chain: %w", err)
	}
	switch len(synths) {
	case 0:
	case 1:
		ps.TTS = synths[0]
	default:
		group := resilience.NewSynthesizer(synths[0], cfg.Providers.TTS[0].Name, fbCfg)
		for i, s := range synths[1:] {
			group.AddFallback(cfg.Providers.TTS[i+1].Name, s)
		}
		ps.TTS = group
	}
	logChain("tts", cfg.Providers.TTS)

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return ps, nil
}

func logChain(kind string, entries []config.ProviderEntry) {
	for i, e := range entries {
		role := "primary"
		if i > 0 {
			role = "fallback"
		}
		slog.Info("provider created", "kind", kind, "name", e.Name, "role", role)
	}
}

// ── Keyboard input ────────────────────────────────────────────────────────────

// readKeys reads runes from the terminal and feeds them into the interaction
// loop as key events. Newline submits, backspace and DEL edit the buffer,
// everything else is appended as typed text.
func readKeys(ctx context.Context, in io.Reader, keys chan<- interact.KeyEvent) {
	reader := bufio.NewReader(in)
	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("stdin read error", "err", err)
			}
			return
		}

		var ev interact.KeyEvent
		switch r {
		case '\r':
			continue
		case '\n':
			ev = interact.KeyEvent{Kind: interact.KeyEnter}
		case '\b', 0x7f:
			ev = interact.KeyEvent{Kind: interact.KeyBackspace}
		default:
			ev = interact.KeyEvent{Kind: interact.KeyRune, Rune: r}
		}

		select {
		case keys <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           hark — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printChain("STT", cfg.Providers.STT)
	printChain("LLM", cfg.Providers.LLM)
	printChain("TTS", cfg.Providers.TTS)
	printRow("Embeddings", providerLabel(cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model))
	printRow("Capture", string(cfg.Capture.Kind))
	if cfg.Interaction.WakeWord != "" {
		printRow("Wake word", cfg.Interaction.WakeWord)
	} else {
		printRow("Wake word", "(none)")
	}
	if cfg.Notes.PostgresDSN != "" {
		printRow("Notes", "postgres")
	} else {
		printRow("Notes", "(disabled)")
	}
	if cfg.Metrics.ListenAddr != "" {
		printRow("Metrics", cfg.Metrics.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printChain(kind string, entries []config.ProviderEntry) {
	if len(entries) == 0 {
		printRow(kind, "(not configured)")
		return
	}
	printRow(kind, providerLabel(entries[0].Name, entries[0].Model))
	for _, e := range entries[1:] {
		printRow("  ↳ fallback", providerLabel(e.Name, e.Model))
	}
}

func providerLabel(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	switch cfg.Level {
	case config.LogDebug:
		level.Set(slog.LevelDebug)
	case config.LogWarn:
		level.Set(slog.LevelWarn)
	case config.LogError:
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
