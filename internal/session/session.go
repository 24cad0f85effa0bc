// Package session runs one streaming LLM exchange at a time.
//
// Submit pushes the user's text into history, opens a token stream, and
// queues each completed sentence to the playback controller as soon as the
// boundary is detected — speech starts at the first sentence, not at stream
// end. At most one exchange is live; submitting again (or Stop) cancels the
// current one atomically: the request is aborted, token consumption stops,
// the partially built assistant message leaves history, and the playback
// queue is cleared — all before Submit/Stop returns.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harkvoice/hark/internal/speech"
	"github.com/harkvoice/hark/internal/state"
	"github.com/harkvoice/hark/pkg/provider/llm"
)

// ErrStreamFailed is surfaced to the caller's error hook when the backend
// stream breaks mid-response.
var ErrStreamFailed = errors.New("response stream failed")

// Config tunes the session manager.
type Config struct {
	// SystemPrompt is sent with every request.
	SystemPrompt string

	// Temperature and MaxTokens pass through to the provider. Zero values
	// mean provider defaults.
	Temperature float64
	MaxTokens   int

	// MaxHistory bounds the retained conversation, in messages. Oldest
	// exchanges fall off first. Zero means 64.
	MaxHistory int
}

// Metrics receives session telemetry. May be implemented by internal/observe
// or left nil.
type Metrics interface {
	SessionStarted(ctx context.Context)
	SessionEnded(ctx context.Context)
	FirstToken(ctx context.Context, latency time.Duration)
}

// OnError is called when a stream fails; the text is a short speakable
// notice ("Sorry, I could not reach the model.").
type OnError func(notice string, err error)

// Manager owns the conversation history and the single live exchange.
//
// All exported methods are safe for concurrent use, but the interaction
// loop is the only intended caller of Submit/Stop.
type Manager struct {
	provider llm.Provider
	speech   *speech.Controller
	rt       *state.Runtime
	cfg      Config
	log      *slog.Logger
	met      Metrics
	onError  OnError

	mu      sync.Mutex
	history []llm.Message
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a Manager. met and onError may be nil.
func NewManager(provider llm.Provider, sp *speech.Controller, rt *state.Runtime, cfg Config, log *slog.Logger, met Metrics, onError OnError) *Manager {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider: provider,
		speech:   sp,
		rt:       rt,
		cfg:      cfg,
		log:      log,
		met:      met,
		onError:  onError,
	}
}

// Submit cancels any live exchange and starts a new one for text. It
// returns once the previous exchange (if any) has been fully rolled back
// and the new stream request is in flight.
func (m *Manager) Submit(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	m.CancelActive()

	m.mu.Lock()
	m.history = append(m.history, llm.Message{Role: "user", Content: text})
	m.trimHistoryLocked()

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(streamCtx, done)
}

// Stop cancels the live exchange, if any, and silences playback. Unlike a
// failed stream, a stop keeps the user message in history; only the partial
// assistant reply is discarded.
func (m *Manager) Stop() {
	m.CancelActive()
}

// CancelActive tears down the live exchange and playback. It blocks until
// the worker has finished its rollback, so no partial cancellation state is
// observable afterwards.
func (m *Manager) CancelActive() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	m.speech.Stop()
}

// Active reports whether an exchange is currently streaming.
func (m *Manager) Active() bool {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// History returns a snapshot of the conversation.
func (m *Manager) History() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Message, len(m.history))
	copy(out, m.history)
	return out
}

// run is the worker for one exchange. It owns the partial assistant message
// appended to history and removes it on any non-success path.
func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if m.met != nil {
		m.met.SessionStarted(ctx)
		defer m.met.SessionEnded(ctx)
	}

	m.mu.Lock()
	req := llm.CompletionRequest{
		Messages:     append([]llm.Message(nil), m.history...),
		Temperature:  m.cfg.Temperature,
		MaxTokens:    m.cfg.MaxTokens,
		SystemPrompt: m.cfg.SystemPrompt,
	}
	// The partial assistant message lives in history while streaming so a
	// cancel can remove exactly one message.
	m.history = append(m.history, llm.Message{Role: "assistant"})
	m.mu.Unlock()

	start := time.Now()
	ch, err := m.provider.StreamCompletion(ctx, req)
	if err != nil {
		// A cancel while the request is opening is a stop, not a failure:
		// the user message stays in history.
		if ctx.Err() != nil {
			m.rollbackAssistant()
			return
		}
		m.failExchange(err)
		return
	}

	var (
		pending    strings.Builder
		firstToken = true
	)

	for chunk := range ch {
		if ctx.Err() != nil {
			go drainChunks(ch)
			m.rollbackAssistant()
			return
		}
		if chunk.FinishReason == "error" {
			go drainChunks(ch)
			m.failExchange(chunk.Err)
			return
		}
		if chunk.Text == "" {
			continue
		}
		if firstToken {
			firstToken = false
			if m.met != nil {
				m.met.FirstToken(ctx, time.Since(start))
			}
		}

		m.appendAssistant(chunk.Text)

		pending.WriteString(chunk.Text)
		sentences, rest := splitSentences(pending.String())
		pending.Reset()
		pending.WriteString(rest)
		for _, s := range sentences {
			m.say(s)
		}
	}

	if ctx.Err() != nil {
		m.rollbackAssistant()
		return
	}

	// Flush the remaining partial sentence.
	if rest := strings.TrimSpace(pending.String()); rest != "" {
		m.say(rest)
	}
}

// say queues one sentence for playback when speech output is enabled.
func (m *Manager) say(sentence string) {
	if m.rt != nil && !m.rt.TTSEnabled() {
		return
	}
	m.speech.Enqueue(sentence)
}

// appendAssistant adds delta to the in-progress assistant message.
func (m *Manager) appendAssistant(delta string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.history); n > 0 && m.history[n-1].Role == "assistant" {
		m.history[n-1].Content += delta
	}
}

// rollbackAssistant removes the partial assistant message after a cancel.
func (m *Manager) rollbackAssistant() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.history); n > 0 && m.history[n-1].Role == "assistant" {
		m.history = m.history[:n-1]
	}
}

// failExchange removes both the partial assistant message and the user
// message that triggered it, then surfaces the error.
func (m *Manager) failExchange(err error) {
	m.mu.Lock()
	if n := len(m.history); n > 0 && m.history[n-1].Role == "assistant" {
		m.history = m.history[:n-1]
	}
	if n := len(m.history); n > 0 && m.history[n-1].Role == "user" {
		m.history = m.history[:n-1]
	}
	m.mu.Unlock()

	m.log.Error("response stream failed", "error", err)
	if m.onError != nil {
		m.onError("Sorry, I could not get a response.", errors.Join(ErrStreamFailed, err))
	}
}

// trimHistoryLocked drops the oldest messages past the cap. Callers hold mu.
func (m *Manager) trimHistoryLocked() {
	if over := len(m.history) - m.cfg.MaxHistory; over > 0 {
		m.history = append([]llm.Message(nil), m.history[over:]...)
	}
}

// drainChunks discards the rest of an abandoned stream so the provider's
// goroutine can exit.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
