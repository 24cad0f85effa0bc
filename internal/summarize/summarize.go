// Package summarize condenses a recorded transcript with the language
// model.
//
// A transcript that fits the model's context window is summarized in one
// request. Longer ones are cut into overlapping chunks at sentence
// boundaries, each chunk is summarized on its own, and the chunk summaries
// are merged in a final pass.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/harkvoice/hark/pkg/provider/llm"
)

const (
	singleSystem = "You are a helpful assistant that summarizes transcriptions concisely. Focus on key points, decisions, and action items."
	singlePrompt = "Summarize this transcription:\n\n"

	chunkSystem = "You are an expert meeting summarizer."
	chunkPrompt = "Provide a concise but comprehensive summary of the following transcript chunk. Capture all key points, decisions, action items, and mentioned individuals.\n\n"

	combineSystem = "You are an expert at synthesizing meeting summaries."
	combinePrompt = "The following are consecutive summaries of a meeting. Combine them into a single, coherent, and detailed narrative summary that retains all important details, organized logically.\n\n"

	// tokensPerChar is the rough token estimate used for chunking. Close
	// enough for budget decisions; exact counts are model-specific.
	tokensPerChar = 0.35

	// overlapTokens is repeated between consecutive chunks so a sentence
	// cut by one boundary is whole in the next chunk.
	overlapTokens = 100

	// promptReserve is held back from the chunk budget for the prompt text.
	promptReserve = 300
)

// Config tunes the Summarizer.
type Config struct {
	// ContextTokens is the model's context window budget. Zero means 4096.
	ContextTokens int
}

// Summarizer reduces transcripts through the non-streaming completion API.
type Summarizer struct {
	provider llm.Provider
	cfg      Config
	log      *slog.Logger
}

// New creates a Summarizer. log may be nil.
func New(provider llm.Provider, cfg Config, log *slog.Logger) *Summarizer {
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = 4096
	}
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{provider: provider, cfg: cfg, log: log}
}

// Summarize returns a summary of transcript.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return "", errors.New("summarize: transcript is empty")
	}

	if estimateTokens(text) < s.cfg.ContextTokens {
		return s.complete(ctx, singleSystem, singlePrompt+text)
	}

	budget := s.cfg.ContextTokens - promptReserve
	if budget < 1 {
		budget = s.cfg.ContextTokens
	}
	chunks := chunkText(text, budget, overlapTokens)
	s.log.Info("transcript exceeds context window, chunking",
		"tokens", estimateTokens(text), "chunks", len(chunks))

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		s.log.Debug("summarizing chunk", "chunk", i+1, "of", len(chunks))
		summary, err := s.complete(ctx, chunkSystem, chunkPrompt+chunk)
		if err != nil {
			return "", fmt.Errorf("summarize: chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, summary)
	}

	return s.complete(ctx, combineSystem, combinePrompt+strings.Join(summaries, "\n---\n"))
}

func (s *Summarizer) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// estimateTokens approximates the token count of s.
func estimateTokens(s string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(s)) * tokensPerChar))
}

// runesForTokens converts a token budget to a rune budget.
func runesForTokens(tokens int) int {
	return int(math.Ceil(float64(tokens) / tokensPerChar))
}

// chunkText cuts text into chunks of at most chunkTokens, overlapping by
// overlap tokens. Interior chunk ends prefer a sentence boundary, then a
// word boundary.
func chunkText(text string, chunkTokens, overlap int) []string {
	if text == "" || chunkTokens <= 0 {
		return nil
	}

	runes := []rune(text)
	chunkRunes := runesForTokens(chunkTokens)
	if len(runes) <= chunkRunes {
		return []string{text}
	}

	overlapRunes := runesForTokens(overlap)
	if overlapRunes >= chunkRunes {
		overlapRunes = chunkRunes / 4
	}
	step := chunkRunes - overlapRunes
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkRunes
		if end > len(runes) {
			end = len(runes)
		}

		chunk := string(runes[start:end])
		if end < len(runes) {
			if i := strings.LastIndex(chunk, ". "); i >= 0 {
				chunk = chunk[:i+2]
			} else if i := strings.LastIndex(chunk, " "); i >= 0 {
				chunk = chunk[:i+1]
			}
		}
		chunks = append(chunks, chunk)

		if end >= len(runes) {
			break
		}
	}
	return chunks
}
