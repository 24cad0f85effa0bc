package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/harkvoice/hark/pkg/provider/llm"
	llmmock "github.com/harkvoice/hark/pkg/provider/llm/mock"
)

func TestSummarizeEmptyTranscript(t *testing.T) {
	t.Parallel()
	s := New(&llmmock.Provider{}, Config{}, nil)

	if _, err := s.Summarize(context.Background(), "  \n "); err == nil {
		t.Fatal("expected error for empty transcript, got nil")
	}
}

func TestSummarizeSinglePass(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResp: &llm.CompletionResponse{Content: " The team agreed to ship. "},
	}
	s := New(p, Config{}, nil)

	got, err := s.Summarize(context.Background(), "we talked about the release date")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "The team agreed to ship." {
		t.Errorf("summary = %q, want trimmed model output", got)
	}

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("complete calls = %d, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0]
	if req.SystemPrompt != singleSystem {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if !strings.HasSuffix(req.Messages[0].Content, "we talked about the release date") {
		t.Errorf("prompt does not carry the transcript: %q", req.Messages[0].Content)
	}
}

func TestSummarizeChunksLongTranscript(t *testing.T) {
	t.Parallel()

	// ~70 tokens of text against a 40-token window forces the chunked path.
	transcript := strings.Repeat("Alice proposed the plan. Bob raised concerns. ", 5)

	p := &llmmock.Provider{}
	p.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if req.SystemPrompt == combineSystem {
			return &llm.CompletionResponse{Content: "final summary"}, nil
		}
		return &llm.CompletionResponse{Content: fmt.Sprintf("chunk summary %d", len(p.CompleteCalls))}, nil
	}
	s := New(p, Config{ContextTokens: 40}, nil)

	got, err := s.Summarize(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "final summary" {
		t.Errorf("summary = %q, want %q", got, "final summary")
	}

	if len(p.CompleteCalls) < 3 {
		t.Fatalf("complete calls = %d, want at least 2 chunks plus a combine", len(p.CompleteCalls))
	}
	for _, req := range p.CompleteCalls[:len(p.CompleteCalls)-1] {
		if req.SystemPrompt != chunkSystem {
			t.Errorf("chunk system prompt = %q", req.SystemPrompt)
		}
	}
	last := p.CompleteCalls[len(p.CompleteCalls)-1]
	if last.SystemPrompt != combineSystem {
		t.Errorf("combine system prompt = %q", last.SystemPrompt)
	}
	if !strings.Contains(last.Messages[0].Content, "\n---\n") {
		t.Errorf("combine prompt does not join chunk summaries: %q", last.Messages[0].Content)
	}
}

func TestSummarizeChunkFailureSurfaces(t *testing.T) {
	t.Parallel()

	boom := errors.New("model offline")
	p := &llmmock.Provider{CompleteErr: boom}
	s := New(p, Config{ContextTokens: 40}, nil)

	_, err := s.Summarize(context.Background(), strings.Repeat("words and more words. ", 20))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	t.Run("short text is one chunk", func(t *testing.T) {
		t.Parallel()
		chunks := chunkText("brief", 100, 10)
		if len(chunks) != 1 || chunks[0] != "brief" {
			t.Errorf("chunks = %q, want the whole text", chunks)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		if chunks := chunkText("", 100, 10); chunks != nil {
			t.Errorf("chunks = %q, want nil", chunks)
		}
	})

	t.Run("interior chunks end at sentence boundary", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("One sentence here. ", 30)
		chunks := chunkText(text, 30, 5)
		if len(chunks) < 2 {
			t.Fatalf("chunks = %d, want several", len(chunks))
		}
		for i, c := range chunks[:len(chunks)-1] {
			if !strings.HasSuffix(c, ". ") {
				t.Errorf("chunk %d ends %q, want a sentence boundary", i, c[max(0, len(c)-12):])
			}
		}
	})

	t.Run("consecutive chunks overlap", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("word ", 100)
		chunks := chunkText(text, 30, 10)
		if len(chunks) < 2 {
			t.Fatalf("chunks = %d, want several", len(chunks))
		}
		// With overlap the chunks together carry more runes than the text.
		var total int
		for _, c := range chunks {
			total += len([]rune(c))
		}
		if total <= len([]rune(text)) {
			t.Errorf("total chunk runes = %d, text runes = %d, want overlap", total, len([]rune(text)))
		}
	})
}
