// Package mock provides a test double for the llm package.
//
// Use Provider to feed scripted chunk sequences to the streaming session and
// inspect the requests it built.
package mock

import (
	"context"
	"sync"

	"github.com/harkvoice/hark/pkg/provider/llm"
)

// StreamCall records a single invocation of Provider.StreamCompletion.
type StreamCall struct {
	// Req is the request passed to StreamCompletion.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted in order on each stream. Emission respects context
	// cancellation.
	Chunks []llm.Chunk

	// ChunkDelay, if set, is awaited before each chunk emission so tests can
	// interleave cancellation with streaming.
	ChunkDelay func(ctx context.Context) error

	// OpenDelay, if set, is awaited before the stream opens. A non-nil
	// return is surfaced as the StreamCompletion error, so tests can fail
	// or cancel the request before any chunk exists.
	OpenDelay func(ctx context.Context) error

	// StreamErr, if non-nil, is returned from StreamCompletion itself.
	StreamErr error

	// StreamCalls records every call to StreamCompletion.
	StreamCalls []StreamCall

	// CompleteResp and CompleteErr script the Complete method. CompleteFunc,
	// when set, takes precedence and is called with each request.
	CompleteResp *llm.CompletionResponse
	CompleteErr  error
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteCalls records every request passed to Complete.
	CompleteCalls []llm.CompletionRequest
}

// StreamCompletion records the call and streams the scripted chunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Req: req})
	chunks := make([]llm.Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	delay := p.ChunkDelay
	open := p.OpenDelay
	err := p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if open != nil {
		if err := open(ctx); err != nil {
			return nil, err
		}
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if delay != nil {
				if delay(ctx) != nil {
					return
				}
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns the scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	fn := p.CompleteFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResp != nil {
		return p.CompleteResp, nil
	}
	return &llm.CompletionResponse{}, nil
}

// CallCount returns the number of recorded stream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
