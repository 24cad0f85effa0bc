// Package mock provides a test double for the embeddings package.
package mock

import (
	"context"
	"sync"

	"github.com/harkvoice/hark/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider. It returns a
// deterministic vector derived from the input text so tests can assert
// stable similarity orderings without a real model.
type Provider struct {
	mu sync.Mutex

	// Dim is the reported dimensionality. Zero means 8.
	Dim int

	// Err, if non-nil, is returned by every Embed call.
	Err error

	// Texts records every embedded text in order.
	Texts []string
}

// Embed hashes text into a unit-ish vector of Dim components.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	err := p.Err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	dim := p.Dimensions()
	vec := make([]float32, dim)
	var h uint32 = 2166136261
	for _, c := range []byte(text) {
		h = (h ^ uint32(c)) * 16777619
	}
	for i := range vec {
		h = h*1664525 + 1013904223
		vec[i] = float32(h%1000)/1000 - 0.5
	}
	return vec, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dim == 0 {
		return 8
	}
	return p.Dim
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock" }

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
