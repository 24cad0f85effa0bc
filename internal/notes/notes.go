// Package notes defines the persistent note store used by note mode.
//
// Notes are short spoken memos. Each is embedded at save time so recall can
// rank by semantic similarity rather than substring match.
package notes

import (
	"context"
	"time"
)

// Note is one stored memo.
type Note struct {
	ID        int64
	Text      string
	CreatedAt time.Time
}

// Result is one search hit. Distance is the cosine distance to the query
// embedding; smaller is more similar.
type Result struct {
	Note
	Distance float32
}

// Store persists and searches notes. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save embeds and persists one note.
	Save(ctx context.Context, text string) error

	// Search returns up to topK notes ranked by similarity to query.
	Search(ctx context.Context, query string, topK int) ([]Result, error)

	// Recall is Search reduced to the note texts, most similar first.
	Recall(ctx context.Context, query string, topK int) ([]string, error)
}
