// Package capture defines where microphone audio comes from.
//
// A Source emits canonical-rate frames until its input ends or fails.
// Device failures are fatal: a capture stream that silently
// stalls is worse than one that dies loudly, so read timeouts surface as
// [ErrDevice] rather than quiet gaps.
package capture

import (
	"context"
	"errors"

	"github.com/harkvoice/hark/pkg/audio"
)

// ErrDevice marks fatal capture failures: the device or feed is gone, the
// pipeline should shut down.
var ErrDevice = errors.New("capture device failure")

// Source produces the microphone frame stream.
type Source interface {
	// Frames starts capture. The frame channel closes when the input ends
	// cleanly or ctx is cancelled; the error channel delivers at most one
	// error before closing and is nil-safe to receive from after close.
	Frames(ctx context.Context) (<-chan audio.Frame, <-chan error)
}
