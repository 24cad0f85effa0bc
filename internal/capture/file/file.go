// Package file replays a raw PCM recording as a capture source, for offline
// runs and pipeline tests.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/harkvoice/hark/internal/capture"
	"github.com/harkvoice/hark/internal/state"
	"github.com/harkvoice/hark/pkg/audio"
)

// Config tunes the replay.
type Config struct {
	// Path to a raw little-endian int16 mono PCM file.
	Path string

	// SampleRate of the file. Zero means the canonical rate.
	SampleRate int

	// Realtime paces frames at wall-clock speed. Off, the file replays as
	// fast as the consumer drains it.
	Realtime bool
}

// Source replays one PCM file, then closes its frame channel.
type Source struct {
	cfg Config
	rt  *state.Runtime
	log *slog.Logger
}

// New creates a Source. rt may be nil.
func New(cfg Config, rt *state.Runtime, log *slog.Logger) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CanonicalRate
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{cfg: cfg, rt: rt, log: log}
}

// Frames implements [capture.Source].
func (s *Source) Frames(ctx context.Context) (<-chan audio.Frame, <-chan error) {
	frames := make(chan audio.Frame, 16)
	errs := make(chan error, 1)
	go s.run(ctx, frames, errs)
	return frames, errs
}

func (s *Source) run(ctx context.Context, frames chan<- audio.Frame, errs chan<- error) {
	defer close(frames)
	defer close(errs)

	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		errs <- fmt.Errorf("%w: read %s: %v", capture.ErrDevice, s.cfg.Path, err)
		return
	}
	samples := audio.Resample(audio.DecodePCM16(data), s.cfg.SampleRate, audio.CanonicalRate)
	s.log.Info("replaying capture file", "path", s.cfg.Path,
		"dur", time.Duration(len(samples))*time.Second/audio.CanonicalRate)

	var pace *time.Ticker
	if s.cfg.Realtime {
		pace = time.NewTicker(time.Duration(audio.FrameSamples) * time.Second / audio.CanonicalRate)
		defer pace.Stop()
	}

	var seq uint64
	for off := 0; off+audio.FrameSamples <= len(samples); off += audio.FrameSamples {
		block := make([]float32, audio.FrameSamples)
		copy(block, samples[off:off+audio.FrameSamples])

		f := audio.Frame{
			Samples:   block,
			Seq:       seq,
			RMS:       audio.RMSLevel(block),
			Timestamp: time.Duration(seq) * time.Duration(audio.FrameSamples) * time.Second / audio.CanonicalRate,
		}
		seq++
		if s.rt != nil {
			s.rt.SetMicLevel(f.RMS)
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				return
			case <-pace.C:
			}
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)
