// Package wsbridge connects capture and playback to a companion audio
// process over websockets.
//
// The companion owns the actual sound hardware and speaks a trivially dumb
// protocol: binary messages of little-endian int16 PCM, mono, at an agreed
// sample rate. One socket streams microphone audio in, a second accepts
// playback audio out. Keeping the hardware out-of-process means the
// pipeline never links against a platform audio stack.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/harkvoice/hark/internal/capture"
	"github.com/harkvoice/hark/internal/state"
	"github.com/harkvoice/hark/pkg/audio"
)

// SourceConfig tunes the microphone feed.
type SourceConfig struct {
	// URL of the companion's microphone socket.
	URL string

	// SampleRate of the incoming PCM. Zero means the canonical rate.
	SampleRate int

	// ReadTimeout bounds the gap between messages. A feed quieter than
	// this is treated as a dead device. Zero means 5s.
	ReadTimeout time.Duration
}

// Source reads microphone PCM from the companion process.
type Source struct {
	cfg SourceConfig
	rt  *state.Runtime
	log *slog.Logger
}

// NewSource creates a Source. rt receives the mic level gauge; may be nil.
func NewSource(cfg SourceConfig, rt *state.Runtime, log *slog.Logger) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CanonicalRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
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

	conn, _, err := websocket.Dial(ctx, s.cfg.URL, nil)
	if err != nil {
		errs <- fmt.Errorf("%w: dial %s: %v", capture.ErrDevice, s.cfg.URL, err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "capture stopped")

	s.log.Info("capture feed connected", "url", s.cfg.URL, "rate", s.cfg.SampleRate)

	var (
		pending []float32
		seq     uint64
	)
	for {
		readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.log.Info("capture feed closed")
				return
			}
			errs <- fmt.Errorf("%w: read: %v", capture.ErrDevice, err)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}

		samples := audio.DecodePCM16(data)
		samples = audio.Resample(samples, s.cfg.SampleRate, audio.CanonicalRate)
		pending = append(pending, samples...)

		for len(pending) >= audio.FrameSamples {
			block := make([]float32, audio.FrameSamples)
			copy(block, pending[:audio.FrameSamples])
			pending = pending[audio.FrameSamples:]

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

			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)

// SinkConfig tunes the playback connection.
type SinkConfig struct {
	// URL of the companion's playback socket.
	URL string

	// BlockDur is the pacing granularity. Playback is written in blocks of
	// this length and paced to real time, so a Stop cuts audio within one
	// block. Zero means 30ms.
	BlockDur time.Duration
}

// Sink streams playback PCM to the companion process. It implements
// speech.Sink; Play calls are serialized by the speech controller, but
// SetVolume may race with Play and is therefore atomic.
type Sink struct {
	cfg  SinkConfig
	log  *slog.Logger
	conn *websocket.Conn

	mu     sync.Mutex // guards writes
	volume atomic.Uint32
}

// NewSink dials the playback socket.
func NewSink(ctx context.Context, cfg SinkConfig, log *slog.Logger) (*Sink, error) {
	if cfg.BlockDur <= 0 {
		cfg.BlockDur = 30 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	conn, _, err := websocket.Dial(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("playback sink: dial %s: %w", cfg.URL, err)
	}
	s := &Sink{cfg: cfg, log: log, conn: conn}
	s.SetVolume(1)
	return s, nil
}

// Close shuts the playback socket.
func (s *Sink) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "playback stopped")
}

// SetVolume scales subsequent blocks. Takes effect at the next block
// boundary, which is what makes ducking feel immediate at 30ms blocks.
func (s *Sink) SetVolume(v float32) {
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	s.volume.Store(math.Float32bits(v))
}

func (s *Sink) currentVolume() float32 {
	return math.Float32frombits(s.volume.Load())
}

// Play streams samples in paced blocks, honouring ctx between blocks.
func (s *Sink) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return errors.New("playback sink: invalid sample rate")
	}
	samples = audio.Resample(samples, sampleRate, audio.CanonicalRate)

	block := int(s.cfg.BlockDur * audio.CanonicalRate / time.Second)
	if block <= 0 {
		block = audio.FrameSamples
	}

	pace := time.NewTicker(s.cfg.BlockDur)
	defer pace.Stop()

	scaled := make([]float32, block)
	for off := 0; off < len(samples); off += block {
		end := off + block
		if end > len(samples) {
			end = len(samples)
		}

		vol := s.currentVolume()
		scaled = scaled[:end-off]
		for i, v := range samples[off:end] {
			scaled[i] = v * vol
		}

		s.mu.Lock()
		err := s.conn.Write(ctx, websocket.MessageBinary, audio.EncodePCM16(scaled))
		s.mu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("playback sink: write: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pace.C:
		}
	}
	return nil
}
