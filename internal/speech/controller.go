// Package speech plays synthesized sentences in order.
//
// The controller runs one worker goroutine that pulls queued sentences,
// synthesizes them, and plays them through a [Sink]. Its lifecycle per
// sentence is queued → playing → idle; the process-wide speech-playing flag
// tracks whether any audio is audible so the VAD gate and the crosstalk
// coordinator can react.
//
// Stop is the barge-in primitive: it atomically discards everything queued
// and halts the sample block currently playing. A generation counter makes
// the discard exact — sentences enqueued after Stop are unaffected even if
// the worker is mid-dequeue.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/harkvoice/hark/internal/state"
	"github.com/harkvoice/hark/pkg/audio"
	"github.com/harkvoice/hark/pkg/provider/tts"
)

// Sink consumes playable audio. Implementations must honour ctx
// cancellation mid-block; that is what makes Stop cut audio instantly.
type Sink interface {
	// Play blocks until the samples have been played or ctx is cancelled.
	Play(ctx context.Context, samples []float32, sampleRate int) error

	// SetVolume scales subsequent (and, where possible, current) output.
	// 1 is nominal, 0 is silence.
	SetVolume(v float32)
}

// Config tunes the controller.
type Config struct {
	// DuckVolume is the fraction of nominal volume used while ducked.
	// Zero means 0.2.
	DuckVolume float32

	// QueueSize bounds the sentence queue. Zero means 64.
	QueueSize int
}

type item struct {
	text string
	gen  uint64
}

// Controller owns TTS synthesis and playback ordering.
type Controller struct {
	synth tts.Synthesizer
	sink  Sink
	rt    *state.Runtime
	cfg   Config
	log   *slog.Logger

	queue  chan item
	gen    atomic.Uint64
	queued atomic.Int64

	ducked atomic.Bool

	mu         sync.Mutex
	cancelPlay context.CancelFunc
}

// NewController creates a Controller. Call Run to start the worker.
func NewController(synth tts.Synthesizer, sink Sink, rt *state.Runtime, cfg Config, log *slog.Logger) *Controller {
	if cfg.DuckVolume <= 0 {
		cfg.DuckVolume = 0.2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		synth: synth,
		sink:  sink,
		rt:    rt,
		cfg:   cfg,
		log:   log,
		queue: make(chan item, cfg.QueueSize),
	}
}

// Enqueue schedules a sentence for playback. It never blocks; when the
// queue is full the sentence is dropped with an error log, which only
// happens if the sink has wedged.
func (c *Controller) Enqueue(sentence string) {
	if sentence == "" {
		return
	}
	it := item{text: sentence, gen: c.gen.Load()}
	select {
	case c.queue <- it:
		c.queued.Add(1)
	default:
		c.log.Error("speech queue full, dropping sentence")
	}
}

// Stop discards all queued sentences and halts current playback. Sentences
// enqueued after Stop returns play normally.
func (c *Controller) Stop() {
	c.gen.Add(1)

	c.mu.Lock()
	if c.cancelPlay != nil {
		c.cancelPlay()
	}
	c.mu.Unlock()
}

// SetDucked switches between nominal and ducked volume.
func (c *Controller) SetDucked(ducked bool) {
	if c.ducked.Swap(ducked) == ducked {
		return
	}
	if ducked {
		c.sink.SetVolume(c.cfg.DuckVolume)
	} else {
		c.sink.SetVolume(1)
	}
}

// Idle reports whether nothing is queued or playing.
func (c *Controller) Idle() bool {
	return c.queued.Load() == 0 && !c.rt.SpeechPlaying()
}

// Run consumes the queue until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-c.queue:
			c.queued.Add(-1)
			if it.gen != c.gen.Load() {
				// Discarded by a Stop that happened after enqueue.
				if c.queued.Load() == 0 {
					c.rt.SetSpeechPlaying(false)
				}
				continue
			}
			c.playOne(ctx, it)
			// The flag stays up between back-to-back sentences so the VAD
			// gate does not flap in the gaps.
			if c.queued.Load() == 0 {
				c.rt.SetSpeechPlaying(false)
			}
		}
	}
}

func (c *Controller) playOne(ctx context.Context, it item) {
	c.rt.SetSpeechPlaying(true)

	samples, rate, err := c.synth.Synthesize(ctx, it.text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Skip the unspeakable sentence and keep the queue moving.
		c.log.Warn("synthesis failed, skipping sentence", "error", err)
		return
	}
	if it.gen != c.gen.Load() || len(samples) == 0 {
		return
	}

	playCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelPlay = cancel
	c.mu.Unlock()

	c.rt.SetSpeechLevel(audio.RMSLevel(samples))

	err = c.sink.Play(playCtx, samples, rate)

	c.rt.SetSpeechLevel(0)

	c.mu.Lock()
	c.cancelPlay = nil
	c.mu.Unlock()
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("playback failed", "error", err)
	}
}
