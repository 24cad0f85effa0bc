// Package transcribe turns utterance events into preview and final
// transcripts.
//
// Previews are best-effort: requests and results both travel over lossy
// capacity-1 latest-wins channels, so a slow transcriber can never apply
// backpressure to the segmentation goroutine and consumers only ever see
// the freshest preview. Finals are the opposite: one per utterance, retried
// once on failure, delivered in order over a reliable channel.
package transcribe

import (
	"context"
	"log/slog"
	"time"

	"github.com/harkvoice/hark/internal/vad"
	"github.com/harkvoice/hark/pkg/audio"
	"github.com/harkvoice/hark/pkg/provider/stt"
)

// Result is one transcript, preview or final.
type Result struct {
	Text        string
	UtteranceID uint64
	Final       bool

	// Dur is the audio length behind a final transcript; zero on previews.
	// The crosstalk coordinator uses it to tell sustained speech from blips.
	Dur time.Duration
}

// request is a snapshot of utterance audio queued for transcription.
type request struct {
	id      uint64
	samples []float32
}

// audioDur converts a sample count at the canonical rate to wall time.
func audioDur(samples int) time.Duration {
	return time.Duration(samples) * time.Second / audio.CanonicalRate
}

// Config tunes the dispatcher.
type Config struct {
	// PreviewInterval is the minimum gap between preview requests for one
	// utterance. Zero means 500ms.
	PreviewInterval time.Duration

	// FinalQueue is the buffer size of the pending-finals queue. Zero means
	// 8.
	FinalQueue int
}

// Metrics receives dispatcher counters. All methods are called from
// dispatcher goroutines and must be safe for concurrent use.
type Metrics interface {
	PreviewDropped(ctx context.Context)
	FinalDone(ctx context.Context, latency time.Duration, err error)
}

// Dispatcher owns the preview and final transcription workers.
type Dispatcher struct {
	tr  stt.Transcriber
	cfg Config
	log *slog.Logger
	met Metrics

	previewReq chan request
	finalReq   chan request

	previews chan Result
	finals   chan Result

	lastPreview map[uint64]time.Time
}

// New creates a Dispatcher reading audio snapshots from segmenter events and
// writing results to Previews and Finals. met may be nil.
func New(tr stt.Transcriber, cfg Config, log *slog.Logger, met Metrics) *Dispatcher {
	if cfg.PreviewInterval <= 0 {
		cfg.PreviewInterval = 500 * time.Millisecond
	}
	if cfg.FinalQueue <= 0 {
		cfg.FinalQueue = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		tr:          tr,
		cfg:         cfg,
		log:         log,
		met:         met,
		previewReq:  make(chan request, 1),
		finalReq:    make(chan request, cfg.FinalQueue),
		previews:    make(chan Result, 1),
		finals:      make(chan Result, cfg.FinalQueue),
		lastPreview: make(map[uint64]time.Time),
	}
}

// Previews returns the lossy preview result channel. Any number of
// consecutive values may be dropped; only the latest is retained.
func (d *Dispatcher) Previews() <-chan Result { return d.previews }

// Finals returns the reliable, ordered final result channel.
func (d *Dispatcher) Finals() <-chan Result { return d.finals }

// OnEvent feeds one segmentation event into the dispatcher. Called from the
// segmentation goroutine; never blocks on preview work.
func (d *Dispatcher) OnEvent(ev vad.Event) {
	switch ev.Type {
	case vad.SpeechStart:
		d.lastPreview[ev.Utterance.ID] = time.Now()

	case vad.SpeechContinuing:
		last, ok := d.lastPreview[ev.Utterance.ID]
		if ok && time.Since(last) < d.cfg.PreviewInterval {
			return
		}
		d.lastPreview[ev.Utterance.ID] = time.Now()
		offerLatest(d.previewReq, request{
			id:      ev.Utterance.ID,
			samples: copySamples(ev.Utterance.Samples),
		}, func() {
			if d.met != nil {
				d.met.PreviewDropped(context.Background())
			}
		})

	case vad.SpeechEnd:
		delete(d.lastPreview, ev.Utterance.ID)
		req := request{id: ev.Utterance.ID, samples: copySamples(ev.Utterance.Samples)}
		select {
		case d.finalReq <- req:
		default:
			// The final queue only fills if the transcriber has been stuck
			// for several utterances. Dropping here is the lesser evil
			// versus stalling segmentation.
			d.log.Error("final transcription queue full, discarding utterance",
				"utterance", req.id)
		}
	}
}

// Run processes requests until ctx is cancelled. It owns both worker loops.
func (d *Dispatcher) Run(ctx context.Context) error {
	go d.previewWorker(ctx)
	d.finalWorker(ctx)
	return ctx.Err()
}

func (d *Dispatcher) previewWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.previewReq:
			text, err := d.tr.Transcribe(ctx, req.samples)
			if err != nil {
				// Previews are best-effort; failures stay quiet.
				d.log.Debug("preview transcription failed", "utterance", req.id, "error", err)
				continue
			}
			offerLatest(d.previews, Result{Text: text, UtteranceID: req.id}, func() {
				if d.met != nil {
					d.met.PreviewDropped(ctx)
				}
			})
		}
	}
}

func (d *Dispatcher) finalWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.finalReq:
			start := time.Now()
			text, err := d.transcribeFinal(ctx, req)
			if d.met != nil {
				d.met.FinalDone(ctx, time.Since(start), err)
			}
			if err != nil {
				// The utterance is gone; the interaction loop stays in
				// whatever state it was in.
				d.log.Error("final transcription failed, discarding utterance",
					"utterance", req.id, "error", err)
				continue
			}
			select {
			case d.finals <- Result{Text: text, UtteranceID: req.id, Final: true, Dur: audioDur(len(req.samples))}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// transcribeFinal runs the final request with a single retry.
func (d *Dispatcher) transcribeFinal(ctx context.Context, req request) (string, error) {
	text, err := d.tr.Transcribe(ctx, req.samples)
	if err == nil || ctx.Err() != nil {
		return text, err
	}
	d.log.Warn("final transcription failed, retrying once",
		"utterance", req.id, "error", err)
	return d.tr.Transcribe(ctx, req.samples)
}

// offerLatest delivers v over a capacity-1 channel, replacing an undelivered
// previous value. onDrop fires when a value is displaced.
func offerLatest[T any](ch chan T, v T, onDrop func()) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
			if onDrop != nil {
				onDrop()
			}
		default:
		}
	}
}

func copySamples(in []float32) []float32 {
	out := make([]float32, len(in))
	copy(out, in)
	return out
}
