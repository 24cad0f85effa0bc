package vad

import (
	"time"

	"github.com/harkvoice/hark/pkg/audio"
)

// EventType tags a segmentation event.
type EventType int

const (
	// SpeechStart marks the confirmed beginning of an utterance. The
	// utterance already contains the prefill frames and the onset frames.
	SpeechStart EventType = iota

	// SpeechContinuing is emitted for every frame appended to an open
	// utterance after SpeechStart.
	SpeechContinuing

	// SpeechEnd marks a closed utterance. The utterance's samples are
	// complete and End is set.
	SpeechEnd
)

// String returns the event type name used in logs.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinuing:
		return "speech_continuing"
	case SpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// Utterance is one VAD-bounded speech span. Samples accumulate while the
// utterance is open; consumers that hand samples to another goroutine must
// copy them first.
type Utterance struct {
	ID      uint64
	Samples []float32
	Start   time.Duration
	End     time.Duration
}

// Dur returns the utterance length implied by its sample count.
func (u *Utterance) Dur() time.Duration {
	return time.Duration(len(u.Samples)) * time.Second / audio.CanonicalRate
}

// Event is one segmentation output.
type Event struct {
	Type      EventType
	Utterance *Utterance
}

// SegmenterConfig holds the boundary-decision tuning knobs. The defaults
// are the values the pipeline has been tuned with; they are exposed in the
// config file rather than trusted as optimal.
type SegmenterConfig struct {
	// EnterThreshold is the engine score at or above which a frame counts
	// as speech while idle. Must be above ExitThreshold (hysteresis).
	EnterThreshold float32

	// ExitThreshold is the engine score below which a frame counts as
	// silence while speaking.
	ExitThreshold float32

	// OnsetFrames is how many consecutive speech frames confirm an onset.
	OnsetFrames int

	// PrefillFrames is how many pre-onset frames are retained and prepended
	// to the utterance so the first syllable is not clipped.
	PrefillFrames int

	// HangoverFrames is how many consecutive silent frames close an open
	// utterance. Brief pauses shorter than this stay inside the utterance.
	HangoverFrames int

	// MinUtterance discards utterances shorter than this once closed.
	MinUtterance time.Duration

	// MaxUtterance force-closes an utterance that grows past this length.
	MaxUtterance time.Duration

	// ChunkFallback is the fixed chunk length used when no engine is
	// configured.
	ChunkFallback time.Duration
}

// DefaultSegmenterConfig returns the tuning used with the energy engine.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		EnterThreshold: 0.01,
		ExitThreshold:  0.006,
		OnsetFrames:    3,
		PrefillFrames:  10,
		HangoverFrames: 15,
		MinUtterance:   500 * time.Millisecond,
		MaxUtterance:   10 * time.Second,
		ChunkFallback:  3 * time.Second,
	}
}

type segPhase int

const (
	phaseIdle segPhase = iota
	phaseOnset
	phaseSpeaking
)

// Segmenter turns scored frames into utterance boundary events. Not safe
// for concurrent use; it lives on the segmentation goroutine.
type Segmenter struct {
	cfg    SegmenterConfig
	engine Engine

	phase   segPhase
	nextID  uint64
	current *Utterance

	// prefill is a ring of the most recent non-speech frames.
	prefill [][]float32
	// onset buffers the first unconfirmed speech frames.
	onset      [][]float32
	onsetStart time.Duration

	silentRun int

	// chunk state for the no-engine fallback.
	chunk      []float32
	chunkStart time.Duration
	chunkSet   bool
}

// NewSegmenter creates a Segmenter. engine may be nil, selecting the
// fixed-duration chunk fallback.
func NewSegmenter(engine Engine, cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg, engine: engine, nextID: 1}
}

// Process feeds one frame through the boundary state machine and returns
// any events it produced, in order.
func (s *Segmenter) Process(frame audio.Frame) []Event {
	if s.engine == nil {
		return s.processChunked(frame)
	}

	score := s.engine.SpeechProbability(frame)

	switch s.phase {
	case phaseIdle:
		if score >= s.cfg.EnterThreshold {
			s.phase = phaseOnset
			s.onset = s.onset[:0]
			s.onset = append(s.onset, copySamples(frame.Samples))
			s.onsetStart = frame.Timestamp
			return nil
		}
		s.pushPrefill(frame.Samples)
		return nil

	case phaseOnset:
		if score < s.cfg.EnterThreshold {
			// False start. The buffered frames become prefill history.
			for _, f := range s.onset {
				s.pushPrefill(f)
			}
			s.pushPrefill(frame.Samples)
			s.phase = phaseIdle
			return nil
		}
		s.onset = append(s.onset, copySamples(frame.Samples))
		if len(s.onset) < s.cfg.OnsetFrames {
			return nil
		}

		// Onset confirmed: assemble prefill + onset into a new utterance.
		u := &Utterance{ID: s.nextID, Start: s.onsetStart}
		s.nextID++
		for _, f := range s.prefill {
			u.Samples = append(u.Samples, f...)
		}
		for _, f := range s.onset {
			u.Samples = append(u.Samples, f...)
		}
		s.prefill = s.prefill[:0]
		s.onset = s.onset[:0]
		s.current = u
		s.phase = phaseSpeaking
		s.silentRun = 0
		return []Event{{Type: SpeechStart, Utterance: u}}

	case phaseSpeaking:
		s.current.Samples = append(s.current.Samples, frame.Samples...)

		if score < s.cfg.ExitThreshold {
			s.silentRun++
		} else {
			s.silentRun = 0
		}

		if s.silentRun >= s.cfg.HangoverFrames || s.current.Dur() >= s.cfg.MaxUtterance {
			return s.close(frame.Timestamp + frame.Duration())
		}
		return []Event{{Type: SpeechContinuing, Utterance: s.current}}
	}
	return nil
}

// Reset drops any in-progress utterance and clears engine state. Called when
// segmentation is gated off (mute, playback without crosstalk) so a half
// captured utterance does not resume later with a hole in the middle.
func (s *Segmenter) Reset() {
	s.phase = phaseIdle
	s.current = nil
	s.onset = s.onset[:0]
	s.prefill = s.prefill[:0]
	s.silentRun = 0
	s.chunk = nil
	s.chunkSet = false
	if s.engine != nil {
		s.engine.Reset()
	}
}

// close ends the current utterance, discarding it when too short. The
// trailing hangover silence stays in the buffer (transcription benefits from
// the context) but does not count toward the minimum length.
func (s *Segmenter) close(end time.Duration) []Event {
	u := s.current
	trailing := time.Duration(s.silentRun) * time.Duration(audio.FrameSamples) * time.Second / audio.CanonicalRate
	s.current = nil
	s.phase = phaseIdle
	s.silentRun = 0

	u.End = end
	if u.Dur()-trailing < s.cfg.MinUtterance {
		return nil
	}
	return []Event{{Type: SpeechEnd, Utterance: u}}
}

func (s *Segmenter) pushPrefill(samples []float32) {
	if s.cfg.PrefillFrames <= 0 {
		return
	}
	s.prefill = append(s.prefill, copySamples(samples))
	if len(s.prefill) > s.cfg.PrefillFrames {
		s.prefill = s.prefill[1:]
	}
}

// processChunked implements the no-engine fallback: fixed-length chunks,
// finals only.
func (s *Segmenter) processChunked(frame audio.Frame) []Event {
	if !s.chunkSet {
		s.chunkStart = frame.Timestamp
		s.chunkSet = true
	}
	s.chunk = append(s.chunk, frame.Samples...)

	chunkLen := time.Duration(len(s.chunk)) * time.Second / audio.CanonicalRate
	if chunkLen < s.cfg.ChunkFallback {
		return nil
	}

	u := &Utterance{
		ID:      s.nextID,
		Samples: s.chunk,
		Start:   s.chunkStart,
		End:     frame.Timestamp + frame.Duration(),
	}
	s.nextID++
	s.chunk = nil
	s.chunkSet = false
	return []Event{{Type: SpeechEnd, Utterance: u}}
}

func copySamples(in []float32) []float32 {
	out := make([]float32, len(in))
	copy(out, in)
	return out
}
