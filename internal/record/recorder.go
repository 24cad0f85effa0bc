// Package record optionally persists closed utterances as Opus packet
// files, for capture debugging and VAD tuning against real audio.
//
// The file format is deliberately dumb: an 8-byte magic, then a sequence of
// uint32 little-endian length-prefixed Opus packets. Mono 16 kHz, 20 ms
// packets.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"layeh.com/gopus"

	"github.com/harkvoice/hark/internal/vad"
	"github.com/harkvoice/hark/pkg/audio"
)

const (
	// frameSamples is samples per 20 ms Opus frame at the canonical rate.
	frameSamples = audio.CanonicalRate * 20 / 1000 // 320

	// maxPacket bounds one encoded packet.
	maxPacket = 4000
)

var fileMagic = [8]byte{'h', 'r', 'k', 'o', 'p', 'u', 's', '1'}

// ErrBadMagic reports a packet file that does not start with the expected
// header.
var ErrBadMagic = errors.New("record: not an utterance packet file")

// Recorder writes one file per closed utterance into a directory. Safe to
// call from the segmentation goroutine only.
type Recorder struct {
	dir string
	log *slog.Logger
}

// NewRecorder creates the target directory if needed.
func NewRecorder(dir string, log *slog.Logger) (*Recorder, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create dir: %w", err)
	}
	return &Recorder{dir: dir, log: log}, nil
}

// OnEvent persists the utterance behind a SpeechEnd event. Failures are
// logged, never fatal; recording is a debugging aid.
func (r *Recorder) OnEvent(ev vad.Event) {
	if ev.Type != vad.SpeechEnd {
		return
	}
	name := fmt.Sprintf("utt-%06d-%s.opuspkt", ev.Utterance.ID, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(r.dir, name)
	if err := r.writeUtterance(path, ev.Utterance.Samples); err != nil {
		r.log.Warn("utterance recording failed", "path", path, "error", err)
		return
	}
	r.log.Debug("utterance recorded", "path", path, "samples", len(ev.Utterance.Samples))
}

func (r *Recorder) writeUtterance(path string, samples []float32) error {
	packets, err := encodePackets(samples)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("record: create file: %w", err)
	}
	defer f.Close()

	if err := writePackets(f, packets); err != nil {
		return err
	}
	return f.Close()
}

// encodePackets encodes samples into 20 ms Opus packets. A fresh encoder
// per utterance keeps files independently decodable.
func encodePackets(samples []float32) ([][]byte, error) {
	enc, err := gopus.NewEncoder(audio.CanonicalRate, 1, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("record: create opus encoder: %w", err)
	}

	pcm := toInt16(samples)
	var packets [][]byte
	for off := 0; off < len(pcm); off += frameSamples {
		frame := pcm[off:min(off+frameSamples, len(pcm))]
		if len(frame) < frameSamples {
			padded := make([]int16, frameSamples)
			copy(padded, frame)
			frame = padded
		}
		pkt, err := enc.Encode(frame, frameSamples, maxPacket)
		if err != nil {
			return nil, fmt.Errorf("record: opus encode: %w", err)
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// writePackets emits the magic header and length-prefixed packets.
func writePackets(w io.Writer, packets [][]byte) error {
	if _, err := w.Write(fileMagic[:]); err != nil {
		return fmt.Errorf("record: write header: %w", err)
	}
	var lenBuf [4]byte
	for _, pkt := range packets {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(pkt)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("record: write packet length: %w", err)
		}
		if _, err := w.Write(pkt); err != nil {
			return fmt.Errorf("record: write packet: %w", err)
		}
	}
	return nil
}

// ReadPackets parses a packet file back into raw Opus packets.
func ReadPackets(r io.Reader) ([][]byte, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("record: read header: %w", err)
	}
	if magic != fileMagic {
		return nil, ErrBadMagic
	}

	var packets [][]byte
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return packets, nil
			}
			return nil, fmt.Errorf("record: read packet length: %w", err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n > maxPacket {
			return nil, fmt.Errorf("record: packet length %d exceeds maximum", n)
		}
		pkt := make([]byte, n)
		if _, err := io.ReadFull(r, pkt); err != nil {
			return nil, fmt.Errorf("record: read packet: %w", err)
		}
		packets = append(packets, pkt)
	}
}

func toInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}
