// Package audio defines the frame type and PCM helpers shared by the hark
// pipeline.
//
// All downstream processing runs on mono float32 samples at [CanonicalRate].
// Capture sources convert whatever the device or feed delivers into that
// format before a frame enters the pipeline; everything after the capture
// boundary can assume it.
package audio

import (
	"math"
	"time"
)

// CanonicalRate is the sample rate every pipeline stage operates at.
const CanonicalRate = 16000

// FrameSamples is the number of samples per VAD frame at [CanonicalRate]
// (30 ms).
const FrameSamples = 480

// Frame is a fixed-duration block of mono samples flowing from capture into
// VAD segmentation. Frames are handed off by value and never retained beyond
// one processing step; the segmenter copies what it keeps.
type Frame struct {
	// Samples holds mono float32 PCM in [-1, 1] at CanonicalRate.
	Samples []float32

	// Seq is a monotonically increasing sequence number assigned by the
	// capture source.
	Seq uint64

	// RMS is the root-mean-square level of Samples, precomputed by capture.
	RMS float32

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame at CanonicalRate.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / CanonicalRate
}

// RMSLevel computes the root-mean-square level of a sample block.
func RMSLevel(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
