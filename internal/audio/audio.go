// Package audio is the device's PCM boundary: microphone frames in, speaker
// buffers out. Capture is 16kHz mono PCM16LE in 10ms frames.
package audio

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

const (
	// SampleRate of captured audio.
	SampleRate = 16000
	// FrameSamples is one 10ms capture frame.
	FrameSamples = SampleRate / 100
	// FrameDuration is the audio time covered by one frame.
	FrameDuration = 10 * time.Millisecond
)

// Frame is one 10ms mono capture frame.
type Frame []int16

// Source yields consecutive capture frames. ReadFrame blocks until a full
// frame is available.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// Discarder is a Source that can drop audio captured while nobody was
// reading, e.g. the device's own prompt picked up by the microphone.
type Discarder interface {
	Discard() int
}

// Player plays PCM16LE mono audio at the given sample rate and returns when
// playback finished.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// RMS is the root-mean-square energy of f.
func (f Frame) RMS() float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		x := float64(s)
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(f)))
}

// Decode splits PCM16LE bytes into frames of FrameSamples; a trailing partial
// frame is dropped.
func Decode(pcm []byte) []Frame {
	var out []Frame
	for off := 0; off+FrameSamples*2 <= len(pcm); off += FrameSamples * 2 {
		f := make(Frame, FrameSamples)
		for i := range f {
			f[i] = int16(binary.LittleEndian.Uint16(pcm[off+i*2:]))
		}
		out = append(out, f)
	}
	return out
}

// Encode writes frames back to PCM16LE bytes.
func Encode(frames []Frame) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n*2)
	for _, f := range frames {
		for _, s := range f {
			out = binary.LittleEndian.AppendUint16(out, uint16(s))
		}
	}
	return out
}
