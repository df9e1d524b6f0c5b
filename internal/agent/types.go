package agent

import (
	"context"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/voice"
)

// Transcriber turns one recorded utterance (16kHz PCM16LE) into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// LLM generates a single reply for a system prompt and a user prompt.
type LLM interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// TTS renders text to 48kHz PCM16LE mono.
type TTS interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays rendered audio to the speaker.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// Recorder captures microphone audio in the three listen shapes.
type Recorder interface {
	Utterance(ctx context.Context) (voice.Recording, error)
	Window(ctx context.Context, d time.Duration) (voice.Recording, error)
	Span(ctx context.Context, d, segment time.Duration, between func(i int)) (voice.Recording, error)
}
