package exercise

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
)

// fakeIO answers listens from a script or a function of the last spoken line.
type fakeIO struct {
	spoken    []string
	answers   []string
	reply     func(lastSpoken string) string
	latencyMs float64
	decisions []Decision
	listens   int
	encourage []string
}

func (f *fakeIO) Speak(_ context.Context, text string) error {
	if strings.TrimSpace(text) != "" {
		f.spoken = append(f.spoken, text)
	}
	return nil
}

func (f *fakeIO) next() string {
	f.listens++
	if f.reply != nil {
		last := ""
		if len(f.spoken) > 0 {
			last = f.spoken[len(f.spoken)-1]
		}
		return f.reply(last)
	}
	if len(f.answers) == 0 {
		return ""
	}
	a := f.answers[0]
	f.answers = f.answers[1:]
	return a
}

func (f *fakeIO) Listen(context.Context) (ListenResult, error) {
	text := f.next()
	return ListenResult{Transcript: text, LatencyMs: f.latency(text)}, nil
}

func (f *fakeIO) ListenBrief(_ context.Context, _ time.Duration) (BriefResult, error) {
	text := f.next()
	return BriefResult{Transcript: text, LatencyMs: f.latency(text), HasResponse: text != ""}, nil
}

func (f *fakeIO) ListenForDuration(_ context.Context, _ time.Duration, enc Encourager) (ListenResult, error) {
	if enc != nil {
		f.encourage = append(f.encourage, enc(1))
	}
	text := f.next()
	return ListenResult{Transcript: text, LatencyMs: f.latency(text)}, nil
}

func (f *fakeIO) GenerateResponse(_ context.Context, msg string, _ content.Activity, turn int) (Decision, error) {
	if len(f.decisions) == 0 {
		return Decision{Text: "Thanks for sharing.", FollowUp: false}, nil
	}
	d := f.decisions[0]
	f.decisions = f.decisions[1:]
	return d, nil
}

func (f *fakeIO) latency(text string) float64 {
	if text == "" {
		return 0
	}
	if f.latencyMs == 0 {
		return 800
	}
	return f.latencyMs
}

func newTestContext(io IO, state *SessionState) *Context {
	return NewContext(io, state, nil, rand.New(rand.NewSource(42)))
}
