// Package exercise runs single activities. Each handler drives speak/listen
// turns through a Context and turns what it hears into an ActivityResult.
package exercise

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
)

// ListenResult is what one listen window produced. Transcript is empty when
// nothing intelligible was captured; LatencyMs is time to first speech.
type ListenResult struct {
	Transcript string
	LatencyMs  float64
}

// BriefResult is a short fixed-window listen.
type BriefResult struct {
	Transcript  string
	LatencyMs   float64
	HasResponse bool
}

// Decision is the conversational follow-up decision.
type Decision struct {
	Text     string `json:"text"`
	FollowUp bool   `json:"follow_up"`
}

// Encourager returns the line to speak after recording segment n (1-based)
// of a long listen, or "" for none.
type Encourager func(segment int) string

// IO is the live speech boundary. Every call blocks until its audio or
// network work completes or its own window elapses.
type IO interface {
	// Speak plays text; empty or whitespace text is a no-op.
	Speak(ctx context.Context, text string) error
	Listen(ctx context.Context) (ListenResult, error)
	ListenBrief(ctx context.Context, window time.Duration) (BriefResult, error)
	ListenForDuration(ctx context.Context, d time.Duration, encourage Encourager) (ListenResult, error)
	// GenerateResponse must be safe to call with an empty message.
	GenerateResponse(ctx context.Context, userMessage string, a content.Activity, turn int) (Decision, error)
}

// SessionState is the cross-activity scratch of one session.
type SessionState struct {
	PlantedWords []string `json:"planted_words,omitempty"`
}

// Context is what a handler sees: the live IO plus logging, randomness and
// the session scratch. One Context is built per activity; the state pointer
// is shared across the session.
type Context struct {
	IO
	log   *zap.Logger
	state *SessionState
	rng   *rand.Rand
	now   func() time.Time
}

// NewContext binds io to the session state. Nil logger and rng get defaults.
func NewContext(io IO, state *SessionState, log *zap.Logger, rng *rand.Rand) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if state == nil {
		state = &SessionState{}
	}
	return &Context{IO: io, log: log, state: state, rng: rng, now: time.Now}
}

// WithClock overrides the result timestamp source.
func (c *Context) WithClock(now func() time.Time) *Context {
	c.now = now
	return c
}

func (c *Context) Log() *zap.Logger { return c.log }
func (c *Context) Rand() *rand.Rand { return c.rng }

// State returns a copy of the session scratch.
func (c *Context) State() SessionState {
	return SessionState{PlantedWords: append([]string(nil), c.state.PlantedWords...)}
}

// SetState merges partial into the session scratch; nil fields are left alone.
func (c *Context) SetState(partial SessionState) {
	if partial.PlantedWords != nil {
		c.state.PlantedWords = append([]string(nil), partial.PlantedWords...)
	}
}
