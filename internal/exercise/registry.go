package exercise

import (
	"context"
	"fmt"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
)

// Handler runs one activity family. "No response" and unparseable answers
// produce a low score, never an error; errors are reserved for failures of
// the IO underneath.
type Handler interface {
	Run(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error)

func (f HandlerFunc) Run(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	return f(ctx, a, ec)
}

// Registry dispatches activities to handlers by family.
type Registry struct {
	handlers map[content.Family]Handler
}

// NewRegistry returns the dispatch table with every built-in handler.
func NewRegistry() *Registry {
	return &Registry{handlers: map[content.Family]Handler{
		content.FamilyDigitSpan:            HandlerFunc(runDigitSpan),
		content.FamilyWordList:             HandlerFunc(runWordList),
		content.FamilyVerbalFluency:        HandlerFunc(runVerbalFluency),
		content.FamilyGoNoGo:               HandlerFunc(runGoNoGo),
		content.FamilySerialArithmetic:     HandlerFunc(runSerialArithmetic),
		content.FamilyTaskSwitching:        HandlerFunc(runTaskSwitching),
		content.FamilyInstructionFollowing: HandlerFunc(runInstructionFollowing),
		content.FamilyNBack:                HandlerFunc(runNBack),
		content.FamilyStoryRecall:          HandlerFunc(runStoryRecall),
		content.FamilyConversational:       HandlerFunc(runConversational),
	}}
}

// Register replaces the handler for f.
func (r *Registry) Register(f content.Family, h Handler) {
	r.handlers[f] = h
}

// Validate checks that every family has a handler.
func (r *Registry) Validate() error {
	for _, f := range content.Families {
		if r.handlers[f] == nil {
			return fmt.Errorf("no handler for family %q", f)
		}
	}
	return nil
}

// Run dispatches a to its family's handler.
func (r *Registry) Run(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	f, err := a.Type.Family()
	if err != nil {
		return nil, err
	}
	h := r.handlers[f]
	if h == nil {
		return nil, fmt.Errorf("no handler for family %q", f)
	}
	return h.Run(ctx, a, ec)
}
