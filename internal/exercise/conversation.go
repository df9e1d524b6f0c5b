package exercise

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

var openingLines = map[content.ActivityType]string{
	content.TypeOrientation:  "Let's start with a quick check-in. How are you feeling today?",
	content.TypeClosing:      "Before we finish, what was your favourite part of today's session?",
	content.TypeGuidedRecall: "Let's think back to yesterday. What did you have for dinner?",
	content.TypeConversation: "Tell me about something that made you smile recently.",
}

func runConversational(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	switch a.Type {
	case content.TypeEmotionRecognition, content.TypePerspectiveTaking:
		if len(a.Maps("scenarios")) > 0 {
			return runScenarios(ctx, a, ec)
		}
	}
	t := ec.begin(a)
	maxTurns := a.Int("max_turns", 3)
	if maxTurns < 1 {
		maxTurns = 1
	}
	if err := ec.Speak(ctx, a.Line(0, openingLines[a.Type])); err != nil {
		return nil, err
	}

	var responses []string
	for turn := 1; turn <= maxTurns; turn++ {
		res, err := ec.Listen(ctx)
		if err != nil {
			return nil, err
		}
		t.heard(res.Transcript, res.LatencyMs)
		if strings.TrimSpace(res.Transcript) != "" {
			responses = append(responses, res.Transcript)
		}
		dec, err := ec.GenerateResponse(ctx, res.Transcript, a, turn)
		if err != nil {
			return nil, err
		}
		if err := ec.Speak(ctx, dec.Text); err != nil {
			return nil, err
		}
		if !dec.FollowUp {
			break
		}
	}
	ec.Log().Debug("conversation finished", zap.String("activity_id", a.ID), zap.Int("responses", len(responses)))
	return t.finish(float64(len(responses)), normalized(a, scoring.Engagement(responses), 100)), nil
}

// runScenarios checks each answer against the expected emotion or belief words.
func runScenarios(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	scenarios := a.Maps("scenarios")
	if err := ec.Speak(ctx, a.Line(0, "I'll describe a situation, and you tell me what you think.")); err != nil {
		return nil, err
	}
	correct := 0
	for i, sc := range scenarios {
		if err := ec.Speak(ctx, sc.String("prompt")); err != nil {
			return nil, err
		}
		res, err := ec.Listen(ctx)
		if err != nil {
			return nil, err
		}
		t.heard(res.Transcript, res.LatencyMs)
		if scoring.ContainsAny(res.Transcript, sc.Strings("expected")) {
			correct++
		}
		if i < len(scenarios)-1 {
			if err := ec.Speak(ctx, "Thank you. Here's another one."); err != nil {
				return nil, err
			}
		}
	}
	raw := float64(correct)
	return t.finish(raw, normalized(a, raw, float64(len(scenarios)))), nil
}
