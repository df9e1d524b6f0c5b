// Package content holds the exercise library: activity definitions, the
// cognitive domains they target, and loading/validation of library files.
package content

import (
	"fmt"
	"strings"
)

// Domain is the cognitive category an activity targets.
type Domain string

const (
	DomainComplexAttention  Domain = "complex_attention"
	DomainProcessingSpeed   Domain = "processing_speed"
	DomainExecutiveFunction Domain = "executive_function"
	DomainWorkingMemory     Domain = "working_memory"
	DomainEpisodicMemory    Domain = "episodic_memory"
	DomainLanguage          Domain = "language"
	DomainSocialCognition   Domain = "social_cognition"

	// session-flow pseudo-domains
	DomainOrientation Domain = "orientation"
	DomainClosing     Domain = "closing"
)

// AllDomains lists every valid domain, pseudo-domains included.
var AllDomains = []Domain{
	DomainComplexAttention,
	DomainProcessingSpeed,
	DomainExecutiveFunction,
	DomainWorkingMemory,
	DomainEpisodicMemory,
	DomainLanguage,
	DomainSocialCognition,
	DomainOrientation,
	DomainClosing,
}

// TrainableDomains are the domains a domain block may pick from.
var TrainableDomains = []Domain{
	DomainComplexAttention,
	DomainProcessingSpeed,
	DomainExecutiveFunction,
	DomainWorkingMemory,
	DomainEpisodicMemory,
	DomainLanguage,
	DomainSocialCognition,
}

// Valid reports whether d is one of AllDomains.
func (d Domain) Valid() bool {
	for _, x := range AllDomains {
		if x == d {
			return true
		}
	}
	return false
}

// Difficulty of an activity. Adaptive is resolved per session from the profile.
type Difficulty string

const (
	DifficultyLow      Difficulty = "low"
	DifficultyMedium   Difficulty = "medium"
	DifficultyHigh     Difficulty = "high"
	DifficultyAdaptive Difficulty = "adaptive"
)

// ActivityType is the exercise tag stored in the library.
type ActivityType string

const (
	TypeDigitSpan            ActivityType = "digit_span"
	TypeWordList             ActivityType = "word_list"
	TypeVerbalFluency        ActivityType = "verbal_fluency"
	TypeGoNoGo               ActivityType = "go_no_go"
	TypeSerialArithmetic     ActivityType = "serial_arithmetic"
	TypeTaskSwitching        ActivityType = "task_switching"
	TypeInstructionFollowing ActivityType = "instruction_following"
	TypeNBack                ActivityType = "n_back"
	TypeStoryRecall          ActivityType = "story_recall"
	TypeConversation         ActivityType = "conversation"
	TypeGuidedRecall         ActivityType = "guided_recall"
	TypeEmotionRecognition   ActivityType = "emotion_recognition"
	TypePerspectiveTaking    ActivityType = "perspective_taking"
	TypeOrientation          ActivityType = "orientation"
	TypeClosing              ActivityType = "closing"
)

// Family groups activity types that share one exercise handler.
type Family string

const (
	FamilyDigitSpan            Family = "digit_span"
	FamilyWordList             Family = "word_list"
	FamilyVerbalFluency        Family = "verbal_fluency"
	FamilyGoNoGo               Family = "go_no_go"
	FamilySerialArithmetic     Family = "serial_arithmetic"
	FamilyTaskSwitching        Family = "task_switching"
	FamilyInstructionFollowing Family = "instruction_following"
	FamilyNBack                Family = "n_back"
	FamilyStoryRecall          Family = "story_recall"
	FamilyConversational       Family = "conversational"
)

// Families lists every handler family. The exercise registry must cover all of them.
var Families = []Family{
	FamilyDigitSpan,
	FamilyWordList,
	FamilyVerbalFluency,
	FamilyGoNoGo,
	FamilySerialArithmetic,
	FamilyTaskSwitching,
	FamilyInstructionFollowing,
	FamilyNBack,
	FamilyStoryRecall,
	FamilyConversational,
}

var typeFamilies = map[ActivityType]Family{
	TypeDigitSpan:            FamilyDigitSpan,
	TypeWordList:             FamilyWordList,
	TypeVerbalFluency:        FamilyVerbalFluency,
	TypeGoNoGo:               FamilyGoNoGo,
	TypeSerialArithmetic:     FamilySerialArithmetic,
	TypeTaskSwitching:        FamilyTaskSwitching,
	TypeInstructionFollowing: FamilyInstructionFollowing,
	TypeNBack:                FamilyNBack,
	TypeStoryRecall:          FamilyStoryRecall,
	TypeConversation:         FamilyConversational,
	TypeGuidedRecall:         FamilyConversational,
	TypeEmotionRecognition:   FamilyConversational,
	TypePerspectiveTaking:    FamilyConversational,
	TypeOrientation:          FamilyConversational,
	TypeClosing:              FamilyConversational,
}

// Family maps the type onto its handler family.
func (t ActivityType) Family() (Family, error) {
	f, ok := typeFamilies[t]
	if !ok {
		return "", fmt.Errorf("unknown activity type %q", t)
	}
	return f, nil
}

// Scoring describes how a handler normalizes its raw score.
type Scoring struct {
	Metric string  `json:"metric" yaml:"metric"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// Activity is one exercise definition from the library. Treat it as
// immutable; use Clone before changing anything per session.
type Activity struct {
	ID               string         `json:"id" yaml:"id" validate:"required"`
	Type             ActivityType   `json:"type" yaml:"type" validate:"required,activity_type"`
	Domain           Domain         `json:"cognitive_domain" yaml:"cognitive_domain" validate:"required,domain"`
	Difficulty       Difficulty     `json:"difficulty" yaml:"difficulty" validate:"omitempty,oneof=low medium high adaptive"`
	DifficultyParams map[string]any `json:"difficulty_params,omitempty" yaml:"difficulty_params,omitempty"`
	Script           []string       `json:"script,omitempty" yaml:"script,omitempty"`
	Scoring          Scoring        `json:"scoring" yaml:"scoring"`
	DurationMin      float64        `json:"duration_min" yaml:"duration_min" validate:"gte=0"`
}

// Clone returns a deep copy.
func (a Activity) Clone() Activity {
	out := a
	out.DifficultyParams = cloneMap(a.DifficultyParams)
	if a.Script != nil {
		out.Script = append([]string(nil), a.Script...)
	}
	return out
}

// WithDifficulty returns a clone with the difficulty replaced.
func (a Activity) WithDifficulty(d Difficulty) Activity {
	out := a.Clone()
	out.Difficulty = d
	return out
}

// Line returns script line i, or def when the script is shorter.
func (a Activity) Line(i int, def string) string {
	if i >= 0 && i < len(a.Script) && strings.TrimSpace(a.Script[i]) != "" {
		return a.Script[i]
	}
	return def
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		cp := make([]any, len(x))
		for i := range x {
			cp[i] = cloneValue(x[i])
		}
		return cp
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}
