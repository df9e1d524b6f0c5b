package exercise

import (
	"strings"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

// ActivityResult is the outcome of one activity. It is not modified after
// the handler returns it.
type ActivityResult struct {
	ActivityID     string             `json:"activity_id"`
	Domain         content.Domain     `json:"cognitive_domain"`
	Score          float64            `json:"score"`
	RawScore       float64            `json:"raw_score"`
	ResponseTimeMs *float64           `json:"response_time_ms,omitempty"`
	Transcripts    []string           `json:"transcripts"`
	TurnCount      int                `json:"turn_count"`
	DifficultyUsed content.Difficulty `json:"difficulty_used"`
	Completed      bool               `json:"completed"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        time.Time          `json:"ended_at"`
	DurationSec    float64            `json:"duration_sec"`
	Details        map[string]any     `json:"details,omitempty"`
}

// tracker accumulates what a handler hears over its turns.
type tracker struct {
	a         content.Activity
	now       func() time.Time
	started   time.Time
	heardText []string
	latencies []float64
	override  *float64
	details   map[string]any
}

func (c *Context) begin(a content.Activity) *tracker {
	return &tracker{a: a, now: c.now, started: c.now(), details: map[string]any{}}
}

// heard records one participant response. Empty transcripts are not turns.
func (t *tracker) heard(transcript string, latencyMs float64) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return
	}
	t.heardText = append(t.heardText, transcript)
	if latencyMs > 0 {
		t.latencies = append(t.latencies, latencyMs)
	}
}

// responseTime replaces the default mean-of-all-latencies metric.
func (t *tracker) responseTime(ms float64) {
	t.override = &ms
}

func (t *tracker) detail(key string, v any) { t.details[key] = v }

func (t *tracker) finish(raw, score float64) *ActivityResult {
	ended := t.now()
	res := &ActivityResult{
		ActivityID:     t.a.ID,
		Domain:         t.a.Domain,
		Score:          scoring.Round1(score),
		RawScore:       raw,
		Transcripts:    append([]string{}, t.heardText...),
		TurnCount:      len(t.heardText),
		DifficultyUsed: level(t.a),
		Completed:      true,
		StartedAt:      t.started,
		EndedAt:        ended,
		DurationSec:    ended.Sub(t.started).Seconds(),
	}
	switch {
	case t.override != nil:
		ms := scoring.Round1(*t.override)
		res.ResponseTimeMs = &ms
	case len(t.latencies) > 0:
		ms := scoring.Round1(scoring.Mean(t.latencies))
		res.ResponseTimeMs = &ms
	}
	if len(t.details) > 0 {
		res.Details = t.details
	}
	return res
}

// level resolves the difficulty a handler should use. Unresolved adaptive
// activities run at medium.
func level(a content.Activity) content.Difficulty {
	switch a.Difficulty {
	case content.DifficultyLow, content.DifficultyHigh:
		return a.Difficulty
	default:
		return content.DifficultyMedium
	}
}

// normalized maps raw onto 0..100 with the activity's scoring bounds, or
// [0, defMax] when the library leaves them unset.
func normalized(a content.Activity, raw, defMax float64) float64 {
	if a.Scoring.Max > a.Scoring.Min {
		return scoring.Normalize(raw, a.Scoring.Min, a.Scoring.Max)
	}
	return scoring.Normalize(raw, 0, defMax)
}
