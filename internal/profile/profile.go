// Package profile keeps a participant's per-domain performance history, which
// the planner uses to order domains and pick difficulty across sessions.
package profile

import (
	"sort"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
)

// Difficulty thresholds on a domain's average score.
const (
	HighThreshold   = 75.0
	MediumThreshold = 50.0
)

// Profile is a participant's history as loaded for one session.
type Profile struct {
	ParticipantID string `json:"participant_id"`
	// DomainScores holds recent 0..100 scores per domain, oldest first.
	DomainScores      map[content.Domain][]float64 `json:"domain_scores"`
	RecentActivityIDs []string                     `json:"recent_activity_ids"`
	// PriorityDomains, when set, overrides the score-derived ordering.
	PriorityDomains []content.Domain `json:"priority_domains,omitempty"`
}

// New returns an empty profile.
func New(participantID string) *Profile {
	return &Profile{ParticipantID: participantID, DomainScores: map[content.Domain][]float64{}}
}

// Average is the mean recorded score for d; ok is false without history.
func (p *Profile) Average(d content.Domain) (avg float64, ok bool) {
	if p == nil {
		return 0, false
	}
	scores := p.DomainScores[d]
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), true
}

// DifficultyFor resolves an adaptive activity's difficulty for d.
func (p *Profile) DifficultyFor(d content.Domain) content.Difficulty {
	avg, ok := p.Average(d)
	switch {
	case !ok:
		return content.DifficultyMedium
	case avg >= HighThreshold:
		return content.DifficultyHigh
	case avg >= MediumThreshold:
		return content.DifficultyMedium
	default:
		return content.DifficultyLow
	}
}

// Priorities orders pool for domain selection. Explicit PriorityDomains win;
// otherwise domains without history come first, then the weakest average.
// Ties keep pool order.
func (p *Profile) Priorities(pool []content.Domain) []content.Domain {
	if p == nil {
		return append([]content.Domain(nil), pool...)
	}
	if len(p.PriorityDomains) > 0 {
		return append([]content.Domain(nil), p.PriorityDomains...)
	}
	out := append([]content.Domain(nil), pool...)
	sort.SliceStable(out, func(i, j int) bool {
		ai, oki := p.Average(out[i])
		aj, okj := p.Average(out[j])
		if oki != okj {
			return !oki
		}
		return ai < aj
	})
	return out
}

// Recent reports whether activity id ran in a recent session.
func (p *Profile) Recent(id string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.RecentActivityIDs {
		if r == id {
			return true
		}
	}
	return false
}

// Result is one activity outcome recorded into the history.
type Result struct {
	ActivityID string
	Domain     content.Domain
	Score      float64
}
