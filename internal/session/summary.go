package session

import (
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/exercise"
	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

// Status is how a session ended.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusUnattended Status = "unattended"
	StatusEarlyExit  Status = "early_exit"
	StatusErrorExit  Status = "error_exit"
)

// ExitCode maps the status onto the process exit code the scheduler reads.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusUnattended:
		return 2
	case StatusEarlyExit:
		return 3
	default:
		return 1
	}
}

// DeriveStatus decides the status of a session that got past readiness.
func DeriveStatus(utterances int, stopped bool) Status {
	switch {
	case utterances == 0:
		return StatusUnattended
	case stopped:
		return StatusEarlyExit
	default:
		return StatusSuccess
	}
}

// SummaryPayload is the single report sent to the backend per session.
type SummaryPayload struct {
	SessionID             string                     `json:"session_id"`
	PlanID                string                     `json:"plan_id"`
	DeviceID              string                     `json:"device_id"`
	ParticipantID         string                     `json:"participant_id,omitempty"`
	Status                Status                     `json:"status"`
	StartedAt             time.Time                  `json:"started_at"`
	EndedAt               time.Time                  `json:"ended_at"`
	DurationSeconds       float64                    `json:"duration_seconds"`
	TurnCount             int                        `json:"turn_count"`
	ActivitiesPlanned     int                        `json:"activities_planned"`
	ActivitiesCompleted   int                        `json:"activities_completed"`
	ActivityResults       []*exercise.ActivityResult `json:"activity_results"`
	DomainScores          map[content.Domain]float64 `json:"domain_scores"`
	AverageResponseTimeMs *float64                   `json:"average_response_time_ms"`
	StopPhrase            string                     `json:"stop_phrase,omitempty"`
	ErrorMessage          string                     `json:"error_message,omitempty"`
}

// StartFailure reports a failure before a session identity existed.
type StartFailure struct {
	DeviceID      string    `json:"device_id"`
	ParticipantID string    `json:"participant_id,omitempty"`
	ErrorType     string    `json:"error_type"`
	ErrorMessage  string    `json:"error_message"`
	Timestamp     time.Time `json:"timestamp"`
}

// DomainScores averages results per domain.
func DomainScores(results []*exercise.ActivityResult) map[content.Domain]float64 {
	byDomain := make(map[content.Domain][]float64)
	for _, r := range results {
		byDomain[r.Domain] = append(byDomain[r.Domain], r.Score)
	}
	out := make(map[content.Domain]float64, len(byDomain))
	for d, scores := range byDomain {
		out[d] = scoring.Round1(scoring.Mean(scores))
	}
	return out
}

// AverageResponseTime is the mean over results that reported one, nil if none did.
func AverageResponseTime(results []*exercise.ActivityResult) *float64 {
	var xs []float64
	for _, r := range results {
		if r.ResponseTimeMs != nil {
			xs = append(xs, *r.ResponseTimeMs)
		}
	}
	if len(xs) == 0 {
		return nil
	}
	avg := scoring.Round1(scoring.Mean(xs))
	return &avg
}

// TurnCount is the number of participant responses across results.
func TurnCount(results []*exercise.ActivityResult) int {
	n := 0
	for _, r := range results {
		n += r.TurnCount
	}
	return n
}
