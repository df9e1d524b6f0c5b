// Package session drives one coaching session end to end: readiness check,
// the planned activities, closing, and exactly one summary to the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/exercise"
	"github.com/CoCoMind/coco-device-sub000/internal/planner"
	"github.com/CoCoMind/coco-device-sub000/internal/profile"
)

// State is the runner's position in the session.
type State string

const (
	StateInit        State = "init"
	StateReadiness   State = "readiness"
	StateActivities  State = "activities"
	StateClosing     State = "closing"
	StateSummarySent State = "summary_sent"
	StateDone        State = "done"
	StateAborted     State = "aborted"
)

// Voice is the live speech boundary plus conversation reset.
type Voice interface {
	exercise.IO
	ResetHistory()
}

// Planner builds the session plan.
type Planner interface {
	BuildAdaptivePlan(prof *profile.Profile) (*planner.SessionPlan, error)
}

// Reporter is the backend collaborator.
type Reporter interface {
	SendSessionSummary(ctx context.Context, p *SummaryPayload) error
	SendSessionStartFailed(ctx context.Context, f StartFailure) error
}

// ProfileStore loads and updates participant history.
type ProfileStore interface {
	Load(ctx context.Context, participantID string) (*profile.Profile, error)
	Record(ctx context.Context, participantID, sessionID string, at time.Time, results []profile.Result) error
}

// Archiver keeps an audit copy of each delivered summary.
type Archiver interface {
	Archive(ctx context.Context, p *SummaryPayload) error
}

// Config holds the runner's tunables.
type Config struct {
	DeviceID      string
	ParticipantID string
	// ReadinessAttempts is how many silent listens end in unattended.
	ReadinessAttempts int
	// ActivityTimeout bounds one activity when > 0.
	ActivityTimeout time.Duration
	// ReportTimeout bounds every backend, profile and archive call at the end.
	ReportTimeout time.Duration
}

// Outcome is what Run hands back to the caller.
type Outcome struct {
	Status  Status
	Summary *SummaryPayload
	Err     error
}

// Runner runs sessions. Optional collaborators may be nil.
type Runner struct {
	cfg      Config
	planner  Planner
	registry *exercise.Registry
	voice    Voice
	reporter Reporter
	profiles ProfileStore
	archive  Archiver
	log      *zap.Logger
	rng      *rand.Rand
	now      func() time.Time
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Planner  Planner
	Registry *exercise.Registry
	Voice    Voice
	Reporter Reporter
	Profiles ProfileStore
	Archive  Archiver
	Log      *zap.Logger
	Rand     *rand.Rand
	Clock    func() time.Time
}

// NewRunner validates the dispatch table and wires the collaborators.
func NewRunner(cfg Config, d Deps) (*Runner, error) {
	if d.Planner == nil || d.Voice == nil || d.Reporter == nil {
		return nil, errors.New("session: planner, voice and reporter are required")
	}
	if d.Registry == nil {
		d.Registry = exercise.NewRegistry()
	}
	if err := d.Registry.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if cfg.ReadinessAttempts <= 0 {
		cfg.ReadinessAttempts = 3
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 15 * time.Second
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &Runner{
		cfg:      cfg,
		planner:  d.Planner,
		registry: d.Registry,
		voice:    d.Voice,
		reporter: d.Reporter,
		profiles: d.Profiles,
		archive:  d.Archive,
		log:      d.Log.Named("session"),
		rng:      d.Rand,
		now:      d.Clock,
	}, nil
}

var readinessPrompts = []string{
	"Are you ready to begin? Just say yes when you are.",
	"Are you there? Say 'ready' whenever you'd like to start.",
	"I'm still here. If you'd like to do today's session, just say yes.",
}

const (
	introLine         = "Hello! It's time for today's brain training session."
	closingCompleted  = "That's everything for today. Wonderful work, thank you for spending this time with me. Talk to you next time!"
	closingEarly      = "No problem, we'll stop here for today. Thank you for your time, and talk to you soon!"
	closingError      = "Let's stop here for today. Thank you for your time, and talk to you soon!"
	closingUnattended = "I'll check back with you later. Goodbye for now."
)

// attempt is the mutable record of one Run.
type attempt struct {
	r           *Runner
	ctx         context.Context
	log         *zap.Logger
	state       State
	startedAt   time.Time
	plan        *planner.SessionPlan
	results     []*exercise.ActivityResult
	stopPhrase  string
	summarySent bool
	summary     *SummaryPayload
	status      Status
	err         error
}

// Run executes one session. Whatever happens inside, the backend sees
// exactly one summary once a plan exists, or one start failure before that.
func (r *Runner) Run(ctx context.Context) (out Outcome) {
	a := &attempt{r: r, ctx: ctx, log: r.log, state: StateInit, startedAt: r.now()}
	defer func() {
		if p := recover(); p != nil {
			a.log.Error("session panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			a.err = fmt.Errorf("panic: %v", p)
		}
		a.finish()
		out = Outcome{Status: a.status, Summary: a.summary, Err: a.err}
	}()

	if err := a.init(); err != nil {
		a.err = err
		return
	}
	a.log = a.log.With(zap.String("session_id", a.plan.SessionID))

	a.state = StateReadiness
	ended, err := a.readiness()
	if err != nil {
		a.err = err
		return
	}
	if ended != "" {
		// readiness ended the session on its own
		a.closing(closingLine(ended))
		a.deliver(ended, nil)
		return
	}

	a.state = StateActivities
	if err := a.activities(); err != nil {
		a.err = err
		return
	}

	a.state = StateClosing
	status := DeriveStatus(TurnCount(a.results), a.stopPhrase != "")
	if err := a.r.voice.Speak(ctx, closingLine(status)); err != nil {
		a.err = fmt.Errorf("closing: %w", err)
		return
	}
	a.deliver(status, nil)
	return
}

func closingLine(s Status) string {
	switch s {
	case StatusSuccess:
		return closingCompleted
	case StatusEarlyExit:
		return closingEarly
	case StatusUnattended:
		return closingUnattended
	default:
		return closingError
	}
}

func (a *attempt) init() error {
	a.r.voice.ResetHistory()

	var prof *profile.Profile
	if a.r.profiles != nil && a.r.cfg.ParticipantID != "" {
		p, err := a.r.profiles.Load(a.ctx, a.r.cfg.ParticipantID)
		if err != nil {
			a.log.Warn("profile unavailable, planning without it", zap.Error(err))
		} else {
			prof = p
		}
	}
	plan, err := a.r.planner.BuildAdaptivePlan(prof)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}
	a.plan = plan
	a.log.Info("session planned",
		zap.String("session_id", plan.SessionID),
		zap.String("plan_id", plan.PlanID),
		zap.Int("activities", len(plan.Activities)),
		zap.Float64("estimated_min", plan.EstimatedDurationMin),
	)
	return nil
}

// readiness returns a terminal status when the session should end here, or
// "" to continue.
func (a *attempt) readiness() (Status, error) {
	if err := a.r.voice.Speak(a.ctx, introLine); err != nil {
		return "", fmt.Errorf("readiness: %w", err)
	}
	for i := 0; i < a.r.cfg.ReadinessAttempts; i++ {
		if err := a.r.voice.Speak(a.ctx, readinessPrompts[i%len(readinessPrompts)]); err != nil {
			return "", fmt.Errorf("readiness: %w", err)
		}
		res, err := a.r.voice.Listen(a.ctx)
		if err != nil {
			return "", fmt.Errorf("readiness: %w", err)
		}
		text := strings.TrimSpace(res.Transcript)
		if text == "" {
			a.log.Info("no response at readiness", zap.Int("attempt", i+1))
			continue
		}
		if phrase, ok := CheckStopPhrase(text); ok {
			a.stopPhrase = phrase
			a.log.Info("stop phrase at readiness", zap.String("phrase", phrase))
			return StatusEarlyExit, nil
		}
		return "", nil
	}
	return StatusUnattended, nil
}

func (a *attempt) activities() error {
	state := &exercise.SessionState{}
	for i, act := range a.plan.Activities {
		log := a.log.With(zap.String("activity_id", act.ID), zap.Int("index", i))
		res, err := a.runActivity(act, state, log)
		if err := a.ctx.Err(); err != nil {
			return fmt.Errorf("session interrupted: %w", err)
		}
		if err != nil {
			log.Error("activity failed, continuing", zap.Error(err))
			continue
		}
		a.results = append(a.results, res)
		log.Info("activity done", zap.Float64("score", res.Score), zap.Int("turns", res.TurnCount))
		if phrase, ok := FindStopPhrase(res.Transcripts); ok {
			a.stopPhrase = phrase
			log.Info("stop phrase heard, ending early", zap.String("phrase", phrase))
			break
		}
	}
	return nil
}

// runActivity is the per-activity error boundary: errors and panics from a
// handler become that activity's failure.
func (a *attempt) runActivity(act content.Activity, state *exercise.SessionState, log *zap.Logger) (res *exercise.ActivityResult, err error) {
	ctx := a.ctx
	if a.r.cfg.ActivityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.r.cfg.ActivityTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error("activity panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			res, err = nil, fmt.Errorf("activity %s panicked: %v", act.ID, p)
		}
	}()
	ec := exercise.NewContext(a.r.voice, state, log, a.r.rng).WithClock(a.r.now)
	res, err = a.r.registry.Run(ctx, act, ec)
	if err == nil && res == nil {
		err = fmt.Errorf("activity %s returned no result", act.ID)
	}
	return res, err
}

// closing speaks a goodbye, ignoring failures.
func (a *attempt) closing(line string) {
	a.state = StateClosing
	ctx, cancel := a.r.reportCtx(a.ctx)
	defer cancel()
	if err := a.r.voice.Speak(ctx, line); err != nil {
		a.log.Warn("closing line failed", zap.Error(err))
	}
}

// finish is the termination path every Run goes through.
func (a *attempt) finish() {
	if a.plan == nil {
		a.status = StatusErrorExit
		if a.err == nil {
			a.err = errors.New("session ended before planning")
		}
		a.state = StateAborted
		a.reportStartFailure()
		return
	}
	if !a.summarySent {
		spoke := a.state == StateClosing
		a.state = StateAborted
		a.log.Error("session aborted", zap.Error(a.err))
		if !spoke {
			a.closing(closingError)
		}
		a.deliver(StatusErrorExit, a.err)
	}
	a.state = StateDone
}

// deliver builds and sends the summary. It is the only code path that
// sends one, and does so at most once.
func (a *attempt) deliver(status Status, cause error) {
	if a.summarySent {
		return
	}
	a.summarySent = true
	a.status = status

	ended := a.r.now()
	p := &SummaryPayload{
		SessionID:             a.plan.SessionID,
		PlanID:                a.plan.PlanID,
		DeviceID:              a.r.cfg.DeviceID,
		ParticipantID:         a.r.cfg.ParticipantID,
		Status:                status,
		StartedAt:             a.startedAt.UTC(),
		EndedAt:               ended.UTC(),
		DurationSeconds:       ended.Sub(a.startedAt).Seconds(),
		TurnCount:             TurnCount(a.results),
		ActivitiesPlanned:     len(a.plan.Activities),
		ActivityResults:       append([]*exercise.ActivityResult{}, a.results...),
		DomainScores:          DomainScores(a.results),
		AverageResponseTimeMs: AverageResponseTime(a.results),
		StopPhrase:            a.stopPhrase,
	}
	for _, r := range a.results {
		if r.Completed {
			p.ActivitiesCompleted++
		}
	}
	if cause != nil {
		p.ErrorMessage = cause.Error()
	}
	a.summary = p

	ctx, cancel := a.r.reportCtx(a.ctx)
	defer cancel()
	if err := a.r.reporter.SendSessionSummary(ctx, p); err != nil {
		a.log.Error("session summary not delivered", zap.Error(err), zap.String("status", string(status)))
	} else {
		a.log.Info("session summary sent", zap.String("status", string(status)), zap.Int("turns", p.TurnCount))
	}
	a.state = StateSummarySent

	if a.r.archive != nil {
		if err := a.r.archive.Archive(ctx, p); err != nil {
			a.log.Warn("summary archive failed", zap.Error(err))
		}
	}
	if status == StatusSuccess {
		a.updateProfile(ctx, ended)
	}
}

func (a *attempt) updateProfile(ctx context.Context, at time.Time) {
	if a.r.profiles == nil || a.r.cfg.ParticipantID == "" {
		return
	}
	results := make([]profile.Result, 0, len(a.results))
	for _, r := range a.results {
		results = append(results, profile.Result{ActivityID: r.ActivityID, Domain: r.Domain, Score: r.Score})
	}
	if err := a.r.profiles.Record(ctx, a.r.cfg.ParticipantID, a.plan.SessionID, at, results); err != nil {
		a.log.Warn("profile update failed", zap.Error(err))
	}
}

func (a *attempt) reportStartFailure() {
	f := StartFailure{
		DeviceID:      a.r.cfg.DeviceID,
		ParticipantID: a.r.cfg.ParticipantID,
		ErrorType:     errorType(a.err),
		ErrorMessage:  a.err.Error(),
		Timestamp:     a.r.now().UTC(),
	}
	a.log.Error("session could not start", zap.Error(a.err))
	ctx, cancel := a.r.reportCtx(a.ctx)
	defer cancel()
	if err := a.r.reporter.SendSessionStartFailed(ctx, f); err != nil {
		a.log.Error("start failure not delivered", zap.Error(err))
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, planner.ErrNoActivities):
		return "content_library"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	case strings.HasPrefix(err.Error(), "panic:"):
		return "panic"
	default:
		return "plan_failed"
	}
}

// reportCtx survives cancellation of the session context so the summary
// still goes out on shutdown, but is bounded on its own.
func (r *Runner) reportCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ReportTimeout)
}
