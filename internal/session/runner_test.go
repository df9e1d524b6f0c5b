package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/exercise"
	"github.com/CoCoMind/coco-device-sub000/internal/planner"
	"github.com/CoCoMind/coco-device-sub000/internal/profile"
)

type fakeVoice struct {
	mu       sync.Mutex
	answers  []string
	spoken   []string
	resets   int
	speakErr func(text string) error
}

func (v *fakeVoice) Speak(_ context.Context, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.speakErr != nil {
		if err := v.speakErr(text); err != nil {
			return err
		}
	}
	v.spoken = append(v.spoken, text)
	return nil
}

func (v *fakeVoice) next() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.answers) == 0 {
		return ""
	}
	a := v.answers[0]
	v.answers = v.answers[1:]
	return a
}

func (v *fakeVoice) Listen(context.Context) (exercise.ListenResult, error) {
	text := v.next()
	lat := 0.0
	if text != "" {
		lat = 900
	}
	return exercise.ListenResult{Transcript: text, LatencyMs: lat}, nil
}

func (v *fakeVoice) ListenBrief(ctx context.Context, _ time.Duration) (exercise.BriefResult, error) {
	r, err := v.Listen(ctx)
	return exercise.BriefResult{Transcript: r.Transcript, LatencyMs: r.LatencyMs, HasResponse: r.Transcript != ""}, err
}

func (v *fakeVoice) ListenForDuration(ctx context.Context, _ time.Duration, _ exercise.Encourager) (exercise.ListenResult, error) {
	return v.Listen(ctx)
}

func (v *fakeVoice) GenerateResponse(context.Context, string, content.Activity, int) (exercise.Decision, error) {
	return exercise.Decision{Text: "Thank you."}, nil
}

func (v *fakeVoice) ResetHistory() { v.resets++ }

func (v *fakeVoice) said() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string{}, v.spoken...)
}

type fakeReporter struct {
	mu        sync.Mutex
	summaries []*SummaryPayload
	failures  []StartFailure
	err       error
}

func (r *fakeReporter) SendSessionSummary(_ context.Context, p *SummaryPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, p)
	return r.err
}

func (r *fakeReporter) SendSessionStartFailed(_ context.Context, f StartFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
	return r.err
}

type fakePlanner struct {
	plan *planner.SessionPlan
	err  error
	prof *profile.Profile
}

func (p *fakePlanner) BuildAdaptivePlan(prof *profile.Profile) (*planner.SessionPlan, error) {
	p.prof = prof
	return p.plan, p.err
}

type fakeProfiles struct {
	prof     *profile.Profile
	recorded []profile.Result
	calls    int
}

func (f *fakeProfiles) Load(context.Context, string) (*profile.Profile, error) {
	return f.prof, nil
}

func (f *fakeProfiles) Record(_ context.Context, _, _ string, _ time.Time, results []profile.Result) error {
	f.calls++
	f.recorded = append(f.recorded, results...)
	return nil
}

type fakeArchive struct{ n int }

func (a *fakeArchive) Archive(context.Context, *SummaryPayload) error {
	a.n++
	return nil
}

// testPlan has n one-turn activities.
func testPlan(n int) *planner.SessionPlan {
	plan := &planner.SessionPlan{SessionID: "sess-1", PlanID: "plan-1"}
	domains := content.TrainableDomains
	for i := 0; i < n; i++ {
		plan.Activities = append(plan.Activities, content.Activity{
			ID:     fmt.Sprintf("act-%d", i+1),
			Domain: domains[i%len(domains)],
			Type:   content.TypeConversation,
		})
	}
	return plan
}

// echoHandler listens once and scores 60 for any answer.
var echoHandler = exercise.HandlerFunc(func(ctx context.Context, a content.Activity, ec *exercise.Context) (*exercise.ActivityResult, error) {
	if err := ec.Speak(ctx, "Tell me about "+a.ID); err != nil {
		return nil, err
	}
	res, err := ec.Listen(ctx)
	if err != nil {
		return nil, err
	}
	out := &exercise.ActivityResult{ActivityID: a.ID, Domain: a.Domain, Completed: true, Transcripts: []string{}}
	if res.Transcript != "" {
		out.Transcripts = append(out.Transcripts, res.Transcript)
		out.TurnCount = 1
		out.Score = 60
		lat := res.LatencyMs
		out.ResponseTimeMs = &lat
	}
	return out, nil
})

func stubRegistry(h exercise.Handler) *exercise.Registry {
	reg := exercise.NewRegistry()
	for _, f := range content.Families {
		reg.Register(f, h)
	}
	return reg
}

type harness struct {
	voice    *fakeVoice
	reporter *fakeReporter
	planner  *fakePlanner
	profiles *fakeProfiles
	archive  *fakeArchive
	clock    *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances a second per call so durations are deterministic.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newHarness(t *testing.T, plan *planner.SessionPlan, answers ...string) (*Runner, *harness) {
	t.Helper()
	h := &harness{
		voice:    &fakeVoice{answers: answers},
		reporter: &fakeReporter{},
		planner:  &fakePlanner{plan: plan},
		profiles: &fakeProfiles{prof: profile.New("p-1")},
		archive:  &fakeArchive{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	r, err := NewRunner(Config{DeviceID: "dev-1", ParticipantID: "p-1"}, Deps{
		Planner:  h.planner,
		Registry: stubRegistry(echoHandler),
		Voice:    h.voice,
		Reporter: h.reporter,
		Profiles: h.profiles,
		Archive:  h.archive,
		Rand:     rand.New(rand.NewSource(1)),
		Clock:    h.clock.Now,
	})
	require.NoError(t, err)
	return r, h
}

func TestRunSuccess(t *testing.T) {
	r, h := newHarness(t, testPlan(4), "yes", "one", "two", "three", "four")

	out := r.Run(context.Background())

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, 0, out.Status.ExitCode())
	require.Len(t, h.reporter.summaries, 1)
	assert.Empty(t, h.reporter.failures)

	s := h.reporter.summaries[0]
	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, "dev-1", s.DeviceID)
	assert.Equal(t, 4, s.TurnCount, "readiness answer is not a turn")
	assert.Equal(t, 4, s.ActivitiesPlanned)
	assert.Equal(t, 4, s.ActivitiesCompleted)
	assert.Len(t, s.ActivityResults, 4)
	require.NotNil(t, s.AverageResponseTimeMs)
	assert.Equal(t, 900.0, *s.AverageResponseTimeMs)
	assert.Greater(t, s.DurationSeconds, 0.0)

	assert.Equal(t, 1, h.voice.resets)
	assert.Same(t, h.profiles.prof, h.planner.prof)
	assert.Equal(t, 1, h.profiles.calls)
	assert.Len(t, h.profiles.recorded, 4)
	assert.Equal(t, 1, h.archive.n)
	said := h.voice.said()
	assert.Equal(t, closingCompleted, said[len(said)-1])
}

func TestRunUnattended(t *testing.T) {
	r, h := newHarness(t, testPlan(4))

	out := r.Run(context.Background())

	assert.Equal(t, StatusUnattended, out.Status)
	assert.Equal(t, 2, out.Status.ExitCode())
	require.Len(t, h.reporter.summaries, 1)
	s := h.reporter.summaries[0]
	assert.Equal(t, 0, s.TurnCount)
	assert.Empty(t, s.ActivityResults)
	assert.NotNil(t, s.ActivityResults, "serializes as an empty list")
	assert.Equal(t, s.EndedAt.Sub(s.StartedAt).Seconds(), s.DurationSeconds)
	assert.Greater(t, s.DurationSeconds, 0.0)
	assert.Zero(t, h.profiles.calls)

	said := h.voice.said()
	assert.Contains(t, said, readinessPrompts[0])
	assert.Contains(t, said, readinessPrompts[1])
	assert.Contains(t, said, readinessPrompts[2])
	assert.Equal(t, closingUnattended, said[len(said)-1])
}

func TestRunReadinessStopPhrase(t *testing.T) {
	r, h := newHarness(t, testPlan(4), "no thanks, goodbye")

	out := r.Run(context.Background())

	assert.Equal(t, StatusEarlyExit, out.Status)
	assert.Equal(t, 3, out.Status.ExitCode())
	require.Len(t, h.reporter.summaries, 1)
	assert.Equal(t, "goodbye", h.reporter.summaries[0].StopPhrase)
	assert.Equal(t, 0, h.reporter.summaries[0].TurnCount)
}

func TestRunEarlyExitMidSession(t *testing.T) {
	r, h := newHarness(t, testPlan(6), "ready", "sure", "okay", "I want to stop now", "never asked")

	out := r.Run(context.Background())

	assert.Equal(t, StatusEarlyExit, out.Status)
	require.Len(t, h.reporter.summaries, 1)
	s := h.reporter.summaries[0]
	assert.Len(t, s.ActivityResults, 3)
	assert.Equal(t, 6, s.ActivitiesPlanned)
	assert.Equal(t, 3, s.ActivitiesCompleted)
	assert.Equal(t, "i want to stop", s.StopPhrase)
	assert.Zero(t, h.profiles.calls, "profile only learns from complete sessions")
	said := h.voice.said()
	assert.Equal(t, closingEarly, said[len(said)-1])
	assert.NotContains(t, said, "Tell me about act-4")
}

func TestRunAllActivitiesSilentIsUnattended(t *testing.T) {
	r, h := newHarness(t, testPlan(3), "yes")

	out := r.Run(context.Background())

	assert.Equal(t, StatusUnattended, out.Status)
	require.Len(t, h.reporter.summaries, 1)
	assert.Len(t, h.reporter.summaries[0].ActivityResults, 3)
	assert.Nil(t, h.reporter.summaries[0].AverageResponseTimeMs)
}

func TestRunPlanFailureSendsStartFailure(t *testing.T) {
	r, h := newHarness(t, nil)
	h.planner.err = fmt.Errorf("empty pool: %w", planner.ErrNoActivities)

	out := r.Run(context.Background())

	assert.Equal(t, StatusErrorExit, out.Status)
	assert.Equal(t, 1, out.Status.ExitCode())
	require.Error(t, out.Err)
	assert.Empty(t, h.reporter.summaries)
	require.Len(t, h.reporter.failures, 1)
	assert.Equal(t, "content_library", h.reporter.failures[0].ErrorType)
	assert.Equal(t, "dev-1", h.reporter.failures[0].DeviceID)
}

func TestRunHandlerPanicIsContained(t *testing.T) {
	r, h := newHarness(t, testPlan(3), "yes", "a", "b", "c")
	calls := 0
	r.registry = stubRegistry(exercise.HandlerFunc(func(ctx context.Context, a content.Activity, ec *exercise.Context) (*exercise.ActivityResult, error) {
		calls++
		if calls == 2 {
			panic("handler bug")
		}
		return echoHandler(ctx, a, ec)
	}))

	out := r.Run(context.Background())

	assert.Equal(t, StatusSuccess, out.Status)
	require.Len(t, h.reporter.summaries, 1)
	assert.Len(t, h.reporter.summaries[0].ActivityResults, 2)
	assert.Equal(t, 3, h.reporter.summaries[0].ActivitiesPlanned)
}

func TestRunFailingActivityIsSkipped(t *testing.T) {
	r, h := newHarness(t, testPlan(3), "yes", "a", "b")
	r.registry = stubRegistry(exercise.HandlerFunc(func(ctx context.Context, a content.Activity, ec *exercise.Context) (*exercise.ActivityResult, error) {
		if a.ID == "act-2" {
			return nil, errors.New("speaker unplugged")
		}
		return echoHandler(ctx, a, ec)
	}))

	out := r.Run(context.Background())

	assert.Equal(t, StatusSuccess, out.Status)
	require.Len(t, h.reporter.summaries, 1)
	s := h.reporter.summaries[0]
	require.Len(t, s.ActivityResults, 2)
	assert.Equal(t, "act-3", s.ActivityResults[1].ActivityID)
	assert.Equal(t, 2, s.TurnCount)
}

func TestRunCancelledIsErrorExitWithOneSummary(t *testing.T) {
	r, h := newHarness(t, testPlan(4), "yes", "a", "b", "c", "d")
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r.registry = stubRegistry(exercise.HandlerFunc(func(c context.Context, a content.Activity, ec *exercise.Context) (*exercise.ActivityResult, error) {
		calls++
		if calls == 2 {
			cancel()
			return nil, c.Err()
		}
		return echoHandler(c, a, ec)
	}))

	out := r.Run(ctx)

	assert.Equal(t, StatusErrorExit, out.Status)
	require.ErrorIs(t, out.Err, context.Canceled)
	require.Len(t, h.reporter.summaries, 1, "summary still goes out after cancellation")
	s := h.reporter.summaries[0]
	assert.Len(t, s.ActivityResults, 1)
	assert.NotEmpty(t, s.ErrorMessage)
	said := h.voice.said()
	assert.Equal(t, closingError, said[len(said)-1])
}

func TestRunClosingFailureIsErrorExit(t *testing.T) {
	r, h := newHarness(t, testPlan(2), "yes", "a", "b")
	h.voice.speakErr = func(text string) error {
		if text == closingCompleted {
			return errors.New("tts down")
		}
		return nil
	}

	out := r.Run(context.Background())

	assert.Equal(t, StatusErrorExit, out.Status)
	require.Len(t, h.reporter.summaries, 1)
	assert.Len(t, h.reporter.summaries[0].ActivityResults, 2)
	assert.NotContains(t, h.voice.said(), closingError)
}

func TestRunReporterFailureStillOneAttempt(t *testing.T) {
	r, h := newHarness(t, testPlan(2), "yes", "a", "b")
	h.reporter.err = errors.New("backend down")

	out := r.Run(context.Background())

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Len(t, h.reporter.summaries, 1)
}

func TestNewRunnerRequiresCollaborators(t *testing.T) {
	_, err := NewRunner(Config{}, Deps{})
	require.Error(t, err)
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, StatusUnattended, DeriveStatus(0, false))
	assert.Equal(t, StatusUnattended, DeriveStatus(0, true))
	assert.Equal(t, StatusEarlyExit, DeriveStatus(2, true))
	assert.Equal(t, StatusSuccess, DeriveStatus(2, false))
	assert.Equal(t, 1, StatusErrorExit.ExitCode())
}

func TestDomainScoresAverage(t *testing.T) {
	got := DomainScores([]*exercise.ActivityResult{
		{Domain: content.DomainLanguage, Score: 80},
		{Domain: content.DomainLanguage, Score: 65},
		{Domain: content.DomainWorkingMemory, Score: 33.33},
	})
	assert.Equal(t, map[content.Domain]float64{
		content.DomainLanguage:      72.5,
		content.DomainWorkingMemory: 33.3,
	}, got)
	assert.Empty(t, DomainScores(nil))
}
