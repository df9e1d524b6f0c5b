package exercise

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

var (
	goWords = []string{"go", "yes", "yeah", "yep", "now"}

	defaultTargets     = []string{"dog", "cat", "horse", "rabbit", "lion", "sheep"}
	defaultDistractors = []string{"chair", "spoon", "table", "window", "pencil", "shoe"}

	encouragements = []string{
		"You're doing well, keep going.",
		"Good, any more?",
		"Take your time, keep them coming.",
	}
	defaultCues = []string{"sun", "bread", "winter", "doctor", "garden"}
)

// Latency bounds (ms) for the speed components.
const (
	fastResponseMs = 400
	slowAssocMs    = 5000
	fastAssocMs    = 1000
)

func runGoNoGo(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	if a.String("variant", "") == "number_hunter" {
		return runNumberHunter(ctx, a, ec)
	}
	t := ec.begin(a)
	speed := a.String("variant", "standard") == "speed"

	window := time.Duration(a.Int("window_ms", 2000)) * time.Millisecond
	switch level(a) {
	case content.DifficultyHigh:
		window = window * 3 / 4
	case content.DifficultyLow:
		window = window * 5 / 4
	}
	targets := a.Strings("targets")
	if len(targets) == 0 {
		targets = defaultTargets
	}
	distractors := a.Strings("distractors")
	if len(distractors) == 0 {
		distractors = defaultDistractors
	}
	stream, isTarget := stimulusStream(ec, targets, distractors, a.Int("trials", 10))

	if err := ec.Speak(ctx, a.Line(0, "Say 'go' whenever you hear an animal. For anything else, stay quiet.")); err != nil {
		return nil, err
	}

	var hits, misses, falseAlarms, rejections, targetCount int
	var hitLatency []float64
	for i, stim := range stream {
		if err := ec.Speak(ctx, stim); err != nil {
			return nil, err
		}
		br, err := ec.ListenBrief(ctx, window)
		if err != nil {
			return nil, err
		}
		if br.HasResponse {
			t.heard(br.Transcript, br.LatencyMs)
		}
		responded := br.HasResponse && scoring.ContainsAny(br.Transcript, goWords)
		if isTarget[i] {
			targetCount++
		}
		switch {
		case isTarget[i] && responded:
			hits++
			hitLatency = append(hitLatency, br.LatencyMs)
		case isTarget[i]:
			misses++
		case responded:
			falseAlarms++
		default:
			rejections++
		}
	}

	t.detail("hits", hits)
	t.detail("misses", misses)
	t.detail("false_alarms", falseAlarms)
	t.detail("correct_rejections", rejections)

	hitRate := normalized(a, float64(hits), float64(targetCount))
	nonTargets := len(stream) - targetCount
	rejectRate := 100.0
	if nonTargets > 0 {
		rejectRate = scoring.Normalize(float64(rejections), 0, float64(nonTargets))
	}
	accuracy := scoring.Composite(
		scoring.Component{Score: hitRate, Weight: 0.7},
		scoring.Component{Score: rejectRate, Weight: 0.3},
	)
	score := accuracy
	if len(hitLatency) > 0 {
		mean := scoring.Mean(hitLatency)
		t.responseTime(mean)
		if speed {
			speedScore := scoring.NormalizeLatency(mean, fastResponseMs, float64(window.Milliseconds()))
			t.detail("speed_score", scoring.Round1(speedScore))
			score = scoring.Composite(
				scoring.Component{Score: accuracy, Weight: 0.6},
				scoring.Component{Score: speedScore, Weight: 0.4},
			)
		}
	} else if speed {
		score = scoring.Composite(scoring.Component{Score: accuracy, Weight: 0.6}, scoring.Component{Score: 0, Weight: 0.4})
	}
	return t.finish(float64(hits), score), nil
}

// stimulusStream mixes targets and distractors, about 40% targets and at
// least one, never the same word twice in a row.
func stimulusStream(ec *Context, targets, distractors []string, n int) ([]string, []bool) {
	if n < 2 {
		n = 2
	}
	words := make([]string, 0, n)
	flags := make([]bool, 0, n)
	anyTarget := false
	for i := 0; i < n; i++ {
		target := ec.Rand().Intn(10) < 4
		if i == n-1 && !anyTarget {
			target = true
		}
		list := distractors
		if target {
			list = targets
			anyTarget = true
		}
		w := list[ec.Rand().Intn(len(list))]
		if len(words) > 0 && words[len(words)-1] == w && len(list) > 1 {
			w = list[(indexOf(list, w)+1)%len(list)]
		}
		words = append(words, w)
		flags = append(flags, target)
	}
	return words, flags
}

func indexOf(list []string, w string) int {
	for i, x := range list {
		if x == w {
			return i
		}
	}
	return 0
}

func runNumberHunter(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	target := a.Int("target_number", 7)
	length := a.Int("sequence_length", 12)
	if length < 4 {
		length = 4
	}

	seq := make([]int, length)
	actual := 2 + ec.Rand().Intn(3)
	for i := range seq {
		d := 1 + ec.Rand().Intn(9)
		for d == target {
			d = 1 + ec.Rand().Intn(9)
		}
		seq[i] = d
	}
	for _, pos := range ec.Rand().Perm(length)[:actual] {
		seq[pos] = target
	}

	if err := ec.Speak(ctx, a.Line(0, fmt.Sprintf("I'm going to read some numbers. Count how many times you hear %d.", target))); err != nil {
		return nil, err
	}
	parts := make([]string, len(seq))
	for i, d := range seq {
		parts[i] = strconv.Itoa(d)
	}
	if err := ec.Speak(ctx, strings.Join(parts, "... ")); err != nil {
		return nil, err
	}
	if err := ec.Speak(ctx, fmt.Sprintf("How many times did you hear %d?", target)); err != nil {
		return nil, err
	}
	res, err := ec.Listen(ctx)
	if err != nil {
		return nil, err
	}
	t.heard(res.Transcript, res.LatencyMs)

	t.detail("actual_count", actual)
	reported := -1
	if nums := scoring.ParseSpokenNumbers(res.Transcript); len(nums) > 0 {
		reported = nums[len(nums)-1]
	}
	if reported < 0 {
		t.detail("reported_count", nil)
		return t.finish(0, 0), nil
	}
	t.detail("reported_count", reported)
	diff := math.Abs(float64(reported - actual))
	return t.finish(float64(reported), normalized(a, math.Max(0, 100-25*diff), 100)), nil
}

func runVerbalFluency(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	if a.String("mode", "timed") == "association" {
		return runAssociation(ctx, a, ec)
	}
	t := ec.begin(a)
	limit := time.Duration(a.Int("time_limit_sec", 60)) * time.Second
	letter := a.String("letter", "")
	category := a.String("category", "animals")

	intro := fmt.Sprintf("Name as many %s as you can in one minute.", category)
	if letter != "" {
		intro = fmt.Sprintf("Say as many words as you can that start with the letter %s.", strings.ToUpper(letter))
	}
	if err := ec.Speak(ctx, a.Line(0, intro)); err != nil {
		return nil, err
	}
	res, err := ec.ListenForDuration(ctx, limit, func(segment int) string {
		return encouragements[(segment-1)%len(encouragements)]
	})
	if err != nil {
		return nil, err
	}
	t.heard(res.Transcript, res.LatencyMs)

	words := scoring.UniqueWords(res.Transcript, letter)
	t.detail("words", words)
	defMax := 20.0
	if letter != "" {
		defMax = 15
	}
	raw := float64(len(words))
	return t.finish(raw, normalized(a, raw, defMax)), nil
}

func runAssociation(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	cues := a.Strings("cues")
	if len(cues) == 0 {
		cues = defaultCues
	}
	window := time.Duration(a.Int("window_ms", 6000)) * time.Millisecond

	if err := ec.Speak(ctx, a.Line(0, "I'll say a word, and you say the first word that comes to mind.")); err != nil {
		return nil, err
	}
	var latencies, perCue []float64
	for _, cue := range cues {
		if err := ec.Speak(ctx, cue); err != nil {
			return nil, err
		}
		br, err := ec.ListenBrief(ctx, window)
		if err != nil {
			return nil, err
		}
		if !br.HasResponse || strings.TrimSpace(br.Transcript) == "" {
			perCue = append(perCue, 0)
			continue
		}
		t.heard(br.Transcript, br.LatencyMs)
		latencies = append(latencies, br.LatencyMs)
		perCue = append(perCue, scoring.NormalizeLatency(br.LatencyMs, fastAssocMs, slowAssocMs))
	}
	t.detail("responses", len(latencies))
	if len(latencies) > 0 {
		t.responseTime(scoring.Mean(latencies))
	}
	return t.finish(float64(len(latencies)), normalized(a, scoring.Mean(perCue), 100)), nil
}
