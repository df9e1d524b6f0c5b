package exercise

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

func runSerialArithmetic(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	defStep := 7
	if level(a) == content.DifficultyLow {
		defStep = 3
	}
	start := a.Int("start", 100)
	step := a.Int("subtract_by", defStep)
	steps := a.Int("steps", 5)
	limit := time.Duration(a.Int("time_limit_sec", 45)) * time.Second

	if err := ec.Speak(ctx, a.Line(0, "Let's count backwards.")); err != nil {
		return nil, err
	}
	if err := ec.Speak(ctx, fmt.Sprintf("Start at %d and keep taking away %d. Say each answer out loud.", start, step)); err != nil {
		return nil, err
	}
	res, err := ec.ListenForDuration(ctx, limit, nil)
	if err != nil {
		return nil, err
	}
	t.heard(res.Transcript, res.LatencyMs)

	sr := scoring.SerialSteps(scoring.ParseSpokenNumbers(res.Transcript), start, step)
	t.detail("sequence", sr.Sequence)
	t.detail("correct_steps", sr.Correct)
	t.detail("errors", sr.Errors)
	t.detail("skips", sr.Skips)
	raw := float64(sr.Correct)
	return t.finish(raw, normalized(a, raw, float64(steps))), nil
}

// Task-switching answers for rule reversal.
var (
	bigWords   = []string{"big", "large", "huge"}
	smallWords = []string{"small", "little", "tiny"}
)

func runTaskSwitching(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	if a.String("variant", "category_switch") == "rule_reversal" {
		return runRuleReversal(ctx, a, ec)
	}
	t := ec.begin(a)
	items := a.Maps("items")
	if len(items) == 0 {
		items = defaultSwitchItems
	}
	if err := ec.Speak(ctx, a.Line(0, "We're going to switch between two categories. Listen for which one I ask for.")); err != nil {
		return nil, err
	}

	correct := 0
	perCategory := map[string][2]int{}
	for _, it := range items {
		if err := ec.Speak(ctx, it.String("prompt")); err != nil {
			return nil, err
		}
		res, err := ec.Listen(ctx)
		if err != nil {
			return nil, err
		}
		t.heard(res.Transcript, res.LatencyMs)
		cat := it.String("category")
		tally := perCategory[cat]
		tally[1]++
		if scoring.ContainsAny(res.Transcript, it.Strings("keywords")) {
			correct++
			tally[0]++
		}
		perCategory[cat] = tally
	}
	breakdown := make(map[string]string, len(perCategory))
	for cat, tally := range perCategory {
		breakdown[cat] = fmt.Sprintf("%d/%d", tally[0], tally[1])
	}
	t.detail("per_category", breakdown)
	raw := float64(correct)
	return t.finish(raw, normalized(a, raw, float64(len(items)))), nil
}

var defaultSwitchItems = []content.Params{
	{"category": "fruit", "prompt": "Name a fruit.", "keywords": []any{"apple", "banana", "orange", "pear", "grape", "peach", "plum", "cherry"}},
	{"category": "colour", "prompt": "Now name a colour.", "keywords": []any{"red", "blue", "green", "yellow", "purple", "pink", "black", "white"}},
	{"category": "fruit", "prompt": "Back to fruit.", "keywords": []any{"apple", "banana", "orange", "pear", "grape", "peach", "plum", "cherry"}},
	{"category": "colour", "prompt": "And a colour.", "keywords": []any{"red", "blue", "green", "yellow", "purple", "pink", "black", "white"}},
}

func runRuleReversal(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	trials := a.Maps("trials")
	if len(trials) == 0 {
		trials = []content.Params{
			{"word": "elephant", "big": true}, {"word": "mouse", "big": false},
			{"word": "house", "big": true}, {"word": "coin", "big": false},
		}
	}
	switchAt := a.Int("switch_after", len(trials)/2)
	if switchAt < 1 || switchAt >= len(trials) {
		switchAt = len(trials) / 2
	}
	window := time.Duration(a.Int("window_ms", 4000)) * time.Millisecond

	if err := ec.Speak(ctx, a.Line(0, "I'll name something. Say 'big' if it's big, or 'small' if it's small.")); err != nil {
		return nil, err
	}
	var pre, post [2]int // correct, total
	for i, tr := range trials {
		reversed := i >= switchAt
		if i == switchAt {
			if err := ec.Speak(ctx, a.Line(1, "Now the rule changes! Say 'small' for big things and 'big' for small things.")); err != nil {
				return nil, err
			}
		}
		if err := ec.Speak(ctx, tr.String("word")); err != nil {
			return nil, err
		}
		br, err := ec.ListenBrief(ctx, window)
		if err != nil {
			return nil, err
		}
		if br.HasResponse {
			t.heard(br.Transcript, br.LatencyMs)
		}
		wantBig := tr.Bool("big") != reversed
		saidBig := scoring.ContainsAny(br.Transcript, bigWords)
		saidSmall := scoring.ContainsAny(br.Transcript, smallWords)
		ok := (wantBig && saidBig && !saidSmall) || (!wantBig && saidSmall && !saidBig)

		phase := &pre
		if reversed {
			phase = &post
		}
		phase[1]++
		if ok {
			phase[0]++
		}
	}

	preAcc := scoring.Normalize(float64(pre[0]), 0, float64(pre[1]))
	postAcc := scoring.Normalize(float64(post[0]), 0, float64(post[1]))
	t.detail("pre_switch_accuracy", scoring.Round1(preAcc))
	t.detail("post_switch_accuracy", scoring.Round1(postAcc))
	return t.finish(float64(pre[0]+post[0]), normalized(a, (preAcc+postAcc)/2, 100)), nil
}

var defaultInstructionSteps = []content.Params{
	{"text": "say the word blue", "keywords": []any{"blue"}},
	{"text": "then count to three", "keywords": []any{"one", "two", "three", "1", "2", "3"}},
	{"text": "and finish by saying done", "keywords": []any{"done"}},
}

// A response this short may be physical compliance the microphone cannot
// hear, so it still earns the minimum credit.
const shortResponseWords = 3

func runInstructionFollowing(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	steps := a.Maps("steps")
	if len(steps) == 0 {
		steps = defaultInstructionSteps
	}
	minCredit := a.Int("min_credit", 1)

	texts := make([]string, len(steps))
	for i, s := range steps {
		texts[i] = s.String("text")
	}
	if err := ec.Speak(ctx, a.Line(0, "Listen to all of these steps, then do them in order.")); err != nil {
		return nil, err
	}
	if err := ec.Speak(ctx, capitalize(strings.Join(texts, ", "))+"."); err != nil {
		return nil, err
	}
	res, err := ec.Listen(ctx)
	if err != nil {
		return nil, err
	}
	t.heard(res.Transcript, res.LatencyMs)

	credited := 0
	for _, s := range steps {
		if scoring.ContainsAny(res.Transcript, s.Strings("keywords")) {
			credited++
		}
	}
	t.detail("steps_heard", credited)
	if scoring.WordCount(res.Transcript) < shortResponseWords && credited < minCredit {
		credited = minCredit
		t.detail("min_credit_applied", true)
	}
	if credited > len(steps) {
		credited = len(steps)
	}
	raw := float64(credited)
	return t.finish(raw, normalized(a, raw, float64(len(steps)))), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
