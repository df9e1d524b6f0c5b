package exercise

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

func activity(id string, typ content.ActivityType, d content.Domain, params map[string]any) content.Activity {
	return content.Activity{ID: id, Type: typ, Domain: d, DifficultyParams: params}
}

func echoDigits(backward bool) func(string) string {
	return func(last string) string {
		ds := scoring.ExtractDigits(last)
		if backward {
			for i, j := 0, len(ds)-1; i < j; i, j = i+1, j-1 {
				ds[i], ds[j] = ds[j], ds[i]
			}
		}
		return scoring.SpeakDigits(ds)
	}
}

func TestDigitSpanAlwaysCorrectStopsAtMax(t *testing.T) {
	cases := []struct {
		direction string
		backward  bool
		max       int
	}{
		{"forward", false, MaxForwardSpan},
		{"backward", true, MaxBackwardSpan},
	}
	for _, tc := range cases {
		t.Run(tc.direction, func(t *testing.T) {
			io := &fakeIO{reply: echoDigits(tc.backward)}
			a := activity("ds", content.TypeDigitSpan, content.DomainWorkingMemory, map[string]any{"direction": tc.direction})
			res, err := runDigitSpan(context.Background(), a, newTestContext(io, nil))
			require.NoError(t, err)
			assert.Equal(t, float64(tc.max), res.RawScore)
			assert.Equal(t, 100.0, res.Score)
			assert.Equal(t, tc.max, res.Details["max_span"])
			start := 3
			if tc.backward {
				start = 2
			}
			assert.Equal(t, tc.max-start+1, io.listens)
		})
	}
}

func TestDigitSpanAlwaysWrongStopsAfterTwoFailures(t *testing.T) {
	io := &fakeIO{reply: func(string) string { return "I don't know" }}
	a := activity("ds", content.TypeDigitSpan, content.DomainWorkingMemory, map[string]any{"direction": "forward", "start_length": 4})
	res, err := runDigitSpan(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.RawScore)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 2, io.listens)
	// both trials were at the initial length
	var lengths []int
	for _, s := range io.spoken {
		if strings.Contains(s, "...") {
			lengths = append(lengths, len(scoring.ExtractDigits(s)))
		}
	}
	assert.Equal(t, []int{4, 4}, lengths)
}

func TestDigitSpanSilenceIsNotAnError(t *testing.T) {
	io := &fakeIO{}
	a := activity("ds", content.TypeDigitSpan, content.DomainComplexAttention, nil)
	res, err := runDigitSpan(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 0, res.TurnCount)
	assert.Empty(t, res.Transcripts)
}

func TestWordListRoundTrip(t *testing.T) {
	harvestWith := func(answer string) *ActivityResult {
		state := &SessionState{}
		plantIO := &fakeIO{answers: []string{"apple bicycle sunset"}}
		plant := activity("word-list-plant", content.TypeWordList, content.DomainEpisodicMemory,
			map[string]any{"phase": "plant", "words": []any{"Apple", "Bicycle", "Sunset"}})
		res, err := runWordList(context.Background(), plant, newTestContext(plantIO, state))
		require.NoError(t, err)
		assert.Equal(t, 100.0, res.Score)
		assert.Equal(t, []string{"Apple", "Bicycle", "Sunset"}, state.PlantedWords)

		harvestIO := &fakeIO{answers: []string{answer}}
		harvest := activity("word-list-harvest", content.TypeWordList, content.DomainEpisodicMemory, nil)
		res, err = runWordList(context.Background(), harvest, newTestContext(harvestIO, state))
		require.NoError(t, err)
		return res
	}

	partial := harvestWith("I remember apple and sunset")
	assert.Equal(t, []string{"apple", "sunset"}, partial.Details["recalled_words"])
	assert.Equal(t, "harvest", partial.Details["phase"])

	full := harvestWith("apple, sunset and the bicycle")
	assert.Less(t, partial.Score, full.Score)
	assert.Equal(t, 100.0, full.Score)
}

func TestWordListHarvestFallsBackToDefaults(t *testing.T) {
	io := &fakeIO{answers: []string{"garden and candle"}}
	a := activity("word-list-harvest", content.TypeWordList, content.DomainEpisodicMemory, nil)
	res, err := runWordList(context.Background(), a, newTestContext(io, &SessionState{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultRecallWords, res.Details["words"])
	assert.Equal(t, []string{"garden", "candle"}, res.Details["recalled_words"])
}

func TestWordListPlantSamplesByDifficulty(t *testing.T) {
	state := &SessionState{}
	a := activity("word-list-plant", content.TypeWordList, content.DomainEpisodicMemory, nil)
	a.Difficulty = content.DifficultyHigh
	_, err := runWordList(context.Background(), a, newTestContext(&fakeIO{}, state))
	require.NoError(t, err)
	assert.Len(t, state.PlantedWords, 7)
}

func TestSerialArithmeticParsesCountdown(t *testing.T) {
	io := &fakeIO{answers: []string{"fifty, forty-seven, forty-four"}}
	a := activity("serial", content.TypeSerialArithmetic, content.DomainExecutiveFunction,
		map[string]any{"start": 50, "subtract_by": 3, "steps": 3})
	res, err := runSerialArithmetic(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, []int{50, 47, 44}, res.Details["sequence"])
	assert.Equal(t, 3, res.Details["correct_steps"])
	assert.Equal(t, 0, res.Details["errors"])
	assert.Equal(t, 3.0, res.RawScore)
	assert.Equal(t, 100.0, res.Score)
}

func TestNBackClassification(t *testing.T) {
	// targets at positions 2 and 4
	io := &fakeIO{answers: []string{"", "match", "", "", "yes"}}
	a := activity("nb", content.TypeNBack, content.DomainWorkingMemory,
		map[string]any{"n_level": 1, "words": []any{"tree", "lamp", "lamp", "car", "car", "cup"}})
	res, err := runNBack(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Details["hits"])
	assert.Equal(t, 1, res.Details["misses"])
	assert.Equal(t, 1, res.Details["false_alarms"])
	assert.Equal(t, 2, res.Details["correct_rejections"])
	assert.Equal(t, 50.0, res.Score)
	require.NotNil(t, res.ResponseTimeMs)
	assert.Equal(t, 800.0, *res.ResponseTimeMs)
}

func TestGoNoGoPerfectResponder(t *testing.T) {
	targets := []any{"dog", "cat"}
	io := &fakeIO{reply: func(last string) string {
		if last == "dog" || last == "cat" {
			return "go"
		}
		return ""
	}}
	a := activity("gng", content.TypeGoNoGo, content.DomainComplexAttention,
		map[string]any{"targets": targets, "distractors": []any{"chair", "spoon"}, "trials": 12})
	res, err := runGoNoGo(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, 0, res.Details["misses"])
	assert.Equal(t, 0, res.Details["false_alarms"])
	assert.Equal(t, 12, io.listens)
}

func TestGoNoGoSpeedVariantUsesLatency(t *testing.T) {
	reply := func(last string) string {
		if last == "red" {
			return "go"
		}
		return ""
	}
	run := func(latency float64) float64 {
		io := &fakeIO{reply: reply, latencyMs: latency}
		a := activity("gng", content.TypeGoNoGo, content.DomainProcessingSpeed, map[string]any{
			"variant": "speed", "targets": []any{"red"}, "distractors": []any{"chair", "spoon"}, "window_ms": 2000,
		})
		res, err := runGoNoGo(context.Background(), a, newTestContext(io, nil))
		require.NoError(t, err)
		return res.Score
	}
	assert.Greater(t, run(450), run(1800))
}

func TestNumberHunterScoresCloseness(t *testing.T) {
	// the fake counts the target in what was read out
	io := &fakeIO{}
	io.reply = func(string) string {
		for _, s := range io.spoken {
			if strings.Contains(s, "...") {
				return "I heard it " + strconv.Itoa(strings.Count(s, "7")) + " times"
			}
		}
		return ""
	}
	a := activity("nh", content.TypeGoNoGo, content.DomainComplexAttention,
		map[string]any{"variant": "number_hunter", "target_number": 7, "sequence_length": 10})
	res, err := runGoNoGo(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, res.Details["actual_count"], int(res.RawScore))
}

func TestVerbalFluencyTimed(t *testing.T) {
	io := &fakeIO{answers: []string{"dog, cat, um, dog, horse"}}
	a := activity("fl", content.TypeVerbalFluency, content.DomainLanguage, map[string]any{"mode": "timed"})
	a.Scoring = content.Scoring{Metric: "unique_words", Min: 0, Max: 10}
	res, err := runVerbalFluency(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.RawScore)
	assert.Equal(t, 30.0, res.Score)
	require.Len(t, io.encourage, 1)
	assert.NotEmpty(t, io.encourage[0])
}

func TestVerbalFluencyAssociationLatency(t *testing.T) {
	fast := &fakeIO{reply: func(string) string { return "moon" }, latencyMs: 900}
	a := activity("qa", content.TypeVerbalFluency, content.DomainProcessingSpeed,
		map[string]any{"mode": "association", "cues": []any{"sun", "bread"}})
	res, err := runVerbalFluency(context.Background(), a, newTestContext(fast, nil))
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, 2.0, res.RawScore)

	silent := &fakeIO{}
	res, err = runVerbalFluency(context.Background(), a, newTestContext(silent, nil))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Nil(t, res.ResponseTimeMs)
}

func TestCategorySwitch(t *testing.T) {
	io := &fakeIO{answers: []string{"banana", "blue", "carrot", "green"}}
	a := activity("cs", content.TypeTaskSwitching, content.DomainExecutiveFunction, nil)
	res, err := runTaskSwitching(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.RawScore)
	assert.Equal(t, 75.0, res.Score)
	assert.Equal(t, map[string]string{"fruit": "1/2", "colour": "2/2"}, res.Details["per_category"])
}

func TestRuleReversalTracksPhases(t *testing.T) {
	// elephant, mouse | house, coin (reversed): participant ignores the switch
	io := &fakeIO{answers: []string{"big", "small", "big", "small"}}
	a := activity("rr", content.TypeTaskSwitching, content.DomainExecutiveFunction,
		map[string]any{"variant": "rule_reversal", "switch_after": 2})
	res, err := runTaskSwitching(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Details["pre_switch_accuracy"])
	assert.Equal(t, 0.0, res.Details["post_switch_accuracy"])
	assert.Equal(t, 50.0, res.Score)
}

func TestInstructionFollowing(t *testing.T) {
	a := activity("if", content.TypeInstructionFollowing, content.DomainExecutiveFunction, nil)

	res, err := runInstructionFollowing(context.Background(), a, newTestContext(&fakeIO{answers: []string{"blue, one two three, done"}}, nil))
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)

	res, err = runInstructionFollowing(context.Background(), a, newTestContext(&fakeIO{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.RawScore)
	assert.Equal(t, true, res.Details["min_credit_applied"])
}

func TestStoryRecall(t *testing.T) {
	io := &fakeIO{answers: []string{"she went to the shop", "monday", "some bread"}}
	a := activity("story", content.TypeStoryRecall, content.DomainEpisodicMemory, nil)
	res, err := runStoryRecall(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.RawScore)
	assert.InDelta(t, 66.7, res.Score, 0.01)
	assert.Equal(t, 3, res.TurnCount)
}

func TestConversationFollowsDecisions(t *testing.T) {
	io := &fakeIO{
		answers:   []string{"I feel fine today thanks", "I slept well"},
		decisions: []Decision{{Text: "Glad to hear it. How did you sleep?", FollowUp: true}, {Text: "Lovely.", FollowUp: false}},
	}
	a := activity("orient", content.TypeOrientation, content.DomainOrientation, map[string]any{"max_turns": 3})
	res, err := runConversational(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, io.listens)
	assert.Equal(t, 2, res.TurnCount)
	assert.Equal(t, []string{"I feel fine today thanks", "I slept well"}, res.Transcripts)
	assert.Equal(t, scoring.Round1(scoring.Engagement(res.Transcripts)), res.Score)
	assert.Contains(t, io.spoken, "Lovely.")
}

func TestConversationIgnoresBlankTranscripts(t *testing.T) {
	io := &fakeIO{
		answers:   []string{"   ", "I slept well"},
		decisions: []Decision{{Text: "Take your time.", FollowUp: true}, {Text: "Lovely.", FollowUp: false}},
	}
	a := activity("orient", content.TypeOrientation, content.DomainOrientation, map[string]any{"max_turns": 3})
	res, err := runConversational(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TurnCount)
	assert.Equal(t, 1.0, res.RawScore)
	assert.Equal(t, scoring.Round1(scoring.Engagement([]string{"I slept well"})), res.Score)
}

func TestConfiguredScoringRangeIsApplied(t *testing.T) {
	nBack := func(sc content.Scoring) float64 {
		io := &fakeIO{answers: []string{"", "match", "", "", "yes"}}
		a := activity("nb", content.TypeNBack, content.DomainWorkingMemory,
			map[string]any{"n_level": 1, "words": []any{"tree", "lamp", "lamp", "car", "car", "cup"}})
		a.Scoring = sc
		res, err := runNBack(context.Background(), a, newTestContext(io, nil))
		require.NoError(t, err)
		return res.Score
	}
	assert.Equal(t, 50.0, nBack(content.Scoring{}))
	assert.Equal(t, 25.0, nBack(content.Scoring{Metric: "hits", Min: 0, Max: 4}))
	assert.Equal(t, 100.0, nBack(content.Scoring{Metric: "hits", Min: 0, Max: 1}))

	io := &fakeIO{answers: []string{"banana", "blue", "carrot", "green"}}
	cs := activity("cs", content.TypeTaskSwitching, content.DomainExecutiveFunction, nil)
	cs.Scoring = content.Scoring{Metric: "fraction_correct", Min: 1, Max: 5}
	res, err := runTaskSwitching(context.Background(), cs, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.RawScore)
	assert.Equal(t, 50.0, res.Score)

	io = &fakeIO{answers: []string{"she went to the shop", "monday", "some bread"}}
	story := activity("story", content.TypeStoryRecall, content.DomainEpisodicMemory, nil)
	story.Scoring = content.Scoring{Metric: "fraction_correct", Min: 0, Max: 2}
	res, err = runStoryRecall(context.Background(), story, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
}

func TestEmotionScenarios(t *testing.T) {
	io := &fakeIO{answers: []string{"she'd be really worried", "angry"}}
	a := activity("emo", content.TypeEmotionRecognition, content.DomainSocialCognition, map[string]any{
		"scenarios": []any{
			map[string]any{"prompt": "Her dog is lost.", "expected": []any{"sad", "worried"}},
			map[string]any{"prompt": "He won a prize.", "expected": []any{"happy", "excited"}},
		},
	})
	res, err := runConversational(context.Background(), a, newTestContext(io, nil))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.RawScore)
	assert.Equal(t, 50.0, res.Score)
}

func TestRegistryIsExhaustive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Validate())

	lib, err := content.Default()
	require.NoError(t, err)
	for _, a := range lib.All() {
		f, err := a.Type.Family()
		require.NoError(t, err)
		assert.NotNil(t, r.handlers[f], a.ID)
	}

	r.Register(content.FamilyNBack, nil)
	assert.Error(t, r.Validate())
}

func TestRegistryRunsEveryLibraryActivity(t *testing.T) {
	lib, err := content.Default()
	require.NoError(t, err)
	r := NewRegistry()
	for _, a := range lib.All() {
		res, err := r.Run(context.Background(), a, newTestContext(&fakeIO{}, &SessionState{}))
		require.NoError(t, err, a.ID)
		assert.Equal(t, a.ID, res.ActivityID)
		assert.True(t, res.Completed)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 100.0)
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	_, err := NewRegistry().Run(context.Background(), content.Activity{ID: "x", Type: "juggling"}, newTestContext(&fakeIO{}, nil))
	assert.Error(t, err)
}

func TestSetStateMerges(t *testing.T) {
	state := &SessionState{PlantedWords: []string{"a"}}
	ec := newTestContext(&fakeIO{}, state)
	ec.SetState(SessionState{})
	assert.Equal(t, []string{"a"}, ec.State().PlantedWords)
	ec.SetState(SessionState{PlantedWords: []string{"b"}})
	assert.Equal(t, []string{"b"}, state.PlantedWords)
}
