package exercise

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

// Longest sequence per digit-span direction.
const (
	MaxForwardSpan  = 9
	MaxBackwardSpan = 8
)

func runDigitSpan(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	backward := strings.EqualFold(a.String("direction", "forward"), "backward")

	limit, length := MaxForwardSpan, 3
	if backward {
		limit, length = MaxBackwardSpan, 2
	}
	if m := a.Int("max_length", limit); m > 0 && m < limit {
		limit = m
	}
	length = a.Int("start_length", length)
	switch level(a) {
	case content.DifficultyHigh:
		length++
	case content.DifficultyLow:
		length--
	}
	if length < 2 {
		length = 2
	}
	if length > limit {
		length = limit
	}

	intro := "I'll say some numbers. When I'm done, repeat them back in the same order."
	if backward {
		intro = "I'll say some numbers. When I'm done, say them back in reverse order."
	}
	if err := ec.Speak(ctx, a.Line(0, intro)); err != nil {
		return nil, err
	}

	best, failures, trials := 0, 0, 0
	for length <= limit {
		trials++
		digits := scoring.GenerateDigits(ec.Rand(), length)
		if err := ec.Speak(ctx, scoring.SpeakDigits(digits)); err != nil {
			return nil, err
		}
		res, err := ec.Listen(ctx)
		if err != nil {
			return nil, err
		}
		t.heard(res.Transcript, res.LatencyMs)

		if scoring.DigitsMatch(digits, scoring.ExtractDigits(res.Transcript), backward) {
			best, failures = length, 0
			if length == limit {
				break
			}
			length++
			if err := ec.Speak(ctx, "That's right. Let's try a longer one."); err != nil {
				return nil, err
			}
			continue
		}
		failures++
		if failures >= 2 {
			break
		}
		if err := ec.Speak(ctx, "Not quite. Here's another one the same length."); err != nil {
			return nil, err
		}
	}

	t.detail("max_span", best)
	t.detail("trials", trials)
	if backward {
		t.detail("direction", "backward")
	} else {
		t.detail("direction", "forward")
	}
	ec.Log().Debug("digit span finished", zap.String("activity_id", a.ID), zap.Int("max_span", best))
	return t.finish(float64(best), normalized(a, float64(best), float64(limit))), nil
}

var (
	wordPool = []string{
		"apple", "bicycle", "sunset", "garden", "candle", "river", "pencil",
		"blanket", "violin", "harbor", "lemon", "mountain", "teacup", "window",
		"feather", "basket", "tiger", "castle", "bridge", "piano",
	}
	// DefaultRecallWords is what harvest tests when nothing was planted.
	DefaultRecallWords = []string{"apple", "bicycle", "sunset", "garden", "candle"}
)

func wordListPhase(a content.Activity) string {
	if p := strings.ToLower(a.String("phase", "")); p == "plant" || p == "harvest" {
		return p
	}
	if strings.HasSuffix(a.ID, "harvest") {
		return "harvest"
	}
	return "plant"
}

func runWordList(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	phase := wordListPhase(a)
	t.detail("phase", phase)

	var words []string
	if phase == "plant" {
		words = a.Strings("words")
		if len(words) == 0 {
			n := a.Int("word_count", map[content.Difficulty]int{
				content.DifficultyLow: 3, content.DifficultyMedium: 5, content.DifficultyHigh: 7,
			}[level(a)])
			words = sample(ec, wordPool, n)
		}
		if err := ec.Speak(ctx, a.Line(0, "I'm going to say a few words. Try to remember them, I'll ask about them again later.")); err != nil {
			return nil, err
		}
		if err := ec.Speak(ctx, strings.Join(words, "... ")); err != nil {
			return nil, err
		}
		ec.SetState(SessionState{PlantedWords: words})
		if err := ec.Speak(ctx, a.Line(1, "Now, tell me all the words you remember.")); err != nil {
			return nil, err
		}
	} else {
		words = ec.State().PlantedWords
		if len(words) == 0 {
			words = a.Strings("words")
		}
		if len(words) == 0 {
			ec.Log().Warn("no planted words, using default list", zap.String("activity_id", a.ID))
			words = DefaultRecallWords
		}
		if err := ec.Speak(ctx, a.Line(0, "Earlier I asked you to remember some words. Which ones can you recall?")); err != nil {
			return nil, err
		}
	}

	res, err := ec.Listen(ctx)
	if err != nil {
		return nil, err
	}
	t.heard(res.Transcript, res.LatencyMs)

	recalled := scoring.MatchWords(res.Transcript, words)
	t.detail("words", words)
	t.detail("recalled_words", recalled)
	raw := float64(len(recalled))
	return t.finish(raw, normalized(a, raw, float64(len(words)))), nil
}

// sample picks n distinct words in random order.
func sample(ec *Context, pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	idx := ec.Rand().Perm(len(pool))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}

var defaultStory = struct {
	text      string
	questions []content.Params
}{
	text: "Margaret went to the market on Tuesday morning. She bought three red apples and a loaf of bread.",
	questions: []content.Params{
		{"question": "Where did Margaret go?", "accept": []any{"market", "shop", "store"}},
		{"question": "What day was it?", "accept": []any{"tuesday"}},
		{"question": "What did she buy besides apples?", "accept": []any{"bread", "loaf"}},
	},
}

func runStoryRecall(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	story := a.String("story", "")
	questions := a.Maps("questions")
	if story == "" || len(questions) == 0 {
		story, questions = defaultStory.text, defaultStory.questions
	}
	if err := ec.Speak(ctx, a.Line(0, "I'm going to tell you a short story. Listen carefully.")); err != nil {
		return nil, err
	}
	if err := ec.Speak(ctx, story); err != nil {
		return nil, err
	}

	correct := 0
	answers := make([]map[string]any, 0, len(questions))
	for _, q := range questions {
		if err := ec.Speak(ctx, q.String("question")); err != nil {
			return nil, err
		}
		res, err := ec.Listen(ctx)
		if err != nil {
			return nil, err
		}
		t.heard(res.Transcript, res.LatencyMs)
		ok := scoring.ContainsAny(res.Transcript, q.Strings("accept"))
		if ok {
			correct++
		}
		answers = append(answers, map[string]any{"question": q.String("question"), "correct": ok})
	}
	t.detail("answers", answers)
	raw := float64(correct)
	return t.finish(raw, normalized(a, raw, float64(len(questions)))), nil
}

var matchWords = []string{"match", "yes", "same", "yeah", "yep"}

func runNBack(ctx context.Context, a content.Activity, ec *Context) (*ActivityResult, error) {
	t := ec.begin(a)
	def := 1
	if level(a) == content.DifficultyHigh {
		def = 2
	}
	n := a.Int("n_level", def)
	if n < 1 {
		n = 1
	}
	window := time.Duration(a.Int("window_ms", 2000)) * time.Millisecond
	words := a.Strings("words")
	if len(words) <= n {
		words = nBackStream(ec, n, 10)
	}

	intro := "I'll say a list of words. Say 'match' whenever a word is the same as the one just before it."
	if n > 1 {
		intro = fmt.Sprintf("I'll say a list of words. Say 'match' whenever a word is the same as the one %d words back.", n)
	}
	if err := ec.Speak(ctx, a.Line(0, intro)); err != nil {
		return nil, err
	}

	var hits, misses, falseAlarms, rejections, targets int
	var hitLatency []float64
	for i, w := range words {
		if err := ec.Speak(ctx, w); err != nil {
			return nil, err
		}
		if i < n {
			continue
		}
		br, err := ec.ListenBrief(ctx, window)
		if err != nil {
			return nil, err
		}
		if br.HasResponse {
			t.heard(br.Transcript, br.LatencyMs)
		}
		responded := br.HasResponse && scoring.ContainsAny(br.Transcript, matchWords)
		isTarget := strings.EqualFold(words[i], words[i-n])
		if isTarget {
			targets++
		}
		switch {
		case isTarget && responded:
			hits++
			hitLatency = append(hitLatency, br.LatencyMs)
		case isTarget:
			misses++
		case responded:
			falseAlarms++
		default:
			rejections++
		}
	}

	t.detail("n_level", n)
	t.detail("hits", hits)
	t.detail("misses", misses)
	t.detail("false_alarms", falseAlarms)
	t.detail("correct_rejections", rejections)
	if len(hitLatency) > 0 {
		t.responseTime(scoring.Mean(hitLatency))
	}
	raw := float64(hits)
	var score float64
	if targets > 0 {
		score = normalized(a, raw, float64(targets))
	} else if falseAlarms == 0 {
		score = 100
	}
	return t.finish(raw, score), nil
}

// nBackStream builds a word stream of length size with roughly a third of
// positions repeating the word n back.
func nBackStream(ec *Context, n, size int) []string {
	out := make([]string, 0, size)
	for i := 0; i < size; i++ {
		if i >= n && ec.Rand().Intn(3) == 0 {
			out = append(out, out[i-n])
			continue
		}
		w := wordPool[ec.Rand().Intn(len(wordPool))]
		if i >= n && w == out[i-n] {
			w = wordPool[(indexOfWord(w)+1+ec.Rand().Intn(len(wordPool)-1))%len(wordPool)]
		}
		out = append(out, w)
	}
	return out
}

func indexOfWord(w string) int {
	for i, p := range wordPool {
		if p == w {
			return i
		}
	}
	return 0
}
