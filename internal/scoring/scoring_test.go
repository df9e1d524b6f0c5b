package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDigitsNoImmediateRepeats(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 1; n <= 9; n++ {
		ds := GenerateDigits(rng, n)
		require.Len(t, ds, n)
		for i := 1; i < len(ds); i++ {
			assert.NotEqual(t, ds[i-1], ds[i])
		}
	}
}

func TestExtractDigits(t *testing.T) {
	cases := map[string][]int{
		"three seven two":       {3, 7, 2},
		"3, 7, 2":               {3, 7, 2},
		"372":                   {3, 7, 2},
		"Um, five... oh nine":   {5, 0, 9},
		"I think it was 4 1 8.": {4, 1, 8},
		"Oh, 4 1 9":             {4, 1, 9},
		"I want to say 4 1 9":   {4, 1, 9},
		"six too eight":         {6, 2, 8},
		"nine for one":          {9, 4, 1},
		"okay 3 2 oh":           {3, 2},
		"":                      nil,
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractDigits(in), in)
	}
}

func TestDigitsMatch(t *testing.T) {
	assert.True(t, DigitsMatch([]int{1, 2, 3}, []int{1, 2, 3}, false))
	assert.False(t, DigitsMatch([]int{1, 2, 3}, []int{1, 2, 3}, true))
	assert.True(t, DigitsMatch([]int{1, 2, 3}, []int{3, 2, 1}, true))
	assert.False(t, DigitsMatch([]int{1, 2, 3}, []int{1, 2}, false))
}

func TestMatchWords(t *testing.T) {
	targets := []string{"Apple", "Bicycle", "Sunset"}
	assert.Equal(t, []string{"apple", "sunset"}, MatchWords("I remember apple and sunset", targets))
	assert.Equal(t, []string{"apple", "bicycle", "sunset"}, MatchWords("sunset, BICYCLE... apples!", targets))
	assert.Equal(t, []string{}, MatchWords("", targets))
	assert.Equal(t, []string{}, MatchWords("pineapple", targets))
}

func TestMatchKeywords(t *testing.T) {
	assert.True(t, ContainsAny("She'd be really worried", []string{"sad", "worried"}))
	assert.False(t, ContainsAny("unhappily", []string{"happy"}))
	assert.True(t, ContainsAny("in the basket I think", []string{"the basket"}))
	assert.Equal(t, []string{"blue"}, MatchKeywords("Blue!", []string{"red", "blue"}))
}

func TestUniqueWords(t *testing.T) {
	got := UniqueWords("um dog, cat, the dog, horse and uh a cow", "")
	assert.Equal(t, []string{"dog", "cat", "horse", "cow"}, got)

	got = UniqueWords("fish, fork, table, Fun, fish", "F")
	assert.Equal(t, []string{"fish", "fork", "fun"}, got)
}

func TestParseSpokenNumbers(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"fifty, forty-seven, forty-four", []int{50, 47, 44}},
		{"ninety three eighty six seventy nine", []int{93, 86, 79}},
		{"one hundred and three", []int{103}},
		{"93, 86, 79", []int{93, 86, 79}},
		{"twelve. nine. six", []int{12, 9, 6}},
		{"um I'm not sure", nil},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseSpokenNumbers(tc.in))
		})
	}
}

func TestSerialSteps(t *testing.T) {
	res := SerialSteps(ParseSpokenNumbers("fifty, forty-seven, forty-four"), 50, 3)
	assert.Equal(t, []int{50, 47, 44}, res.Sequence)
	assert.Equal(t, 3, res.Correct)
	assert.Equal(t, 0, res.Errors)

	// 93, 86, 80 (error), 73 continues from 80, 59 skips 66
	res = SerialSteps([]int{93, 86, 80, 73, 59}, 100, 7)
	assert.Equal(t, 4, res.Correct)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Skips)

	res = SerialSteps([]int{200, 93, 93, 86}, 100, 7)
	assert.Equal(t, []int{93, 86}, res.Sequence)
	assert.Equal(t, 2, res.Correct)

	assert.Equal(t, 0, SerialSteps(nil, 100, 7).Correct)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 50.0, Normalize(5, 0, 10))
	assert.Equal(t, 100.0, Normalize(12, 0, 10))
	assert.Equal(t, 0.0, Normalize(-1, 0, 10))
	assert.Equal(t, 0.0, Normalize(5, 10, 10))
}

func TestNormalizeLatency(t *testing.T) {
	assert.Equal(t, 100.0, NormalizeLatency(300, 500, 2500))
	assert.Equal(t, 50.0, NormalizeLatency(1500, 500, 2500))
	assert.Equal(t, 0.0, NormalizeLatency(4000, 500, 2500))
}

func TestComposite(t *testing.T) {
	assert.Equal(t, 75.0, Composite(Component{Score: 100, Weight: 1}, Component{Score: 50, Weight: 1}))
	assert.Equal(t, 0.0, Composite())
	assert.InDelta(t, 85.0, Composite(Component{Score: 100, Weight: 0.7}, Component{Score: 50, Weight: 0.3}), 1e-9)
}

func TestEngagement(t *testing.T) {
	assert.Equal(t, 0.0, Engagement(nil))
	// 5 words avg -> 20, plus one extra turn -> 25
	assert.Equal(t, 25.0, Engagement([]string{"I went to the park", "it was very nice today"}))
	long := "this is a fairly long answer with many many words in it for sure yes indeed friend of mine again"
	// 20 words avg -> 80, plus one extra turn -> 85
	assert.Equal(t, 85.0, Engagement([]string{long, long}))
	longer := long + " and then we walked home along the river before it got dark"
	assert.Len(t, Tokenize(longer), 32)
	assert.Equal(t, 100.0, Engagement([]string{longer}))
	assert.Equal(t, 100.0, Engagement([]string{longer, longer}))
}
