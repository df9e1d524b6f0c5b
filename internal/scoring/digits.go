package scoring

import (
	"math/rand"
	"strconv"
	"strings"
)

var digitWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
}

// homophones stand for a digit only between two other digits ("five oh
// nine"); elsewhere they are filler ("oh, 4 1 9", "I want to say").
var homophones = map[string]int{
	"oh": 0, "o": 0,
	"won": 1,
	"to": 2, "too": 2,
	"for": 4,
	"ate": 8,
}

// GenerateDigits returns n random digits 0-9 with no digit repeated
// back-to-back.
func GenerateDigits(rng *rand.Rand, n int) []int {
	out := make([]int, 0, n)
	for len(out) < n {
		d := rng.Intn(10)
		if len(out) > 0 && out[len(out)-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ExtractDigits pulls single digits out of a transcript. Numerals are split
// into their digits ("372" -> 3,7,2) and digit words are mapped, so both
// "three seven two" and "3, 7, 2" work.
func ExtractDigits(text string) []int {
	toks := Tokenize(text)
	digitAt := func(i int) bool {
		if i < 0 || i >= len(toks) {
			return false
		}
		_, ok := digitWords[toks[i]]
		return ok || isNumber(toks[i])
	}
	var out []int
	for i, tok := range toks {
		if d, ok := digitWords[tok]; ok {
			out = append(out, d)
			continue
		}
		if d, ok := homophones[tok]; ok {
			if digitAt(i-1) && digitAt(i+1) {
				out = append(out, d)
			}
			continue
		}
		if isNumber(tok) {
			for _, r := range tok {
				out = append(out, int(r-'0'))
			}
		}
	}
	return out
}

// DigitsMatch reports whether heard reproduces expected, in reverse order when
// backward is set.
func DigitsMatch(expected, heard []int, backward bool) bool {
	if len(expected) != len(heard) {
		return false
	}
	n := len(expected)
	for i := range expected {
		want := expected[i]
		if backward {
			want = expected[n-1-i]
		}
		if heard[i] != want {
			return false
		}
	}
	return true
}

// SpeakDigits renders digits for TTS with pauses between them.
func SpeakDigits(digits []int) string {
	parts := make([]string, len(digits))
	for i, d := range digits {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "... ")
}
