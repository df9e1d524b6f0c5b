package scoring

import (
	"strconv"
	"strings"
	"unicode"
)

var (
	units = map[string]int{
		"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
		"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	}
	teens = map[string]int{
		"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
		"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	}
	tens = map[string]int{
		"twenty": 20, "thirty": 30, "forty": 40, "fourty": 40, "fifty": 50,
		"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	}
)

type part int

const (
	partNone part = iota
	partUnit
	partTeen
	partTens
	partHundred
)

// numberBuilder accumulates the words of one spoken number.
type numberBuilder struct {
	out    []int
	cur    int
	last   part
	active bool
}

func (b *numberBuilder) flush() {
	if b.active {
		b.out = append(b.out, b.cur)
	}
	b.cur, b.last, b.active = 0, partNone, false
}

func (b *numberBuilder) start(v int, p part) {
	b.flush()
	b.cur, b.last, b.active = v, p, true
}

// ParseSpokenNumbers extracts the numbers in a free-form spoken answer.
// Numerals, number words and compounds are understood: "forty-seven",
// "ninety three", "one hundred and three". Commas and full stops end a number.
func ParseSpokenNumbers(text string) []int {
	text = strings.ToLower(text)
	var b numberBuilder
	for _, tok := range splitKeepingBreaks(text) {
		if tok == "," {
			b.flush()
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			b.flush()
			b.out = append(b.out, n)
			continue
		}
		switch {
		case units[tok] > 0 || tok == "zero":
			v := units[tok]
			if b.active && (b.last == partTens || b.last == partHundred) {
				b.cur += v
				b.last = partUnit
				continue
			}
			b.start(v, partUnit)
		case teens[tok] > 0:
			if b.active && b.last == partHundred {
				b.cur += teens[tok]
				b.last = partTeen
				continue
			}
			b.start(teens[tok], partTeen)
		case tens[tok] > 0:
			if b.active && b.last == partHundred {
				b.cur += tens[tok]
				b.last = partTens
				continue
			}
			b.start(tens[tok], partTens)
		case tok == "hundred":
			switch {
			case b.active && b.last == partUnit && b.cur < 10:
				b.cur *= 100
			case b.active && b.last == partTeen:
				b.cur *= 100
			default:
				b.start(100, partHundred)
				continue
			}
			b.last = partHundred
		case tok == "and" && b.active && b.last == partHundred:
		default:
			b.flush()
		}
	}
	b.flush()
	return b.out
}

// splitKeepingBreaks tokenizes on whitespace and hyphens. Sentence
// punctuation is emitted as a "," break token.
func splitKeepingBreaks(text string) []string {
	var out []string
	var cur strings.Builder
	emit := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case r == ',' || r == '.' || r == ';' || r == '!' || r == '?':
			emit()
			out = append(out, ",")
		default:
			emit()
		}
	}
	emit()
	return out
}

// SerialResult is the outcome of walking a spoken countdown.
type SerialResult struct {
	Sequence []int
	Correct  int
	Errors   int
	Skips    int
}

// SerialSteps walks numbers against the progression start-step, start-2*step, ...
// Saying the start number first counts as a correct step. A number exactly
// one step beyond the expected one is credited and resynchronises (a
// skipped step); any other number is an error and the walk continues from
// the participant's number. Numbers above start and immediate repeats are
// ignored as mishearings.
func SerialSteps(numbers []int, start, step int) SerialResult {
	res := SerialResult{Sequence: []int{}}
	if step <= 0 {
		return res
	}
	expected := start - step
	for _, n := range numbers {
		if n > start {
			continue
		}
		if len(res.Sequence) > 0 && res.Sequence[len(res.Sequence)-1] == n {
			continue
		}
		res.Sequence = append(res.Sequence, n)
		switch {
		case n == start && len(res.Sequence) == 1:
			res.Correct++
		case n == expected:
			res.Correct++
			expected = n - step
		case n == expected-step:
			res.Correct++
			res.Skips++
			expected = n - step
		default:
			res.Errors++
			expected = n - step
		}
	}
	return res
}
