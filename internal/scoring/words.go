package scoring

import (
	"strings"
	"unicode"
)

var fillers = map[string]bool{
	"um": true, "uh": true, "er": true, "erm": true, "hmm": true, "mm": true,
	"and": true, "the": true, "a": true, "an": true, "of": true, "or": true,
	"so": true, "like": true, "well": true, "okay": true, "ok": true,
	"i": true, "i'm": true, "it's": true, "is": true, "then": true, "also": true,
	"oh": true, "yeah": true, "let": true, "me": true, "think": true, "see": true,
}

// Tokenize lower-cases text and splits it into words. Curly apostrophes are
// folded to straight ones and kept inside words ("that's").
func Tokenize(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// MatchWords returns the targets (lower-cased, in target order, without
// duplicates) that occur as words in transcript. A trailing plural "s" on
// the spoken word is tolerated.
func MatchWords(transcript string, targets []string) []string {
	heard := make(map[string]bool)
	for _, tok := range Tokenize(transcript) {
		heard[tok] = true
	}
	out := []string{}
	seen := make(map[string]bool)
	for _, t := range targets {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if heard[t] || heard[t+"s"] || heard[t+"es"] {
			out = append(out, t)
			seen[t] = true
		}
	}
	return out
}

// ContainsAny reports whether any keyword appears in text. Single-word
// keywords must match a whole word; multi-word keywords match as a phrase.
func ContainsAny(text string, keywords []string) bool {
	return len(MatchKeywords(text, keywords)) > 0
}

// MatchKeywords returns the keywords from the list that appear in text.
func MatchKeywords(text string, keywords []string) []string {
	toks := Tokenize(text)
	words := make(map[string]bool, len(toks))
	for _, t := range toks {
		words[t] = true
	}
	joined := " " + strings.Join(toks, " ") + " "
	var out []string
	for _, k := range keywords {
		kt := Tokenize(k)
		switch len(kt) {
		case 0:
			continue
		case 1:
			if words[kt[0]] || words[kt[0]+"s"] {
				out = append(out, k)
			}
		default:
			if strings.Contains(joined, " "+strings.Join(kt, " ")+" ") {
				out = append(out, k)
			}
		}
	}
	return out
}

// UniqueWords returns the distinct content words of text in spoken order,
// dropping fillers and one-letter tokens. With a non-empty letter only words
// starting with it are kept.
func UniqueWords(text, letter string) []string {
	letter = strings.ToLower(strings.TrimSpace(letter))
	seen := make(map[string]bool)
	var out []string
	for _, tok := range Tokenize(text) {
		if len([]rune(tok)) < 2 || fillers[tok] || isNumber(tok) {
			continue
		}
		if letter != "" && !strings.HasPrefix(tok, letter) {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// WordCount is the number of words in text.
func WordCount(text string) int { return len(Tokenize(text)) }

func isNumber(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}
