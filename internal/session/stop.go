package session

import (
	"strings"

	"github.com/CoCoMind/coco-device-sub000/internal/scoring"
)

// StopPhrases is the one vocabulary of explicit exit phrases, checked in the
// readiness phase and after every activity.
var StopPhrases = []string{
	"stop session",
	"end session",
	"goodbye",
	"bye",
	"that's all",
	"i'm done",
	"i want to stop",
	"stop",
}

// Phrases up to this length only count as a whole word, so "stopwatch" is
// not "stop". Longer phrases match anywhere in the text.
const shortPhraseLen = 4

// A short phrase right after a negation ("don't stop") is not an exit.
var negations = map[string]bool{"don't": true, "dont": true, "not": true, "never": true}

// notStopping lists words that turn a short phrase into an errand, as in
// "stop by the store".
var notStopping = map[string]map[string]bool{
	"stop": {"by": true, "at": true},
}

// CheckStopPhrase reports the first stop phrase found in transcript.
func CheckStopPhrase(transcript string) (string, bool) {
	words := scoring.Tokenize(transcript)
	if len(words) == 0 {
		return "", false
	}
	text := strings.Join(words, " ")
	for _, p := range StopPhrases {
		if len(p) <= shortPhraseLen {
			if standalone(words, p) {
				return p, true
			}
			continue
		}
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

func standalone(words []string, p string) bool {
	for i, w := range words {
		if w != p {
			continue
		}
		if i > 0 && negations[words[i-1]] {
			continue
		}
		if i+1 < len(words) && notStopping[p][words[i+1]] {
			continue
		}
		return true
	}
	return false
}

// FindStopPhrase scans transcripts in order.
func FindStopPhrase(transcripts []string) (string, bool) {
	for _, t := range transcripts {
		if p, ok := CheckStopPhrase(t); ok {
			return p, true
		}
	}
	return "", false
}
