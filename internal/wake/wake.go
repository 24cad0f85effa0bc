// Package wake matches a spoken wake phrase at the start of a transcript.
//
// Transcribers routinely mangle invented assistant names ("hark" comes back
// as "hawk" or "heark"), so the match is fuzzy: each wake-phrase word may
// differ from the corresponding transcript word by a third of its length in
// edits, with a floor of one edit.
package wake

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Matcher checks transcripts for a leading wake phrase.
type Matcher struct {
	words []string
}

// NewMatcher builds a Matcher for the given phrase (e.g. "hey hark").
// Matching is case-insensitive and ignores surrounding punctuation.
func NewMatcher(phrase string) *Matcher {
	return &Matcher{words: strings.Fields(strings.ToLower(phrase))}
}

// Empty reports whether no wake phrase is configured, in which case Match
// accepts everything.
func (m *Matcher) Empty() bool { return len(m.words) == 0 }

// Match reports whether transcript starts with the wake phrase and, if so,
// returns the remainder after it. The remainder keeps the original casing
// and punctuation of the transcript.
func (m *Matcher) Match(transcript string) (remainder string, ok bool) {
	if len(m.words) == 0 {
		return transcript, true
	}

	fields := strings.Fields(transcript)
	if len(fields) < len(m.words) {
		return "", false
	}

	for i, want := range m.words {
		got := normalizeWord(fields[i])
		if !fuzzyEqual(got, want) {
			return "", false
		}
	}

	return strings.TrimSpace(strings.Join(fields[len(m.words):], " ")), true
}

// fuzzyEqual accepts got when its edit distance from want is at most a third
// of want's length, with a floor of one edit.
func fuzzyEqual(got, want string) bool {
	if got == want {
		return true
	}
	budget := len(want) / 3
	if budget < 1 {
		budget = 1
	}
	return matchr.Levenshtein(got, want) <= budget
}

// FuzzyPhrase reports whether two whole phrases match word for word under
// the same tolerance as the wake word. Used for stop-phrase detection.
func FuzzyPhrase(got, want string) bool {
	gw := strings.Fields(strings.ToLower(got))
	ww := strings.Fields(strings.ToLower(want))
	if len(gw) != len(ww) {
		return false
	}
	for i := range ww {
		if !fuzzyEqual(normalizeWord(gw[i]), ww[i]) {
			return false
		}
	}
	return true
}

func normalizeWord(w string) string {
	return strings.Trim(strings.ToLower(w), ".,!?;:\"'")
}
