package session

import "strings"

// firstSentenceBoundary returns the index of the first '.', '!', or '?'
// character that ends a sentence: it must be immediately followed by a
// whitespace character (' ', '\n', '\r', '\t'), and for periods the word it
// terminates must not look like an abbreviation. Returns -1 if no boundary
// exists in s.
//
// The abbreviation heuristic skips tokens made only of ASCII letters and
// dots with at least two dots ("U.S.A.", "e.g.") and a small set of common
// titles ("Dr.", "Mr."). False positives merely change TTS chunking
// granularity.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				if s[i] == '.' && isAbbreviation(s, i) {
					continue
				}
				return i
			}
		}
	}
	return -1
}

// abbreviationTitles are period-terminated words that almost never end a
// sentence.
var abbreviationTitles = map[string]bool{
	"dr.": true, "mr.": true, "mrs.": true, "ms.": true, "st.": true,
	"vs.": true, "etc.": true, "approx.": true, "no.": true,
}

// isAbbreviation reports whether the period at s[dot] terminates an
// abbreviation rather than a sentence.
func isAbbreviation(s string, dot int) bool {
	start := dot
	for start > 0 && s[start-1] != ' ' && s[start-1] != '\n' && s[start-1] != '\r' && s[start-1] != '\t' {
		start--
	}
	token := s[start : dot+1]

	if abbreviationTitles[strings.ToLower(token)] {
		return true
	}

	// Dotted-letter runs: every character is an ASCII letter or a dot, and
	// there is more than one dot ("U.S.A.", "e.g.").
	dots := 0
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c == '.':
			dots++
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return dots >= 2
}

// splitSentences drains every complete sentence from buf, returning the
// sentences (trimmed of the trailing separator) and the remaining partial
// text.
func splitSentences(buf string) (sentences []string, rest string) {
	for {
		idx := firstSentenceBoundary(buf)
		if idx < 0 {
			return sentences, buf
		}
		sentences = append(sentences, buf[:idx+1])
		buf = strings.TrimLeft(buf[idx+1:], " \t\n\r")
	}
}
