package wake

import "testing"

func TestExactMatchReturnsRemainder(t *testing.T) {
	t.Parallel()

	m := NewMatcher("hey hark")
	rest, ok := m.Match("hey hark what time is it")
	if !ok {
		t.Fatal("exact phrase did not match")
	}
	if rest != "what time is it" {
		t.Errorf("remainder = %q", rest)
	}
}

func TestFuzzyMatchTolerantOfTranscriptionErrors(t *testing.T) {
	t.Parallel()

	m := NewMatcher("hey hark")
	for _, in := range []string{
		"Hey Hark, what time is it",
		"hey hawk what time is it",
		"hay hark what time is it",
	} {
		if _, ok := m.Match(in); !ok {
			t.Errorf("%q did not match", in)
		}
	}
}

func TestNonMatchRejected(t *testing.T) {
	t.Parallel()

	m := NewMatcher("hey hark")
	for _, in := range []string{
		"what time is it",
		"okay google what time is it",
		"hey",
		"",
	} {
		if _, ok := m.Match(in); ok {
			t.Errorf("%q matched but should not", in)
		}
	}
}

func TestWakePhraseAloneMatchesWithEmptyRemainder(t *testing.T) {
	t.Parallel()

	m := NewMatcher("hey hark")
	rest, ok := m.Match("hey hark")
	if !ok || rest != "" {
		t.Fatalf("got %q, %v; want empty remainder and a match", rest, ok)
	}
}

func TestEmptyPhraseMatchesEverything(t *testing.T) {
	t.Parallel()

	m := NewMatcher("")
	if !m.Empty() {
		t.Fatal("matcher with no phrase should report Empty")
	}
	rest, ok := m.Match("anything at all")
	if !ok || rest != "anything at all" {
		t.Fatalf("got %q, %v", rest, ok)
	}
}

func TestFuzzyPhrase(t *testing.T) {
	t.Parallel()

	cases := []struct {
		got, want string
		match     bool
	}{
		{"stop talking", "stop talking", true},
		{"Stop talking.", "stop talking", true},
		{"stob talking", "stop talking", true},
		{"keep talking please", "stop talking", false},
		{"stop", "stop talking", false},
	}
	for _, c := range cases {
		if FuzzyPhrase(c.got, c.want) != c.match {
			t.Errorf("FuzzyPhrase(%q, %q) != %v", c.got, c.want, c.match)
		}
	}
}
