package corpus

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTopWords(t *testing.T) {
	tokens := strings.Fields("o gato viu o rato e o rato viu o gato")
	got := TopWords(tokens, 3)
	want := []WordCount{
		{Word: "o", Count: 4, Percent: 100 * 4.0 / 11},
		{Word: "gato", Count: 2, Percent: 100 * 2.0 / 11},
		{Word: "viu", Count: 2, Percent: 100 * 2.0 / 11},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TopWords() mismatch (-want +got):\n%s", diff)
	}

	if all := TopWords(tokens, 0); len(all) != 5 {
		t.Errorf("TopWords(0) returned %d rows, want 5", len(all))
	}
	if empty := TopWords(nil, 10); len(empty) != 0 {
		t.Errorf("TopWords(nil) = %v, want empty", empty)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(strings.Fields("a b a c a"))
	if diff := cmp.Diff(Summary{Total: 5, Unique: 3}, got); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}
}

func TestInterestingWords(t *testing.T) {
	var tokens []string
	add := func(word string, n int) {
		for i := 0; i < n; i++ {
			tokens = append(tokens, word)
		}
	}
	add("alice", 5)     // theme word seen often enough
	add("rainha", 3)    // theme word seen too rarely, but still among the top
	add("de", 10)       // too short
	add("disse", 9)     // frequent and alphabetic
	add("muito", 8)     // frequent and alphabetic
	add("disse-lhe", 7) // not alphabetic
	add("casa", 1)

	opts := DefaultInterestingOptions()
	got := InterestingWords(tokens, opts)
	want := []string{"alice", "casa", "disse", "muito", "rainha"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InterestingWords() mismatch (-want +got):\n%s", diff)
	}

	opts.Keep = 1
	opts.Themes = nil
	got = InterestingWords(tokens, opts)
	if diff := cmp.Diff([]string{"disse"}, got); diff != "" {
		t.Errorf("InterestingWords(Keep=1) mismatch (-want +got):\n%s", diff)
	}
}

func TestWrap(t *testing.T) {
	testCases := []struct {
		text  string
		width int
		want  string
	}{
		{"aaa bbb ccc", 7, "aaa bbb\nccc"},
		{"aaa bbb ccc", 6, "aaa\nbbb\nccc"},
		{"curto extraordinariamente x", 5, "curto\nextraordinariamente\nx"},
		{"olá você é", 9, "olá você\né"},
		{"  a   b  ", 0, "a b"},
		{"", 10, ""},
	}
	for _, tc := range testCases {
		if got := Wrap(tc.text, tc.width); got != tc.want {
			t.Errorf("Wrap(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
		}
	}
}

func TestWrapWidth(t *testing.T) {
	text := strings.Repeat("era uma vez uma princesa muito bonita ", 20)
	for _, line := range strings.Split(Wrap(text, DefaultWrapWidth), "\n") {
		if len([]rune(line)) > DefaultWrapWidth {
			t.Errorf("line %q is longer than %d runes", line, DefaultWrapWidth)
		}
	}
}

func TestPunctuate(t *testing.T) {
	tokens := make([]string, 100)
	for i := range tokens {
		tokens[i] = "lero"
	}

	got := Punctuate(tokens, rand.New(rand.NewPCG(1, 2)))
	again := Punctuate(tokens, rand.New(rand.NewPCG(1, 2)))
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("Punctuate() is not reproducible (-first +second):\n%s", diff)
	}

	stops := 0
	for i, tok := range got {
		switch tok {
		case "lero":
		case "lero.":
			stops++
		default:
			t.Fatalf("token %d = %q", i, tok)
		}
	}
	if stops == 0 {
		t.Error("Punctuate() added no full stops to 100 words")
	}
	if got[len(got)-1] != "lero" {
		t.Errorf("last token = %q, want it untouched", got[len(got)-1])
	}
	if tokens[0] != "lero" || strings.Contains(strings.Join(tokens, ""), ".") {
		t.Error("Punctuate() modified its input")
	}
}
