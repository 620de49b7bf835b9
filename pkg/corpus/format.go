package corpus

import (
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// DefaultWrapWidth is the line width used when printing generated text.
const DefaultWrapWidth = 70

// Join renders tokens as a single line separated by spaces.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Wrap breaks text into lines of at most width runes, splitting only at
// spaces. A word longer than width gets a line of its own. A non-positive
// width returns the words on one line.
func Wrap(text string, width int) string {
	words := strings.Fields(text)
	if width <= 0 {
		return strings.Join(words, " ")
	}

	var b strings.Builder
	lineLen := 0
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		switch {
		case lineLen == 0:
		case lineLen+1+n > width:
			b.WriteByte('\n')
			lineLen = 0
		default:
			b.WriteByte(' ')
			lineLen++
		}
		b.WriteString(word)
		lineLen += n
	}
	return b.String()
}

// Punctuate returns a copy of tokens with a full stop appended to roughly
// every tenth to fifteenth word. The last word is never touched. A nil rng
// uses a randomly seeded source.
func Punctuate(tokens []string, rng *rand.Rand) []string {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	out := make([]string, len(tokens))
	copy(out, tokens)
	for i := range out {
		if i == len(out)-1 {
			break
		}
		if (i+1)%(10+rng.IntN(6)) == 0 {
			out[i] += "."
		}
	}
	return out
}
