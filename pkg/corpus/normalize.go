package corpus

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// asciiPunctuation matches Python's string.punctuation, which is what the
// cleaned corpora were produced with.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// DefaultExtraPunctuation lists the typographic marks found in book scans:
// dashes, curly and low quotes, guillemets, the acute accent used as an
// apostrophe and the ellipsis.
const DefaultExtraPunctuation = "—–‘’‚‛“”„‟‹›«»´…"

// hyphenMark stands in for a protected hyphen while punctuation is removed.
// It lives in the private use area and never occurs in real text.
const hyphenMark = "\uE000"

var (
	// cliticRegex finds Portuguese pronominal hyphenation such as
	// "disse-lhe" or "lembrá-lo". The trailing group stands in for a word
	// boundary, which RE2 only knows for ASCII.
	cliticRegex = regexp.MustCompile(`(?i)(\pL+)-(se|me|te|lhes|lhe|nos|vos|os|as|o|a|los|las|lo|la|nas|na|no)(\PL|$)`)
	// compoundRegex finds any hyphen between two letters.
	compoundRegex = regexp.MustCompile(`(\pL)-(\pL)`)
)

// Normalizer cleans raw text into a single line of space separated words.
// Its behavior can be customized with functional options.
type Normalizer struct {
	lower       bool
	keepClitics bool
	keepHyphens bool
	markup      *bluemonday.Policy
	extra       string
}

// Option is a function that configures a Normalizer.
type Option func(*Normalizer)

// WithLowercase toggles lower-casing. Default: true
func WithLowercase(lower bool) Option {
	return func(n *Normalizer) {
		n.lower = lower
	}
}

// WithCliticHyphens keeps the hyphen of pronominal forms like "disse-lhe".
// Default: true
func WithCliticHyphens(keep bool) Option {
	return func(n *Normalizer) {
		n.keepClitics = keep
	}
}

// WithHyphenatedCompounds keeps every hyphen that joins two letters, so
// "guarda-chuva" stays one word. Default: false
func WithHyphenatedCompounds(keep bool) Option {
	return func(n *Normalizer) {
		n.keepHyphens = keep
	}
}

// WithMarkupStripping removes HTML tags before anything else happens.
// Default: false
func WithMarkupStripping(strip bool) Option {
	return func(n *Normalizer) {
		if strip {
			n.markup = bluemonday.StrictPolicy()
		} else {
			n.markup = nil
		}
	}
}

// WithExtraPunctuation replaces the set of non-ASCII characters that are
// removed alongside ASCII punctuation. Default: DefaultExtraPunctuation
func WithExtraPunctuation(chars string) Option {
	return func(n *Normalizer) {
		n.extra = chars
	}
}

// NewNormalizer creates a Normalizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		lower:       true,
		keepClitics: true,
		extra:       DefaultExtraPunctuation,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize strips markup and punctuation from text, lower-cases it and
// collapses all whitespace, line breaks included, into single spaces.
// Punctuation is deleted rather than replaced, so "rei,rainha" becomes
// "reirainha" exactly like the corpora the models were trained on.
func (n *Normalizer) Normalize(text string) string {
	if n.markup != nil {
		// The policy escapes what it keeps; turn entities back into text.
		text = html.UnescapeString(n.markup.Sanitize(text))
	}
	if n.lower {
		text = strings.ToLower(text)
	}

	protected := false
	if n.keepHyphens {
		text = replaceAllRepeated(compoundRegex, text, "${1}"+hyphenMark+"${2}")
		protected = true
	} else if n.keepClitics {
		text = replaceAllRepeated(cliticRegex, text, "${1}"+hyphenMark+"${2}${3}")
		protected = true
	}

	text = strings.Map(func(r rune) rune {
		if n.isPunct(r) || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, text)

	if protected {
		text = strings.ReplaceAll(text, hyphenMark, "-")
	}
	return strings.Join(strings.Fields(text), " ")
}

func (n *Normalizer) isPunct(r rune) bool {
	if r < 0x80 {
		return strings.ContainsRune(asciiPunctuation, r)
	}
	return strings.ContainsRune(n.extra, r)
}

// replaceAllRepeated applies re until the text stops changing. Matches that
// share a character, like the two hyphens of "dá-se-lhe", need a second
// pass because regexp matches never overlap.
func replaceAllRepeated(re *regexp.Regexp, text, repl string) string {
	for {
		next := re.ReplaceAllString(text, repl)
		if next == text {
			return text
		}
		text = next
	}
}
