package corpus

import (
	"sort"
	"unicode"
	"unicode/utf8"
)

// WordCount is one row of a frequency listing.
type WordCount struct {
	Word    string  `json:"word"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary describes a token sequence.
type Summary struct {
	Total  int `json:"total"`
	Unique int `json:"unique"`
}

// Summarize counts the tokens and distinct tokens in tokens.
func Summarize(tokens []string) Summary {
	return Summary{Total: len(tokens), Unique: len(Frequencies(tokens))}
}

// Frequencies counts every distinct token.
func Frequencies(tokens []string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokens {
		counts[tok]++
	}
	return counts
}

// TopWords returns the n most frequent tokens with their share of the total.
// Ties keep the order in which the tokens first appear. A non-positive n
// returns every token.
func TopWords(tokens []string, n int) []WordCount {
	counts := make(map[string]int)
	var order []string
	for _, tok := range tokens {
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if n > 0 && len(order) > n {
		order = order[:n]
	}

	out := make([]WordCount, len(order))
	for i, word := range order {
		out[i] = WordCount{
			Word:    word,
			Count:   counts[word],
			Percent: float64(counts[word]) * 100 / float64(len(tokens)),
		}
	}
	return out
}

// DefaultThemes are the words of the bundled Alice corpora worth offering as
// seeds whenever they occur often enough.
var DefaultThemes = []string{
	"alice", "coelho", "chapeleiro", "gato", "rainha", "rei", "carta", "cartas",
	"chá", "mesa", "jardim", "buraco", "toca", "relógio", "tempo", "mundo",
	"país", "maravilhas", "espelho", "sonho", "dormindo", "acordar",
	"pequena", "grande", "crescer", "diminuir", "poção", "beber", "comer",
	"porta", "chave", "curiosa", "estranha", "estranho", "medo", "coragem",
}

// InterestingOptions tunes InterestingWords.
type InterestingOptions struct {
	Themes    []string // candidate words kept when seen more than MinCount times
	MinCount  int
	Top       int // how many of the most frequent tokens to inspect
	Keep      int // how many of those to keep once filtered
	MinLength int // minimum length in runes of a frequent word
}

// DefaultInterestingOptions returns the settings used for seed suggestions.
func DefaultInterestingOptions() InterestingOptions {
	return InterestingOptions{
		Themes:    DefaultThemes,
		MinCount:  3,
		Top:       30,
		Keep:      15,
		MinLength: 4,
	}
}

// InterestingWords picks words that make good generation seeds: theme words
// that occur often enough, plus the most frequent purely alphabetic words of
// some length. The result is sorted and free of duplicates.
func InterestingWords(tokens []string, opts InterestingOptions) []string {
	counts := Frequencies(tokens)
	picked := make(map[string]struct{})

	for _, word := range opts.Themes {
		if counts[word] > opts.MinCount {
			picked[word] = struct{}{}
		}
	}

	kept := 0
	for _, wc := range TopWords(tokens, opts.Top) {
		if opts.Keep > 0 && kept >= opts.Keep {
			break
		}
		if utf8.RuneCountInString(wc.Word) < opts.MinLength || !isAlpha(wc.Word) {
			continue
		}
		picked[wc.Word] = struct{}{}
		kept++
	}

	out := make([]string, 0, len(picked))
	for word := range picked {
		out = append(out, word)
	}
	sort.Strings(out)
	return out
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
