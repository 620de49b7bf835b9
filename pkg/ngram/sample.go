package ngram

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Candidate is a possible next token and its sampling weight.
type Candidate struct {
	Token  string
	Weight float64
}

// occurrences turns a multiset into one unit-weight candidate per recorded
// occurrence, so duplicates keep their frequency.
func occurrences(next []string) []Candidate {
	out := make([]Candidate, len(next))
	for i, tok := range next {
		out[i] = Candidate{Token: tok, Weight: 1}
	}
	return out
}

// collapse turns a multiset into distinct candidates weighted by count, in
// order of first occurrence.
func collapse(next []string) []Candidate {
	index := make(map[string]int, len(next))
	var out []Candidate
	for _, tok := range next {
		if i, ok := index[tok]; ok {
			out[i].Weight++
			continue
		}
		index[tok] = len(out)
		out = append(out, Candidate{Token: tok, Weight: 1})
	}
	return out
}

// sample draws one candidate with probability proportional to its weight.
// Both the uniform and the weighted generation modes end up here.
func sample(rng *rand.Rand, candidates []Candidate) string {
	var total float64
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return candidates[0].Token
	}
	r := rng.Float64() * total
	for _, c := range candidates {
		r -= c.Weight
		if r < 0 {
			return c.Token
		}
	}
	// Floating point slack can leave r at exactly zero.
	return candidates[len(candidates)-1].Token
}

// shape applies top-k filtering and temperature to weighted candidates.
// A temperature of 0 or less keeps only the most frequent candidate.
func shape(candidates []Candidate, temperature float64, topK int) []Candidate {
	if topK > 0 && topK < len(candidates) {
		sorted := make([]Candidate, len(candidates))
		copy(sorted, candidates)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Weight > sorted[j].Weight
		})
		candidates = sorted[:topK]
	}

	switch {
	case temperature <= 0:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Weight > best.Weight {
				best = c
			}
		}
		return []Candidate{best}
	case temperature == 1.0:
		return candidates
	}

	// Work in log space and subtract the maximum so exp never overflows.
	logs := make([]float64, len(candidates))
	maxLog := math.Inf(-1)
	for i, c := range candidates {
		logs[i] = math.Log(c.Weight) / temperature
		if logs[i] > maxLog {
			maxLog = logs[i]
		}
	}
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = Candidate{Token: c.Token, Weight: math.Exp(logs[i] - maxLog)}
	}
	return out
}
