package ngram

import "sort"

// Prune returns a copy of t without the continuations observed minFreq times
// or fewer. Contexts left without continuations are dropped. Remaining
// multisets keep their insertion order.
func (t *Table) Prune(minFreq int) *Table {
	b, _ := NewTableBuilder(t.order)
	for _, key := range t.keys {
		next := t.entries[key]
		counts := make(map[string]int, len(next))
		for _, tok := range next {
			counts[tok]++
		}
		ctx := contextFromKey(key)
		for _, tok := range next {
			if counts[tok] > minFreq {
				_ = b.Observe(ctx, tok)
			}
		}
	}
	return b.Table()
}

// Limit returns a copy of t holding only contexts observed at least
// minObservations times, keeping the maxContexts most observed of them. Ties
// keep first-seen order. A maxContexts of zero or less keeps every context
// that passes the threshold.
func (t *Table) Limit(minObservations, maxContexts int) *Table {
	keys := make([]string, 0, len(t.keys))
	for _, key := range t.keys {
		if len(t.entries[key]) >= minObservations {
			keys = append(keys, key)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return len(t.entries[keys[i]]) > len(t.entries[keys[j]])
	})
	if maxContexts > 0 && len(keys) > maxContexts {
		keys = keys[:maxContexts]
	}

	// Rebuild in the original first-seen order.
	keep := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		keep[key] = struct{}{}
	}
	b, _ := NewTableBuilder(t.order)
	for _, key := range t.keys {
		if _, ok := keep[key]; !ok {
			continue
		}
		ctx := contextFromKey(key)
		for _, tok := range t.entries[key] {
			_ = b.Observe(ctx, tok)
		}
	}
	return b.Table()
}
