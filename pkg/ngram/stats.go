package ngram

// TableStats summarizes a single table.
type TableStats struct {
	Order        int `json:"order"`
	Contexts     int `json:"contexts"`     // distinct contexts
	Observations int `json:"observations"` // recorded transitions, duplicates included
	FirstTokens  int `json:"first_tokens"` // distinct tokens that start a context
	MaxFanOut    int `json:"max_fan_out"`  // most distinct continuations behind one context
}

// Stats returns a snapshot of the table's size.
func (t *Table) Stats() TableStats {
	stats := TableStats{
		Order:        t.order,
		Contexts:     len(t.keys),
		Observations: t.total,
		FirstTokens:  len(t.starts),
	}
	for _, next := range t.entries {
		seen := make(map[string]struct{}, len(next))
		for _, tok := range next {
			seen[tok] = struct{}{}
		}
		if len(seen) > stats.MaxFanOut {
			stats.MaxFanOut = len(seen)
		}
	}
	return stats
}

// Stats returns per-table statistics in ascending order.
func (m Model) Stats() []TableStats {
	out := make([]TableStats, 0, len(m))
	for _, order := range m.Orders() {
		if t := m[order]; t != nil {
			out = append(out, t.Stats())
		}
	}
	return out
}
