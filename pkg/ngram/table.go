package ngram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Context is an ordered, fixed-length sequence of tokens used as a lookup key.
type Context []string

// Key returns the map key for the context. Every token is prefixed with its
// length in bytes, so distinct contexts get distinct keys whatever bytes the
// tokens contain.
func (c Context) Key() string {
	var b strings.Builder
	for _, tok := range c {
		b.WriteString(strconv.Itoa(len(tok)))
		b.WriteByte(':')
		b.WriteString(tok)
	}
	return b.String()
}

// String renders the context with single spaces, for logs and display.
func (c Context) String() string {
	return strings.Join(c, " ")
}

// Equal reports whether both contexts hold the same tokens in the same order.
func (c Context) Equal(other Context) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// contextFromKey decodes a key built by Context.Key.
func contextFromKey(key string) Context {
	var ctx Context
	for key != "" {
		size, rest, _ := strings.Cut(key, ":")
		n, _ := strconv.Atoi(size)
		ctx = append(ctx, rest[:n])
		key = rest[n:]
	}
	return ctx
}

// Table is an immutable order-n transition table. Every key is a Context of
// exactly n-1 tokens and every stored multiset holds at least one token.
type Table struct {
	order   int
	entries map[string][]string
	// keys keeps contexts in first-seen order so that iteration and seeded
	// random choices are reproducible.
	keys []string
	// starts indexes context keys by their first token.
	starts map[string][]string
	total  int
}

// Order returns the window width the table was built with.
func (t *Table) Order() int {
	return t.order
}

// ContextSize returns the number of tokens in each of the table's contexts.
func (t *Table) ContextSize() int {
	return t.order - 1
}

// Len returns the number of distinct contexts.
func (t *Table) Len() int {
	return len(t.keys)
}

// TotalObservations returns the number of recorded transitions, counting
// duplicates.
func (t *Table) TotalObservations() int {
	return t.total
}

// Contexts returns every context in first-seen order.
func (t *Table) Contexts() []Context {
	out := make([]Context, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, contextFromKey(k))
	}
	return out
}

// Continuations returns a copy of the multiset recorded for ctx, in
// insertion order, or nil if the context was never observed.
func (t *Table) Continuations(ctx Context) []string {
	next, ok := t.entries[ctx.Key()]
	if !ok {
		return nil
	}
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// Has reports whether ctx has at least one observed continuation.
func (t *Table) Has(ctx Context) bool {
	return len(t.entries[ctx.Key()]) > 0
}

// lookup returns the stored multiset without copying. Callers must not
// modify it.
func (t *Table) lookup(ctx Context) []string {
	return t.entries[ctx.Key()]
}

// DistinctFirstTokens returns the sorted set of tokens that start at least
// one context. It is empty for an empty table.
func (t *Table) DistinctFirstTokens() []string {
	out := make([]string, 0, len(t.starts))
	for tok := range t.starts {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// ContinuationCandidates collapses the multiset for ctx into distinct tokens
// and their counts. Unseen contexts yield an empty map.
func (t *Table) ContinuationCandidates(ctx Context) map[string]int {
	next := t.entries[ctx.Key()]
	counts := make(map[string]int, len(next))
	for _, tok := range next {
		counts[tok]++
	}
	return counts
}

// Candidates returns the distinct continuations of ctx weighted by how often
// each was observed, in order of first occurrence. Unseen contexts yield nil.
func (t *Table) Candidates(ctx Context) []Candidate {
	next := t.entries[ctx.Key()]
	if len(next) == 0 {
		return nil
	}
	return collapse(next)
}

// ContextsWithPrefix returns up to limit contexts whose leading tokens equal
// prefix, in first-seen order. A limit of zero or less returns all matches.
func (t *Table) ContextsWithPrefix(prefix Context, limit int) []Context {
	if len(prefix) == 0 || len(prefix) > t.ContextSize() {
		return nil
	}
	var out []Context
	for _, key := range t.starts[prefix[0]] {
		ctx := contextFromKey(key)
		if !ctx[:len(prefix)].Equal(prefix) {
			continue
		}
		out = append(out, ctx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// TableBuilder accumulates observations for a single order. It is the only
// way to construct a Table; the builder must not be used after Table.
type TableBuilder struct {
	t *Table
}

// NewTableBuilder returns a builder for an order-n table.
func NewTableBuilder(order int) (*TableBuilder, error) {
	if order < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, order)
	}
	return &TableBuilder{t: &Table{
		order:   order,
		entries: make(map[string][]string),
		starts:  make(map[string][]string),
	}}, nil
}

// Observe records next as a continuation of ctx.
func (b *TableBuilder) Observe(ctx Context, next string) error {
	return b.ObserveN(ctx, next, 1)
}

// ObserveN records next as a continuation of ctx n times.
func (b *TableBuilder) ObserveN(ctx Context, next string, n int) error {
	if len(ctx) != b.t.ContextSize() {
		return fmt.Errorf("%w: want %d tokens, got %d", ErrContextSizeMismatch, b.t.ContextSize(), len(ctx))
	}
	if n <= 0 {
		return nil
	}
	key := ctx.Key()
	existing, ok := b.t.entries[key]
	if !ok {
		b.t.keys = append(b.t.keys, key)
		b.t.starts[ctx[0]] = append(b.t.starts[ctx[0]], key)
	}
	for i := 0; i < n; i++ {
		existing = append(existing, next)
	}
	b.t.entries[key] = existing
	b.t.total += n
	return nil
}

// Table finalizes and returns the table.
func (b *TableBuilder) Table() *Table {
	t := b.t
	b.t = nil
	return t
}
