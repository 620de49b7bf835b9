package ngram

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
)

// Generator walks tables to produce token sequences. It owns the random
// source; a single Generator may be shared between goroutines.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *slog.Logger
}

// NewGenerator returns a Generator drawing from src. A nil src uses a
// randomly seeded PCG source. Pass a fixed source such as rand.NewPCG(1, 2)
// for reproducible output.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{
		rng:    rand.New(src),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Generator. By default, all logs are
// discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// generateOptions configures single-order generation.
type generateOptions struct {
	weighted    bool
	temperature float64
	topK        int
}

// GenerateOption configures a call to Generate.
type GenerateOption func(*generateOptions)

// WithWeighted switches selection from a uniform draw over every recorded
// occurrence to a draw over distinct tokens weighted by their counts. Both
// produce the same distribution at temperature 1; the weighted mode is what
// temperature and top-k act on.
func WithWeighted(weighted bool) GenerateOption {
	return func(o *generateOptions) { o.weighted = weighted }
}

// WithTemperature reshapes the weighted distribution. 1.0 keeps raw counts,
// values above 1 flatten it, values below 1 sharpen it, and 0 or less always
// picks the most frequent continuation. NaN leaves the temperature at 1.0.
// It implies WithWeighted(true).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) {
		if !math.IsNaN(t) {
			o.temperature = t
		}
		o.weighted = true
	}
}

// WithTopK restricts each draw to the k most frequent continuations. 0
// disables the filter. It implies WithWeighted(true).
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) {
		o.topK = k
		o.weighted = true
	}
}

// Generate emits seed followed by tokens drawn from t until length tokens
// exist or the current context has no continuation. Running out of material
// is not an error; the result is simply shorter. A length below len(seed)
// returns the seed unchanged.
func (g *Generator) Generate(t *Table, seed Context, length int, opts ...GenerateOption) ([]string, error) {
	if len(seed) != t.ContextSize() {
		return nil, fmt.Errorf("%w: order %d table needs %d seed tokens, got %d",
			ErrContextSizeMismatch, t.Order(), t.ContextSize(), len(seed))
	}

	options := &generateOptions{temperature: 1.0}
	for _, opt := range opts {
		opt(options)
	}

	out := make([]string, len(seed), max(length, len(seed)))
	copy(out, seed)

	g.mu.Lock()
	defer g.mu.Unlock()

	for len(out) < length {
		window := Context(out[len(out)-len(seed):])
		next := t.lookup(window)
		if len(next) == 0 {
			g.logger.Debug("Generation terminated due to dead-end",
				slog.Int("order", t.Order()),
				slog.String("last_context", window.String()),
				slog.Int("generated_length", len(out)),
			)
			break
		}
		out = append(out, g.choose(next, options))
	}
	return out, nil
}

// choose picks one continuation according to options. The caller holds g.mu.
func (g *Generator) choose(next []string, options *generateOptions) string {
	if !options.weighted {
		return sample(g.rng, occurrences(next))
	}
	return sample(g.rng, shape(collapse(next), options.temperature, options.topK))
}

// ResolveSeed picks, uniformly at random, one of the contexts of t whose
// first token is token. It fails with ErrSeedNotFound when no context starts
// with token; Suggest lists alternatives for that case.
func (g *Generator) ResolveSeed(t *Table, token string) (Context, error) {
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: order %d table", ErrEmptyModel, t.Order())
	}
	keys := t.starts[token]
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSeedNotFound, token)
	}
	g.mu.Lock()
	key := keys[g.rng.IntN(len(keys))]
	g.mu.Unlock()
	return contextFromKey(key), nil
}

// RandomSeed picks a context the way a random window start in the corpus
// would: each context is weighted by how often it was observed.
func (g *Generator) RandomSeed(t *Table) (Context, error) {
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: order %d table", ErrEmptyModel, t.Order())
	}
	candidates := make([]Candidate, len(t.keys))
	for i, key := range t.keys {
		candidates[i] = Candidate{Token: key, Weight: float64(len(t.entries[key]))}
	}
	g.mu.Lock()
	key := sample(g.rng, candidates)
	g.mu.Unlock()
	return contextFromKey(key), nil
}

// Suggest lists up to limit first tokens of t that resemble token: those
// starting with it come first, then those merely containing it, each group
// in lexical order. A limit of zero or less returns every match.
func Suggest(t *Table, token string, limit int) []string {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	var prefixed, contained []string
	for _, first := range t.DistinctFirstTokens() {
		switch {
		case first == token:
			continue
		case strings.HasPrefix(first, token):
			prefixed = append(prefixed, first)
		case strings.Contains(first, token):
			contained = append(contained, first)
		}
	}
	out := append(prefixed, contained...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
