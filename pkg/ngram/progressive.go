package ngram

import (
	"fmt"
	"log/slog"
)

// DefaultRetryCap bounds consecutive failed attempts within one order of
// progressive generation. A miss that the fallback cannot recover ends the
// order at once and a success resets the count, so the cap is an upper bound
// that a run never reaches with the fallbacks defined here.
const DefaultRetryCap = 100

// Fallback selects what progressive generation does when the current
// context has no continuation in the current order's table.
type Fallback int

const (
	// FallbackLowerOrder drops the oldest context token and looks the shorter
	// context up in the table one order below, whose keys have that length.
	FallbackLowerOrder Fallback = iota
	// FallbackSameTable probes the shorter context in the current table.
	// Tables are fixed-arity, so this probe never matches and a miss simply
	// ends the current order.
	FallbackSameTable
	// FallbackNone ends the current order on the first miss.
	FallbackNone
)

func (f Fallback) String() string {
	switch f {
	case FallbackLowerOrder:
		return "lower-order"
	case FallbackSameTable:
		return "same-table"
	case FallbackNone:
		return "none"
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

// ParseFallback maps the names returned by Fallback.String back to values.
func ParseFallback(name string) (Fallback, error) {
	switch name {
	case "", "lower-order":
		return FallbackLowerOrder, nil
	case "same-table":
		return FallbackSameTable, nil
	case "none":
		return FallbackNone, nil
	}
	return 0, fmt.Errorf("ngram: unknown fallback %q", name)
}

type progressiveOptions struct {
	retryCap    int
	orderBudget int
	fallback    Fallback
}

// ProgressiveOption configures a call to GenerateProgressive.
type ProgressiveOption func(*progressiveOptions)

// WithRetryCap sets how many consecutive failed attempts an order gets
// before it is abandoned. Values below 1 fall back to DefaultRetryCap.
func WithRetryCap(n int) ProgressiveOption {
	return func(o *progressiveOptions) {
		if n > 0 {
			o.retryCap = n
		}
	}
}

// WithOrderBudget caps how many tokens each order below maxOrder may emit
// before the generator escalates to the next one. The highest order is never
// capped. 0 means no cap: an order keeps going until it runs out of material
// or the target length is reached.
func WithOrderBudget(n int) ProgressiveOption {
	return func(o *progressiveOptions) { o.orderBudget = n }
}

// WithFallback selects the miss-recovery policy.
func WithFallback(f Fallback) ProgressiveOption {
	return func(o *progressiveOptions) { o.fallback = f }
}

// GenerateProgressive grows a sequence from a single seed token by climbing
// the model's orders from 2 to maxOrder. Each order extends the sequence with
// its own table until it runs out of material, then hands over to the next
// order, whose longer context becomes usable as the sequence grows. Orders
// missing from the model are skipped. The result never exceeds length
// tokens and may be as short as the seed alone.
func (g *Generator) GenerateProgressive(m Model, seedToken string, maxOrder, length int, opts ...ProgressiveOption) ([]string, error) {
	if maxOrder < 2 {
		return nil, fmt.Errorf("%w: max order %d", ErrInvalidOrder, maxOrder)
	}

	options := &progressiveOptions{retryCap: DefaultRetryCap, fallback: FallbackLowerOrder}
	for _, opt := range opts {
		opt(options)
	}

	result := []string{seedToken}

	g.mu.Lock()
	defer g.mu.Unlock()

	for order := 2; order <= maxOrder; order++ {
		if len(result) >= length {
			break
		}
		table := m[order]
		if table == nil {
			continue
		}
		contextSize := order - 1
		emitted, attempts := 0, 0

		for len(result) < length && attempts < options.retryCap {
			if options.orderBudget > 0 && order < maxOrder && emitted >= options.orderBudget {
				break
			}
			attempts++
			if len(result) < contextSize {
				break
			}

			window := Context(result[len(result)-contextSize:])
			if next := table.lookup(window); len(next) > 0 {
				result = append(result, sample(g.rng, occurrences(next)))
				emitted++
				attempts = 0
				continue
			}

			next := g.fallback(m, table, window, options.fallback)
			if len(next) == 0 {
				break
			}
			result = append(result, sample(g.rng, occurrences(next)))
			emitted++
			attempts = 0
		}

		g.logger.Debug("Progressive order finished",
			slog.Int("order", order),
			slog.Int("emitted", emitted),
			slog.Int("length", len(result)),
		)
	}

	if length < 0 {
		length = 0
	}
	if len(result) > length {
		result = result[:length]
	}
	return result, nil
}

// fallback looks up the window minus its oldest token according to policy.
func (g *Generator) fallback(m Model, table *Table, window Context, policy Fallback) []string {
	if len(window) <= 1 {
		return nil
	}
	shorter := window[1:]
	switch policy {
	case FallbackLowerOrder:
		if lower := m[table.Order()-1]; lower != nil {
			return lower.lookup(shorter)
		}
	case FallbackSameTable:
		return table.lookup(shorter)
	}
	return nil
}
