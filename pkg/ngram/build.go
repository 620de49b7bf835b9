package ngram

import (
	"fmt"
	"sort"
	"sync"
)

// Model is a set of independently built tables keyed by order, covering a
// contiguous range starting at 2.
type Model map[int]*Table

// Build slides a window of width order across tokens and records, for every
// window, the last token as a continuation of the preceding order-1 tokens.
// A corpus shorter than order yields an empty table. tokens is not modified.
func Build(tokens []string, order int) (*Table, error) {
	b, err := NewTableBuilder(order)
	if err != nil {
		return nil, err
	}
	for i := 0; i+order <= len(tokens); i++ {
		// The context size always matches here, so the error is impossible.
		_ = b.Observe(Context(tokens[i:i+order-1]), tokens[i+order-1])
	}
	return b.Table(), nil
}

// BuildModel builds one table per order in [2, maxOrder]. The tables share
// nothing, so each order is built on its own goroutine.
func BuildModel(tokens []string, maxOrder int) (Model, error) {
	if maxOrder < 2 {
		return nil, fmt.Errorf("%w: max order %d", ErrInvalidOrder, maxOrder)
	}

	tables := make([]*Table, maxOrder+1)
	var wg sync.WaitGroup
	for order := 2; order <= maxOrder; order++ {
		wg.Add(1)
		go func(order int) {
			defer wg.Done()
			// order >= 2 is guaranteed by the loop bounds.
			tables[order], _ = Build(tokens, order)
		}(order)
	}
	wg.Wait()

	m := make(Model, maxOrder-1)
	for order := 2; order <= maxOrder; order++ {
		m[order] = tables[order]
	}
	return m, nil
}

// Orders returns the orders present in the model, ascending.
func (m Model) Orders() []int {
	orders := make([]int, 0, len(m))
	for order := range m {
		orders = append(orders, order)
	}
	sort.Ints(orders)
	return orders
}

// MaxOrder returns the highest order in the model, or 0 if it is empty.
func (m Model) MaxOrder() int {
	highest := 0
	for order := range m {
		if order > highest {
			highest = order
		}
	}
	return highest
}

// Empty reports whether every table in the model is empty.
func (m Model) Empty() bool {
	for _, t := range m {
		if t != nil && t.Len() > 0 {
			return false
		}
	}
	return true
}
