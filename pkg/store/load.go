package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/CTAG07/lerolero/pkg/ngram"
)

// LoadTable rebuilds the order-n table of model. Continuations come back as
// runs of equal tokens in order of first occurrence, which samples exactly
// like the interleaved multiset the table was built from.
func (s *Store) LoadTable(ctx context.Context, model ModelInfo, order int) (*ngram.Table, error) {
	vocab, err := s.vocabulary(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadTable(ctx, model, order, vocab)
}

// LoadModel rebuilds every order of model.
func (s *Store) LoadModel(ctx context.Context, model ModelInfo) (ngram.Model, error) {
	vocab, err := s.vocabulary(ctx)
	if err != nil {
		return nil, err
	}
	m := make(ngram.Model, model.MaxOrder-1)
	for order := 2; order <= model.MaxOrder; order++ {
		t, err := s.loadTable(ctx, model, order, vocab)
		if err != nil {
			return nil, err
		}
		m[order] = t
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("max_order", model.MaxOrder),
	)
	return m, nil
}

func (s *Store) loadTable(ctx context.Context, model ModelInfo, order int, vocab map[int]string) (*ngram.Table, error) {
	if order > model.MaxOrder {
		return nil, fmt.Errorf("%w: model '%s' only has orders up to %d, asked for %d",
			ngram.ErrInvalidOrder, model.Name, model.MaxOrder, order)
	}
	b, err := ngram.NewTableBuilder(order)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtLoadTransitions.QueryContext(ctx, model.Id, order)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions of order %d: %w", order, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	contexts := make(map[string]ngram.Context)
	for rows.Next() {
		var text string
		var nextID, freq int
		if err := rows.Scan(&text, &nextID, &freq); err != nil {
			return nil, err
		}

		c, ok := contexts[text]
		if !ok {
			ids, err := parseContextText(text)
			if err != nil {
				return nil, err
			}
			c = make(ngram.Context, len(ids))
			for i, id := range ids {
				if c[i], ok = vocab[id]; !ok {
					return nil, fmt.Errorf("consistency error: token id %d in context not found in vocabulary", id)
				}
			}
			contexts[text] = c
		}

		next, ok := vocab[nextID]
		if !ok {
			return nil, fmt.Errorf("consistency error: token id %d not found in vocabulary", nextID)
		}
		if err := b.ObserveN(c, next, freq); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.Table(), nil
}

// vocabulary loads the full token id -> text mapping.
func (s *Store) vocabulary(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT token_id, token_text FROM ngram_vocabulary")
	if err != nil {
		return nil, fmt.Errorf("could not load vocabulary: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	vocab := make(map[int]string)
	for rows.Next() {
		var id int
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		vocab[id] = text
	}
	return vocab, rows.Err()
}
