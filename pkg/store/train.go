package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/CTAG07/lerolero/pkg/ngram"
)

// transitionBatchSize determines how many transitions are buffered in memory
// before being written in one batch.
const transitionBatchSize = 1000

// transition is a struct used for batching transition inserts.
type transition struct {
	order       int
	contextID   int
	nextTokenID int
	frequency   int
	firstSeen   int
}

// Train builds every order of model from tokens and saves the result,
// replacing whatever the model held before.
func (s *Store) Train(ctx context.Context, model ModelInfo, tokens []string) error {
	m, err := ngram.BuildModel(tokens, model.MaxOrder)
	if err != nil {
		return err
	}
	return s.SaveModel(ctx, model, m, len(tokens))
}

// SaveModel replaces the stored transitions of model with the tables of m
// for orders 2 through model.MaxOrder, and records tokenCount as the size of
// the corpus. Each table keeps its first-seen order through the first_seen
// column. The whole save runs in a single transaction.
func (s *Store) SaveModel(ctx context.Context, model ModelInfo, m ngram.Model, tokenCount int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// All transaction-specific statements will also be closed with this or the .Commit()
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM ngram_transitions WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to clear transitions of model %d: %w", model.Id, err)
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtGetOrInsertContext := tx.StmtContext(ctx, s.stmtGetOrInsertContext)
	stmtInsertTransition, err := tx.PrepareContext(ctx, `INSERT INTO ngram_transitions (model_id, model_order, context_id, next_token_id, frequency, first_seen) VALUES (?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch transition insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertTransition)

	batch := make([]transition, 0, transitionBatchSize)
	commitBatch := func() error {
		for _, tr := range batch {
			if _, err := stmtInsertTransition.ExecContext(ctx, model.Id, tr.order, tr.contextID, tr.nextTokenID, tr.frequency, tr.firstSeen); err != nil {
				return fmt.Errorf("failed during batch insert of transition (%d -> %d): %w", tr.contextID, tr.nextTokenID, err)
			}
		}
		batch = batch[:0]
		return nil
	}

	vocabCache := make(map[string]int)
	tokenID := func(text string) (int, error) {
		if id, ok := vocabCache[text]; ok {
			return id, nil
		}
		var id int
		if err := stmtInsertVocab.QueryRowContext(ctx, text).Scan(&id); err != nil {
			return 0, fmt.Errorf("sql insert vocabulary error for token '%s': %w", text, err)
		}
		vocabCache[text] = id
		return id, nil
	}

	contextCache := make(map[string]int)
	var saved int
	ids := make([]int, 0, model.MaxOrder)

	for order := 2; order <= model.MaxOrder; order++ {
		table := m[order]
		if table == nil {
			continue
		}
		seq := 0
		for _, c := range table.Contexts() {
			ids = ids[:0]
			for _, tok := range c {
				id, err := tokenID(tok)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			text := contextText(ids)

			contextID, ok := contextCache[text]
			if !ok {
				if err := stmtGetOrInsertContext.QueryRowContext(ctx, text).Scan(&contextID); err != nil {
					return fmt.Errorf("failed to get or insert context '%s': %w", text, err)
				}
				contextCache[text] = contextID
			}

			for _, cand := range table.Candidates(c) {
				nextID, err := tokenID(cand.Token)
				if err != nil {
					return err
				}
				batch = append(batch, transition{
					order:       order,
					contextID:   contextID,
					nextTokenID: nextID,
					frequency:   int(cand.Weight),
					firstSeen:   seq,
				})
				seq++
				saved++

				if len(batch) >= transitionBatchSize {
					if err := commitBatch(); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := commitBatch(); err != nil {
		return err
	}

	if _, err = tx.StmtContext(ctx, s.stmtSetTokenCount).ExecContext(ctx, tokenCount, model.Id); err != nil {
		return fmt.Errorf("failed to record token count of model %d: %w", model.Id, err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("token_count", tokenCount),
		slog.Int("transitions_saved", saved),
	)

	return tx.Commit()
}
