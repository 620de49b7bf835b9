package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// deleteBatchSize keeps IN (...) lists under SQLite's variable limit.
const deleteBatchSize = 500

// PruneModel removes every transition of model observed minFreq times or
// fewer across all orders. Contexts left without transitions simply stop
// appearing in the model.
func (s *Store) PruneModel(ctx context.Context, model ModelInfo, minFreq int) (int64, error) {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("transitions_removed", rowsAffected),
	)
	return rowsAffected, nil
}

// CompactResult reports what Compact removed.
type CompactResult struct {
	ContextsRemoved int `json:"contexts_removed"`
	TokensRemoved   int `json:"tokens_removed"`
}

// Compact deletes contexts and vocabulary entries no longer referenced by
// any model, which accumulate after RemoveModel, PruneModel and retraining.
func (s *Store) Compact(ctx context.Context) (CompactResult, error) {
	var result CompactResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("could not begin transaction for compaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	usedContexts, err := collectIDs(ctx, tx, `SELECT DISTINCT context_id FROM ngram_transitions`)
	if err != nil {
		return result, fmt.Errorf("failed to query used contexts: %w", err)
	}
	usedTokens, err := collectIDs(ctx, tx, `SELECT DISTINCT next_token_id FROM ngram_transitions`)
	if err != nil {
		return result, fmt.Errorf("failed to query used tokens: %w", err)
	}

	// Context texts are lists of token ids, so they are checked in Go.
	cRows, err := tx.QueryContext(ctx, `SELECT context_id, context_text FROM ngram_contexts`)
	if err != nil {
		return result, fmt.Errorf("failed to query contexts: %w", err)
	}
	var staleContexts []int
	for cRows.Next() {
		var id int
		var text string
		if err := cRows.Scan(&id, &text); err != nil {
			_ = cRows.Close()
			return result, fmt.Errorf("failed to scan context row: %w", err)
		}
		if _, ok := usedContexts[id]; !ok {
			staleContexts = append(staleContexts, id)
			continue
		}
		ids, err := parseContextText(text)
		if err != nil {
			_ = cRows.Close()
			return result, err
		}
		for _, tokenID := range ids {
			usedTokens[tokenID] = struct{}{}
		}
	}
	_ = cRows.Close()
	if err := cRows.Err(); err != nil {
		return result, fmt.Errorf("error after iterating context rows: %w", err)
	}

	allTokens, err := collectIDs(ctx, tx, `SELECT token_id FROM ngram_vocabulary`)
	if err != nil {
		return result, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	var staleTokens []int
	for id := range allTokens {
		if _, ok := usedTokens[id]; !ok {
			staleTokens = append(staleTokens, id)
		}
	}

	if err := batchDelete(ctx, tx, "ngram_contexts", "context_id", intSliceToInterface(staleContexts)); err != nil {
		return result, fmt.Errorf("failed to remove stale contexts: %w", err)
	}
	if err := batchDelete(ctx, tx, "ngram_vocabulary", "token_id", intSliceToInterface(staleTokens)); err != nil {
		return result, fmt.Errorf("failed to remove stale tokens: %w", err)
	}

	result.ContextsRemoved = len(staleContexts)
	result.TokensRemoved = len(staleTokens)

	s.logger.InfoContext(ctx, "Database compacted",
		slog.Int("contexts_removed", result.ContextsRemoved),
		slog.Int("tokens_removed", result.TokensRemoved),
	)

	return result, tx.Commit()
}

func collectIDs(ctx context.Context, tx *sql.Tx, query string) (map[int]struct{}, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	ids := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// batchDelete deletes rows whose column is in ids, splitting large lists
// into batches.
func batchDelete(ctx context.Context, tx *sql.Tx, table, column string, ids []interface{}) error {
	for i := 0; i < len(ids); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(ids))
		batch := ids[i:end]

		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (?%s)", table, column, strings.Repeat(",?", len(batch)-1))
		if _, err := tx.ExecContext(ctx, query, batch...); err != nil {
			return err
		}
	}
	return nil
}

// intSliceToInterface is a helper to convert []int to []interface{} for SQL args.
func intSliceToInterface(s []int) []interface{} {
	if s == nil {
		return nil
	}
	i := make([]interface{}, len(s))
	for j, v := range s {
		i[j] = v
	}
	return i
}
