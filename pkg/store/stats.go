package store

import (
	"context"
	"database/sql"
	"sort"
)

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models      []ModelInfo        `json:"models"`
	Stats       map[int]ModelStats `json:"stats"`        // model id -> stats
	VocabSize   int                `json:"vocab_size"`   // distinct tokens across all models
	ContextSize int                `json:"context_size"` // distinct contexts across all models
}

// ModelStats holds per-order statistics for a single model.
type ModelStats struct {
	Orders []OrderStats `json:"orders"`
}

// OrderStats describes the stored table of one order.
type OrderStats struct {
	Order        int `json:"order"`
	Contexts     int `json:"contexts"`     // distinct contexts
	Transitions  int `json:"transitions"`  // distinct context -> token links
	Observations int `json:"observations"` // sum of frequencies
}

// GetModelStats returns per-order statistics for model. Orders without any
// stored transition are omitted.
func (s *Store) GetModelStats(ctx context.Context, model ModelInfo) (ModelStats, error) {
	rows, err := s.stmtOrderStats.QueryContext(ctx, model.Id)
	if err != nil {
		return ModelStats{}, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	stats := ModelStats{Orders: make([]OrderStats, 0, model.MaxOrder)}
	for rows.Next() {
		var order OrderStats
		if err := rows.Scan(&order.Order, &order.Contexts, &order.Transitions, &order.Observations); err != nil {
			return ModelStats{}, err
		}
		stats.Orders = append(stats.Orders, order)
	}
	if err := rows.Err(); err != nil {
		return ModelStats{}, err
	}
	return stats, nil
}

// GetStats returns a snapshot of statistics for the entire database,
// including global counts and per-model stats.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	if err = s.stmtGetVocabLen.QueryRowContext(ctx).Scan(&vocabLen); err != nil {
		return nil, err
	}

	var contextLen int
	if err = s.stmtGetContextLen.QueryRowContext(ctx).Scan(&contextLen); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats, len(modelInfos))
	for _, v := range modelInfos {
		models = append(models, v)
		stats, err := s.GetModelStats(ctx, v)
		if err != nil {
			return nil, err
		}
		modelStats[v.Id] = stats
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	return &DBStats{
		Models:      models,
		Stats:       modelStats,
		VocabSize:   vocabLen,
		ContextSize: contextLen,
	}, nil
}
