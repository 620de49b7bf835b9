package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/CTAG07/lerolero/pkg/ngram"
)

// ModelInfo holds the metadata of a stored model: its id, its name, the
// highest order it was built with and the size of its training corpus.
type ModelInfo struct {
	Id         int    `json:"id"`
	Name       string `json:"name"`
	MaxOrder   int    `json:"max_order"`
	TokenCount int    `json:"token_count"`
}

// ExportedModel is the serializable representation of a stored model, used
// for JSON-based import and export.
type ExportedModel struct {
	Name        string               `json:"name"`
	MaxOrder    int                  `json:"max_order"`
	TokenCount  int                  `json:"token_count"`
	Vocabulary  map[string]int       `json:"vocabulary"` // token_text -> token_id
	Contexts    map[string]int       `json:"contexts"`   // context_text -> context_id
	Transitions []ExportedTransition `json:"transitions"`
}

// ExportedTransition is a single context -> token count within an
// ExportedModel.
type ExportedTransition struct {
	Order       int `json:"order"`
	ContextID   int `json:"context_id"`
	NextTokenID int `json:"next_token_id"`
	Frequency   int `json:"frequency"`
	FirstSeen   int `json:"first_seen"`
}

// GetModelInfos retrieves metadata for all models in the database, keyed by
// model name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.MaxOrder, &model.TokenCount); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata of a single model. It returns
// sql.ErrNoRows when no model has that name.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	model := ModelInfo{Name: modelName}
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&model.Id, &model.MaxOrder, &model.TokenCount)
	if err != nil {
		return ModelInfo{}, err
	}
	return model, nil
}

// CreateModel creates an empty model entry and returns it with its id set.
// Names are unique; creating a duplicate fails.
func (s *Store) CreateModel(ctx context.Context, model ModelInfo) (ModelInfo, error) {
	if strings.TrimSpace(model.Name) == "" {
		return ModelInfo{}, errors.New("model name is required")
	}
	if model.MaxOrder < 2 {
		return ModelInfo{}, fmt.Errorf("%w: max order %d", ngram.ErrInvalidOrder, model.MaxOrder)
	}
	res, err := s.stmtAddModel.ExecContext(ctx, model.Name, model.MaxOrder)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not create model '%s': %w", model.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ModelInfo{}, err
	}
	model.Id = int(id)
	model.TokenCount = 0

	s.logger.InfoContext(ctx, "Model created",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("max_order", model.MaxOrder),
	)
	return model, nil
}

// RemoveModel deletes a model and all of its transitions. Shared vocabulary
// and contexts stay until Compact is run.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM ngram_transitions WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", model.Id, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM ngram_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)

	return tx.Commit()
}

// ExportModel serializes a model into JSON and writes it to w.
func (s *Store) ExportModel(ctx context.Context, model ModelInfo, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT model_order, context_id, next_token_id, frequency, first_seen FROM ngram_transitions WHERE model_id = ? ORDER BY model_order, first_seen",
		model.Id)
	if err != nil {
		return fmt.Errorf("could not query transitions for export: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	transitions := make([]ExportedTransition, 0)
	contextIDs := make(map[int]struct{})
	tokenIDs := make(map[int]struct{})

	for rows.Next() {
		var tr ExportedTransition
		if err := rows.Scan(&tr.Order, &tr.ContextID, &tr.NextTokenID, &tr.Frequency, &tr.FirstSeen); err != nil {
			return err
		}
		transitions = append(transitions, tr)
		contextIDs[tr.ContextID] = struct{}{}
		tokenIDs[tr.NextTokenID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	contextTextToID, err := s.lookupTexts(ctx, "SELECT context_id, context_text FROM ngram_contexts WHERE context_id IN (%s)", contextIDs)
	if err != nil {
		return fmt.Errorf("could not load contexts for export: %w", err)
	}
	for text := range contextTextToID {
		ids, err := parseContextText(text)
		if err != nil {
			return err
		}
		for _, id := range ids {
			tokenIDs[id] = struct{}{}
		}
	}

	tokenTextToID, err := s.lookupTexts(ctx, "SELECT token_id, token_text FROM ngram_vocabulary WHERE token_id IN (%s)", tokenIDs)
	if err != nil {
		return fmt.Errorf("could not load vocabulary for export: %w", err)
	}

	exported := ExportedModel{
		Name:        model.Name,
		MaxOrder:    model.MaxOrder,
		TokenCount:  model.TokenCount,
		Vocabulary:  tokenTextToID,
		Contexts:    contextTextToID,
		Transitions: transitions,
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("vocab_items_exported", len(tokenTextToID)),
		slog.Int("contexts_exported", len(contextTextToID)),
		slog.Int("transitions_exported", len(transitions)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ImportModel reads a model exported by ExportModel and merges it into the
// database. An existing model with the same name keeps its id; counts are
// added, its max order grows if needed and first-seen positions keep the
// earliest value. Ids are remapped onto this database's vocabulary and
// contexts. The whole import runs in one transaction.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) (ModelInfo, error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to decode json model: %w", err)
	}
	if strings.TrimSpace(imported.Name) == "" {
		return ModelInfo{}, errors.New("imported model has no name")
	}
	if imported.MaxOrder < 2 {
		return ModelInfo{}, fmt.Errorf("%w: imported max order %d", ngram.ErrInvalidOrder, imported.MaxOrder)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int
	err = tx.QueryRowContext(ctx, "SELECT model_id FROM ngram_models WHERE model_name = ?", imported.Name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := tx.ExecContext(ctx, "INSERT INTO ngram_models (model_name, max_order, token_count) VALUES (?, ?, ?)",
			imported.Name, imported.MaxOrder, imported.TokenCount)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert new model '%s': %w", imported.Name, err)
		}
		newID, _ := res.LastInsertId()
		modelID = int(newID)
	} else if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", imported.Name, err)
	} else {
		_, err = tx.ExecContext(ctx, "UPDATE ngram_models SET max_order = MAX(max_order, ?), token_count = token_count + ? WHERE model_id = ?",
			imported.MaxOrder, imported.TokenCount, modelID)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to update model '%s': %w", imported.Name, err)
		}
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtGetOrInsertContext := tx.StmtContext(ctx, s.stmtGetOrInsertContext)

	vocabIDMap := make(map[int]int) // old_id -> new_id
	for text, oldID := range imported.Vocabulary {
		var newID int
		if err := stmtInsertVocab.QueryRowContext(ctx, text).Scan(&newID); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to get/insert vocab '%s': %w", text, err)
		}
		vocabIDMap[oldID] = newID
	}

	// Contexts are lists of token ids, so they are rebuilt with the new ids.
	contextIDMap := make(map[int]int) // old_id -> new_id
	contextSizes := make(map[int]int) // old_id -> tokens in the context
	for oldText, oldID := range imported.Contexts {
		oldTokenIDs, err := parseContextText(oldText)
		if err != nil {
			return ModelInfo{}, err
		}
		newTokenIDs := make([]int, len(oldTokenIDs))
		for i, oldTokenID := range oldTokenIDs {
			newTokenID, ok := vocabIDMap[oldTokenID]
			if !ok {
				return ModelInfo{}, fmt.Errorf("import consistency error: token id %d in context not found in vocabulary", oldTokenID)
			}
			newTokenIDs[i] = newTokenID
		}
		newText := contextText(newTokenIDs)

		var newID int
		if err := stmtGetOrInsertContext.QueryRowContext(ctx, newText).Scan(&newID); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to get/insert rebuilt context '%s': %w", newText, err)
		}
		contextIDMap[oldID] = newID
		contextSizes[oldID] = len(oldTokenIDs)
	}

	stmtInsertTransition, err := tx.PrepareContext(ctx, `
		INSERT INTO ngram_transitions (model_id, model_order, context_id, next_token_id, frequency, first_seen) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id, model_order, context_id, next_token_id)
		DO UPDATE SET frequency = frequency + excluded.frequency, first_seen = MIN(first_seen, excluded.first_seen);
	`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare transition insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertTransition)

	for _, tr := range imported.Transitions {
		if tr.Order < 2 || tr.Order > imported.MaxOrder {
			return ModelInfo{}, fmt.Errorf("%w: transition of order %d in a model of max order %d",
				ngram.ErrInvalidOrder, tr.Order, imported.MaxOrder)
		}
		newContextID, ok := contextIDMap[tr.ContextID]
		if !ok {
			return ModelInfo{}, fmt.Errorf("import consistency error: context id %d not found in context map", tr.ContextID)
		}
		if contextSizes[tr.ContextID] != tr.Order-1 {
			return ModelInfo{}, fmt.Errorf("%w: context %d of an order %d transition has %d tokens",
				ngram.ErrContextSizeMismatch, tr.ContextID, tr.Order, contextSizes[tr.ContextID])
		}
		newNextTokenID, ok := vocabIDMap[tr.NextTokenID]
		if !ok {
			return ModelInfo{}, fmt.Errorf("import consistency error: token id %d not found in vocabulary", tr.NextTokenID)
		}
		if _, err = stmtInsertTransition.ExecContext(ctx, modelID, tr.Order, newContextID, newNextTokenID, tr.Frequency, tr.FirstSeen); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert transition (%d -> %d): %w", newContextID, newNextTokenID, err)
		}
	}

	var model ModelInfo
	err = tx.QueryRowContext(ctx, "SELECT model_id, model_name, max_order, token_count FROM ngram_models WHERE model_id = ?", modelID).
		Scan(&model.Id, &model.Name, &model.MaxOrder, &model.TokenCount)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to read back imported model: %w", err)
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", imported.Name),
		slog.Int("target_model_id", modelID),
		slog.Int("vocab_items_merged", len(imported.Vocabulary)),
		slog.Int("contexts_merged", len(imported.Contexts)),
		slog.Int("transitions_merged", len(imported.Transitions)),
	)

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, err
	}
	return model, nil
}

// lookupTexts runs query, which must select (id, text) with an IN (%s)
// clause, over ids in batches and returns text -> id.
func (s *Store) lookupTexts(ctx context.Context, query string, ids map[int]struct{}) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	all := make([]interface{}, 0, len(ids))
	for id := range ids {
		all = append(all, id)
	}

	for i := 0; i < len(all); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(all))
		batch := all[i:end]
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(query, "?"+strings.Repeat(",?", len(batch)-1)), batch...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int
			var text string
			if err := rows.Scan(&id, &text); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[text] = id
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// contextText renders token ids the way they are stored in ngram_contexts.
func contextText(ids []int) string {
	var buf []byte
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendInt(buf, int64(id), 10)
	}
	return string(buf)
}

// parseContextText reverses contextText.
func parseContextText(text string) ([]int, error) {
	parts := strings.Split(text, " ")
	ids := make([]int, len(parts))
	for i, part := range parts {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("malformed context '%s': %w", text, err)
		}
		ids[i] = id
	}
	return ids, nil
}
