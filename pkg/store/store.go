package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the tables used by the Store. It should be called
// once on a new database before any other operation. It is idempotent and
// safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS ngram_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_text TEXT NOT NULL UNIQUE
);
`
		schemaContexts = `
CREATE TABLE IF NOT EXISTS ngram_contexts (
	context_id INTEGER PRIMARY KEY,
	context_text TEXT NOT NULL UNIQUE
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS ngram_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    max_order INTEGER NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS ngram_transitions (
    model_id INTEGER NOT NULL,
    model_order INTEGER NOT NULL,
    context_id INTEGER NOT NULL,
    next_token_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    first_seen INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (model_id, model_order, context_id, next_token_id)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaVocab); err != nil {
		return fmt.Errorf("could not create vocabulary schema: %w", err)
	}

	if _, err = tx.Exec(schemaContexts); err != nil {
		return fmt.Errorf("could not create contexts schema: %w", err)
	}

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaTransitions); err != nil {
		return fmt.Errorf("could not create transitions schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store persists n-gram models in a SQLite database. Tokens and contexts are
// interned in shared tables so that models trained on overlapping corpora
// share storage. It holds prepared statements for the hot paths.
type Store struct {
	db                     *sql.DB
	stmtGetModelInfo       *sql.Stmt
	stmtGetModels          *sql.Stmt
	stmtAddModel           *sql.Stmt
	stmtSetTokenCount      *sql.Stmt
	stmtPruneModel         *sql.Stmt
	stmtOrderStats         *sql.Stmt
	stmtLoadTransitions    *sql.Stmt
	stmtGetVocabLen        *sql.Stmt
	stmtGetContextLen      *sql.Stmt
	stmtInsertVocab        *sql.Stmt
	stmtGetOrInsertContext *sql.Stmt
	logger                 *slog.Logger
}

// New creates a Store on db, which must already carry the schema installed
// by SetupSchema. All statements are prepared up front.
func New(db *sql.DB) (*Store, error) {
	stmtGetModelInfo, err := db.Prepare(`SELECT model_id, max_order, token_count FROM ngram_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_id, model_name, max_order, token_count FROM ngram_models ORDER BY model_name;`)
	if err != nil {
		return nil, err
	}

	stmtAddModel, err := db.Prepare(`INSERT INTO ngram_models (model_name, max_order) VALUES (?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtSetTokenCount, err := db.Prepare(`UPDATE ngram_models SET token_count = ? WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPruneModel, err := db.Prepare(`DELETE FROM ngram_transitions WHERE model_id = ? AND frequency <= ?;`)
	if err != nil {
		return nil, err
	}

	stmtOrderStats, err := db.Prepare(`
SELECT model_order, COUNT(DISTINCT context_id), COUNT(*), COALESCE(SUM(frequency), 0)
FROM ngram_transitions WHERE model_id = ? GROUP BY model_order ORDER BY model_order;`)
	if err != nil {
		return nil, err
	}

	stmtLoadTransitions, err := db.Prepare(`
SELECT c.context_text, t.next_token_id, t.frequency
FROM ngram_transitions t JOIN ngram_contexts c ON c.context_id = t.context_id
WHERE t.model_id = ? AND t.model_order = ?
ORDER BY t.first_seen, t.context_id, t.next_token_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetVocabLen, err := db.Prepare(`SELECT COUNT(*) FROM ngram_vocabulary;`)
	if err != nil {
		return nil, err
	}

	stmtGetContextLen, err := db.Prepare(`SELECT COUNT(*) FROM ngram_contexts;`)
	if err != nil {
		return nil, err
	}

	stmtInsertVocab, err := db.Prepare(`INSERT INTO ngram_vocabulary (token_text) VALUES (?) ON CONFLICT(token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetOrInsertContext, err := db.Prepare(`INSERT INTO ngram_contexts (context_text) VALUES (?) ON CONFLICT(context_text) DO UPDATE SET context_text=excluded.context_text RETURNING context_id;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                     db,
		stmtGetModelInfo:       stmtGetModelInfo,
		stmtGetModels:          stmtGetModels,
		stmtAddModel:           stmtAddModel,
		stmtSetTokenCount:      stmtSetTokenCount,
		stmtPruneModel:         stmtPruneModel,
		stmtOrderStats:         stmtOrderStats,
		stmtLoadTransitions:    stmtLoadTransitions,
		stmtGetVocabLen:        stmtGetVocabLen,
		stmtGetContextLen:      stmtGetContextLen,
		stmtInsertVocab:        stmtInsertVocab,
		stmtGetOrInsertContext: stmtGetOrInsertContext,
		logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared statements. The database itself stays open.
func (s *Store) Close() {
	_ = s.stmtGetModelInfo.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtAddModel.Close()
	_ = s.stmtSetTokenCount.Close()
	_ = s.stmtPruneModel.Close()
	_ = s.stmtOrderStats.Close()
	_ = s.stmtLoadTransitions.Close()
	_ = s.stmtGetVocabLen.Close()
	_ = s.stmtGetContextLen.Close()
	_ = s.stmtInsertVocab.Close()
	_ = s.stmtGetOrInsertContext.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
