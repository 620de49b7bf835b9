/*
Package store persists n-gram models in a SQLite database.

Tokens live once in a shared vocabulary and contexts are stored as lists of
token ids, so models trained on overlapping corpora share storage. Each
model keeps one row per (order, context, next token) with its frequency and
the position at which it was first observed, which is enough to rebuild an
ngram.Table that samples exactly like the one that was saved.

The package is driver agnostic: callers open the *sql.DB with whichever
SQLite driver they link in and call SetupSchema once before New.

	db, _ := sql.Open("sqlite", "lerolero.db")
	_ = store.SetupSchema(db)
	s, _ := store.New(db)
	defer s.Close()

	model, _ := s.CreateModel(ctx, store.ModelInfo{Name: "alice", MaxOrder: 4})
	_ = s.Train(ctx, model, tokens)
	m, _ := s.LoadModel(ctx, model)
*/
package store
