package ngram

import "errors"

var (
	// ErrInvalidOrder is returned when an order below 2 is requested.
	ErrInvalidOrder = errors.New("ngram: order must be at least 2")
	// ErrContextSizeMismatch is returned when a seed context does not have
	// exactly order-1 tokens.
	ErrContextSizeMismatch = errors.New("ngram: context size does not match table order")
	// ErrSeedNotFound is returned when a seed token is not the first token of
	// any context in a table. Callers usually follow up with Suggest.
	ErrSeedNotFound = errors.New("ngram: seed token not found")
	// ErrEmptyModel is returned by operations that need at least one context
	// and were given an empty table or model.
	ErrEmptyModel = errors.New("ngram: model has no entries")
)
