package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/CTAG07/lerolero/pkg/ngram"
	"github.com/CTAG07/lerolero/pkg/store"
)

// loadedModel is a model's metadata together with its tables.
type loadedModel struct {
	info  store.ModelInfo
	model ngram.Model
}

// Registry keeps the tables of stored models in memory. A model is loaded
// from the store the first time it is asked for and stays cached until it is
// invalidated.
type Registry struct {
	store  *store.Store
	logger *slog.Logger

	mu     sync.Mutex
	models map[string]*loadedModel
}

func NewRegistry(st *store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:  st,
		logger: logger,
		models: make(map[string]*loadedModel),
	}
}

// Get returns the named model, loading it on a cache miss. A missing model
// yields sql.ErrNoRows from the store.
func (r *Registry) Get(ctx context.Context, name string) (store.ModelInfo, ngram.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.models[name]; ok {
		return cached.info, cached.model, nil
	}

	info, err := r.store.GetModelInfo(ctx, name)
	if err != nil {
		return store.ModelInfo{}, nil, err
	}
	m, err := r.store.LoadModel(ctx, info)
	if err != nil {
		return store.ModelInfo{}, nil, err
	}

	r.models[name] = &loadedModel{info: info, model: m}
	r.logger.Debug("Model loaded into registry",
		slog.String("model", name),
		slog.Int("orders", len(m)),
		slog.Int("token_count", info.TokenCount),
	)
	return info, m, nil
}

// Put caches m for info directly, as after training from tokens that are
// already in memory.
func (r *Registry) Put(info store.ModelInfo, m ngram.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[info.Name] = &loadedModel{info: info, model: m}
}

// Invalidate drops the cached copy of the named model, if any.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, name)
}

// Loaded returns the number of cached models.
func (r *Registry) Loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.models)
}
