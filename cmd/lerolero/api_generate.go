package main

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/CTAG07/lerolero/pkg/corpus"
	"github.com/CTAG07/lerolero/pkg/ngram"
	"github.com/CTAG07/lerolero/pkg/store"
)

// GenerateResponse is returned by both generation endpoints.
type GenerateResponse struct {
	Model  string   `json:"model"`
	Order  int      `json:"order"`
	Seed   []string `json:"seed"`
	Tokens []string `json:"tokens"`
	Text   string   `json:"text"`
}

// SeedNotFoundResponse is the 404 body for a seed word that starts no
// context. Suggestions lists similar words that do.
type SeedNotFoundResponse struct {
	Error       string   `json:"error"`
	Seed        string   `json:"seed"`
	Suggestions []string `json:"suggestions"`
}

// CandidateResponse is one possible continuation of a context.
type CandidateResponse struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

// StartersResponse lists the words a generation can start from.
type StartersResponse struct {
	Order       int      `json:"order"`
	FirstTokens []string `json:"first_tokens"`
	Interesting []string `json:"interesting"`
}

// SuggestResponse answers a seed lookup with similar first words and the
// contexts that begin with the words typed so far.
type SuggestResponse struct {
	Suggestions []string        `json:"suggestions"`
	Contexts    []ngram.Context `json:"contexts"`
}

// ModelStatsResponse combines the stored and in-memory view of a model.
type ModelStatsResponse struct {
	Model  store.ModelInfo    `json:"model"`
	Stored store.ModelStats   `json:"stored"`
	Tables []ngram.TableStats `json:"tables"`
}

// handleGenerate runs single-order generation. The seed comes from one of:
// context (a full space-separated context), seed (one word, resolved to a
// context starting with it) or neither (a random context).
func (m *ModelAPI) handleGenerate(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeGenerate) {
		return
	}

	cfg := m.cm.Get().Generation
	query := r.URL.Query()
	order, length, err := m.orderAndLength(query, cfg, model, cfg.DefaultOrder)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := generateOptions(query, cfg)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, loaded, err := m.registry.Get(r.Context(), model.Name)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to load model", err)
		return
	}
	table := loaded[order]
	if table == nil || table.Len() == 0 {
		respondWithModelError(w, m.logger, "", fmt.Errorf("%w: model %q has no order %d data", ngram.ErrEmptyModel, model.Name, order))
		return
	}

	var seed ngram.Context
	switch {
	case query.Get("context") != "":
		seed = strings.Fields(query.Get("context"))
	case query.Get("seed") != "":
		word := strings.TrimSpace(query.Get("seed"))
		seed, err = m.gen.ResolveSeed(table, word)
		if errors.Is(err, ngram.ErrSeedNotFound) {
			respondWithJSON(w, http.StatusNotFound, SeedNotFoundResponse{
				Error:       err.Error(),
				Seed:        word,
				Suggestions: nonNil(ngram.Suggest(table, word, cfg.SuggestLimit)),
			})
			return
		}
	default:
		seed, err = m.gen.RandomSeed(table)
	}
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to pick a seed", err)
		return
	}

	tokens, err := m.gen.Generate(table, seed, length, opts...)
	if err != nil {
		respondWithModelError(w, m.logger, "Generation failed", err)
		return
	}
	respondWithJSON(w, http.StatusOK, m.response(model, order, seed, tokens, query, cfg))
}

// handleProgressive runs progressive generation from a single seed word,
// climbing from order 2 to max_order.
func (m *ModelAPI) handleProgressive(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeGenerate) {
		return
	}

	cfg := m.cm.Get().Generation
	query := r.URL.Query()
	maxOrder, length, err := m.orderAndLength(query, cfg, model, min(model.MaxOrder, cfg.MaxOrder))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := progressiveOptions(query, cfg)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, loaded, err := m.registry.Get(r.Context(), model.Name)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to load model", err)
		return
	}
	bigrams := loaded[2]
	if bigrams == nil || bigrams.Len() == 0 {
		respondWithModelError(w, m.logger, "", fmt.Errorf("%w: model %q has not been trained", ngram.ErrEmptyModel, model.Name))
		return
	}

	word := strings.TrimSpace(query.Get("seed"))
	if word == "" {
		start, err := m.gen.RandomSeed(bigrams)
		if err != nil {
			respondWithModelError(w, m.logger, "Failed to pick a seed", err)
			return
		}
		word = start[0]
	} else if !bigrams.Has(ngram.Context{word}) {
		respondWithJSON(w, http.StatusNotFound, SeedNotFoundResponse{
			Error:       fmt.Sprintf("%v: %q", ngram.ErrSeedNotFound, word),
			Seed:        word,
			Suggestions: nonNil(ngram.Suggest(bigrams, word, cfg.SuggestLimit)),
		})
		return
	}

	tokens, err := m.gen.GenerateProgressive(loaded, word, maxOrder, length, opts...)
	if err != nil {
		respondWithModelError(w, m.logger, "Generation failed", err)
		return
	}
	respondWithJSON(w, http.StatusOK, m.response(model, maxOrder, []string{word}, tokens, query, cfg))
}

// handleStarters lists the first words of an order's contexts, plus the
// subset of them that make good seeds.
func (m *ModelAPI) handleStarters(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	order, err := intParam(r.URL.Query(), "order", 2)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, loaded, err := m.registry.Get(r.Context(), model.Name)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to load model", err)
		return
	}
	table := loaded[order]
	if table == nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("%v: model %q has no order %d", ngram.ErrInvalidOrder, model.Name, order))
		return
	}

	first := table.DistinctFirstTokens()
	var interesting []string
	if bigrams := loaded[2]; bigrams != nil {
		for _, word := range corpus.InterestingWords(tokenBag(bigrams), corpus.DefaultInterestingOptions()) {
			if len(table.ContextsWithPrefix(ngram.Context{word}, 1)) > 0 {
				interesting = append(interesting, word)
			}
		}
	}
	respondWithJSON(w, http.StatusOK, StartersResponse{
		Order:       order,
		FirstTokens: first,
		Interesting: nonNil(interesting),
	})
}

// handleSuggest looks up words similar to q among the bigram first tokens,
// and the contexts of the given order that begin with the words of q.
func (m *ModelAPI) handleSuggest(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	cfg := m.cm.Get().Generation
	query := r.URL.Query()
	q := strings.TrimSpace(query.Get("q"))
	if q == "" {
		respondWithError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intParam(query, "limit", cfg.SuggestLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := intParam(query, "order", cfg.DefaultOrder)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, loaded, err := m.registry.Get(r.Context(), model.Name)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to load model", err)
		return
	}

	words := strings.Fields(q)
	suggestions := []string{}
	if bigrams := loaded[2]; bigrams != nil {
		suggestions = nonNil(ngram.Suggest(bigrams, words[0], limit))
	}
	contexts := []ngram.Context{}
	if table := loaded[order]; table != nil {
		contexts = append(contexts, table.ContextsWithPrefix(words, limit)...)
	}
	respondWithJSON(w, http.StatusOK, SuggestResponse{Suggestions: suggestions, Contexts: contexts})
}

// handleCandidates lists the continuations of a context, most frequent
// first. The table is picked from the number of words in the context.
func (m *ModelAPI) handleCandidates(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	ctx := ngram.Context(strings.Fields(r.URL.Query().Get("context")))
	if len(ctx) == 0 {
		respondWithError(w, http.StatusBadRequest, "context is required")
		return
	}

	_, loaded, err := m.registry.Get(r.Context(), model.Name)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to load model", err)
		return
	}
	table := loaded[len(ctx)+1]
	if table == nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("%v: model %q has no order %d", ngram.ErrInvalidOrder, model.Name, len(ctx)+1))
		return
	}

	candidates := table.Candidates(ctx)
	out := make([]CandidateResponse, len(candidates))
	for i, c := range candidates {
		out[i] = CandidateResponse{Token: c.Token, Count: int(c.Weight)}
	}
	// Stable, so equal counts keep their first-seen order.
	sortCandidates(out)
	respondWithJSON(w, http.StatusOK, out)
}

func (m *ModelAPI) handleModelStats(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	stored, err := m.store.GetModelStats(r.Context(), model)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to read model stats", err)
		return
	}
	_, loaded, err := m.registry.Get(r.Context(), model.Name)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to load model", err)
		return
	}
	respondWithJSON(w, http.StatusOK, ModelStatsResponse{Model: model, Stored: stored, Tables: loaded.Stats()})
}

// orderAndLength reads and validates the order and length parameters.
// Order must be one the model was built with, length must respect the
// configured bounds.
func (m *ModelAPI) orderAndLength(query url.Values, cfg *GenerationConfig, model store.ModelInfo, defaultOrder int) (int, int, error) {
	order, err := intParam(query, "order", min(defaultOrder, model.MaxOrder))
	if err != nil {
		return 0, 0, err
	}
	if order < 2 || order > model.MaxOrder || order > cfg.MaxOrder {
		return 0, 0, fmt.Errorf("%v: order must be between 2 and %d", ngram.ErrInvalidOrder, min(model.MaxOrder, cfg.MaxOrder))
	}
	length, err := intParam(query, "length", cfg.DefaultLength)
	if err != nil {
		return 0, 0, err
	}
	if length < cfg.MinLength || length > cfg.MaxLength {
		return 0, 0, fmt.Errorf("length must be between %d and %d", cfg.MinLength, cfg.MaxLength)
	}
	return order, length, nil
}

func (m *ModelAPI) response(model store.ModelInfo, order int, seed, tokens []string, query url.Values, cfg *GenerationConfig) GenerateResponse {
	punctuate := cfg.Punctuate
	if v, err := strconv.ParseBool(query.Get("punctuate")); err == nil {
		punctuate = v
	}
	text := tokens
	if punctuate {
		text = corpus.Punctuate(tokens, nil)
	}
	return GenerateResponse{
		Model:  model.Name,
		Order:  order,
		Seed:   seed,
		Tokens: tokens,
		Text:   corpus.Join(text),
	}
}

func generateOptions(query url.Values, cfg *GenerationConfig) ([]ngram.GenerateOption, error) {
	var opts []ngram.GenerateOption
	if v := query.Get("weighted"); v != "" {
		weighted, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("weighted must be a boolean")
		}
		opts = append(opts, ngram.WithWeighted(weighted))
	}

	temperature := cfg.Temperature
	if v := query.Get("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return nil, fmt.Errorf("temperature must be a finite number of at least 0")
		}
		temperature = t
	}
	if temperature != 1.0 {
		opts = append(opts, ngram.WithTemperature(temperature))
	}

	topK, err := intParam(query, "top_k", cfg.TopK)
	if err != nil {
		return nil, err
	}
	if topK > 0 {
		opts = append(opts, ngram.WithTopK(topK))
	}
	return opts, nil
}

func progressiveOptions(query url.Values, cfg *GenerationConfig) ([]ngram.ProgressiveOption, error) {
	name := cfg.Fallback
	if query.Has("fallback") {
		name = query.Get("fallback")
	}
	fallback, err := ngram.ParseFallback(name)
	if err != nil {
		return nil, err
	}
	budget, err := intParam(query, "order_budget", cfg.OrderBudget)
	if err != nil {
		return nil, err
	}
	return []ngram.ProgressiveOption{
		ngram.WithFallback(fallback),
		ngram.WithOrderBudget(budget),
		ngram.WithRetryCap(cfg.RetryCap),
	}, nil
}

// intParam parses the named query parameter, returning def when it is absent.
func intParam(query url.Values, name string, def int) (int, error) {
	v := query.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// tokenBag approximates the corpus word counts from a table: every
// observation counts as one occurrence of its context's first word.
func tokenBag(bigrams *ngram.Table) []string {
	var bag []string
	for _, c := range bigrams.Contexts() {
		for _, candidate := range bigrams.Candidates(c) {
			for range int(candidate.Weight) {
				bag = append(bag, c[0])
			}
		}
	}
	return bag
}

func sortCandidates(c []CandidateResponse) {
	slices.SortStableFunc(c, func(a, b CandidateResponse) int { return cmp.Compare(b.Count, a.Count) })
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
