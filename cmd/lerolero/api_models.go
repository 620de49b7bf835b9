package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/CTAG07/lerolero/pkg/ngram"
	"github.com/CTAG07/lerolero/pkg/store"
)

// maxTrainBody caps the size of a raw training text.
const maxTrainBody = 64 << 20

// ModelAPI holds the dependencies for the model and generation handlers.
type ModelAPI struct {
	store    *store.Store
	registry *Registry
	cm       *ConfigManager
	gen      *ngram.Generator
	logger   *slog.Logger
}

// NewModelAPI creates a new instance of the ModelAPI.
func NewModelAPI(st *store.Store, registry *Registry, cm *ConfigManager, gen *ngram.Generator, logger *slog.Logger) *ModelAPI {
	return &ModelAPI{
		store:    st,
		registry: registry,
		cm:       cm,
		gen:      gen,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api/models endpoints.
func (m *ModelAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", m.handleListAndCreateModels)
	mux.HandleFunc("/api/models/import", m.handleImport)
	mux.HandleFunc("/api/models/", m.handleModelByName)
}

type CreateModelRequest struct {
	Name     string `json:"name"`
	MaxOrder int    `json:"max_order"`
}

type PruneRequest struct {
	MinFreq int `json:"min_freq"`
}

// TrainResponse reports the outcome of a training request.
type TrainResponse struct {
	Model  store.ModelInfo    `json:"model"`
	Tables []ngram.TableStats `json:"tables"`
}

// handleListAndCreateModels handles GET for listing and POST for creating models.
func (m *ModelAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeModelsRead) {
			return
		}
		models, err := m.store.GetModelInfos(r.Context())
		if err != nil {
			m.logger.Error("Failed to get model infos", slog.Any("error", err))
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve models")
			return
		}
		modelList := make([]store.ModelInfo, 0, len(models))
		for _, model := range models {
			modelList = append(modelList, model)
		}
		slices.SortFunc(modelList, func(a, b store.ModelInfo) int { return strings.Compare(a.Name, b.Name) })
		respondWithJSON(w, http.StatusOK, modelList)

	case http.MethodPost:
		if !requireScope(w, r, scopeModelsWrite) {
			return
		}
		var req CreateModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if req.Name == "import" || strings.Contains(req.Name, "/") {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("%q cannot be used as a model name", req.Name))
			return
		}
		if req.MaxOrder > maxOrderLimit {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("max_order cannot exceed %d", maxOrderLimit))
			return
		}

		model, err := m.store.CreateModel(r.Context(), store.ModelInfo{Name: req.Name, MaxOrder: req.MaxOrder})
		if err != nil {
			if errors.Is(err, ngram.ErrInvalidOrder) || strings.TrimSpace(req.Name) == "" {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			m.logger.Error("Failed to create model", slog.String("name", req.Name), slog.Any("error", err))
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Failed to create model: %v", err))
			return
		}
		respondWithJSON(w, http.StatusCreated, model)

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleModelByName routes actions for a specific model: the model itself,
// training and maintenance, and the generation endpoints.
func (m *ModelAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/models/"), "/")
	name, action, _ := strings.Cut(path, "/")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	model, err := m.store.GetModelInfo(r.Context(), name)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to get model info", err)
		return
	}

	switch action {
	case "":
		m.handleModel(w, r, model)
	case "train":
		m.handleTrain(w, r, model)
	case "prune":
		m.handlePrune(w, r, model)
	case "export":
		m.handleExport(w, r, model)
	case "generate":
		m.handleGenerate(w, r, model)
	case "progressive":
		m.handleProgressive(w, r, model)
	case "starters":
		m.handleStarters(w, r, model)
	case "suggest":
		m.handleSuggest(w, r, model)
	case "candidates":
		m.handleCandidates(w, r, model)
	case "stats":
		m.handleModelStats(w, r, model)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

func (m *ModelAPI) handleModel(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeModelsRead) {
			return
		}
		respondWithJSON(w, http.StatusOK, model)
	case http.MethodDelete:
		if !requireScope(w, r, scopeModelsWrite) {
			return
		}
		if err := m.store.RemoveModel(r.Context(), model); err != nil {
			m.logger.Error("Failed to remove model", slog.String("name", model.Name), slog.Any("error", err))
			respondWithError(w, http.StatusInternalServerError, "Failed to remove model")
			return
		}
		m.registry.Invalidate(model.Name)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// handleTrain rebuilds the model from the raw text in the request body,
// replacing whatever it held before.
func (m *ModelAPI) handleTrain(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}

	tokenizer := m.cm.Get().Corpus.Tokenizer()
	tokenizer.SetLogger(m.logger)
	tokens, err := tokenizer.Tokenize(http.MaxBytesReader(w, r.Body, maxTrainBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read training text: %v", err))
		return
	}
	if len(tokens) < 2 {
		respondWithError(w, http.StatusBadRequest, "Training text needs at least two words")
		return
	}

	built, err := ngram.BuildModel(tokens, model.MaxOrder)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to build model", err)
		return
	}
	if err = m.store.SaveModel(r.Context(), model, built, len(tokens)); err != nil {
		m.logger.Error("Failed to save model", slog.String("name", model.Name), slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Training failed")
		return
	}
	model.TokenCount = len(tokens)
	m.registry.Put(model, built)

	m.logger.Info("Model trained",
		slog.String("name", model.Name),
		slog.Int("tokens", len(tokens)),
		slog.Int("max_order", model.MaxOrder),
	)
	respondWithJSON(w, http.StatusOK, TrainResponse{Model: model, Tables: built.Stats()})
}

func (m *ModelAPI) handlePrune(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if req.MinFreq < 1 {
		respondWithError(w, http.StatusBadRequest, "min_freq must be at least 1")
		return
	}

	removed, err := m.store.PruneModel(r.Context(), model, req.MinFreq)
	if err != nil {
		m.logger.Error("Failed to prune model", slog.String("name", model.Name), slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Pruning failed")
		return
	}
	m.registry.Invalidate(model.Name)
	respondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// handleExport writes the stored model as JSON. Passing order switches to a
// readable export of that single table, optionally limited to its busiest
// contexts with min_observations and max_contexts.
func (m *ModelAPI) handleExport(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}

	query := r.URL.Query()
	if !query.Has("order") {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", model.Name))
		if err := m.store.ExportModel(r.Context(), model, w); err != nil {
			m.logger.Error("Failed to export model", slog.String("name", model.Name), slog.Any("error", err))
		}
		return
	}

	order, err := strconv.Atoi(query.Get("order"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "order must be an integer")
		return
	}
	minObs, err := intParam(query, "min_observations", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxContexts, err := intParam(query, "max_contexts", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := m.store.LoadTable(r.Context(), model, order)
	if err != nil {
		respondWithModelError(w, m.logger, "Failed to load table", err)
		return
	}
	if minObs > 0 || maxContexts > 0 {
		table = table.Limit(minObs, maxContexts)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s-%d.json\"", model.Name, order))
	respondWithJSON(w, http.StatusOK, newTableExport(table))
}

// handleImport imports a model from an uploaded JSON export, merging it into
// a model of the same name if one exists.
func (m *ModelAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}

	model, err := m.store.ImportModel(r.Context(), r.Body)
	if err != nil {
		m.logger.Warn("Failed to import model", slog.Any("error", err))
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	m.registry.Invalidate(model.Name)
	respondWithJSON(w, http.StatusOK, model)
}

// TableExport is the readable form of a single table.
type TableExport struct {
	Order    int             `json:"order"`
	Contexts []ContextExport `json:"contexts"`
}

// ContextExport lists the continuations of one context with their counts.
type ContextExport struct {
	Context       []string       `json:"context"`
	Continuations map[string]int `json:"continuations"`
}

func newTableExport(t *ngram.Table) TableExport {
	out := TableExport{Order: t.Order(), Contexts: make([]ContextExport, 0, t.Len())}
	for _, c := range t.Contexts() {
		out.Contexts = append(out.Contexts, ContextExport{
			Context:       c,
			Continuations: t.ContinuationCandidates(c),
		})
	}
	return out
}
