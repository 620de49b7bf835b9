package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/CTAG07/lerolero/pkg/corpus"
	"github.com/CTAG07/lerolero/pkg/store"
)

// topWordsShown is how many frequent words a corpus report carries.
const topWordsShown = 20

// CorpusReport describes a tokenized text.
type CorpusReport struct {
	Model       string             `json:"model,omitempty"`
	Files       []string           `json:"files,omitempty"`
	Summary     corpus.Summary     `json:"summary"`
	TopWords    []corpus.WordCount `json:"top_words"`
	Interesting []string           `json:"interesting"`
}

func newCorpusReport(tokens []string) *CorpusReport {
	return &CorpusReport{
		Summary:     corpus.Summarize(tokens),
		TopWords:    corpus.TopWords(tokens, topWordsShown),
		Interesting: nonNil(corpus.InterestingWords(tokens, corpus.DefaultInterestingOptions())),
	}
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Database     *store.DBStats `json:"database"`
	LoadedModels int            `json:"loaded_models"`
	Corpus       *CorpusReport  `json:"corpus,omitempty"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store    *store.Store
	registry *Registry
	cm       *ConfigManager
	logger   *slog.Logger

	mu     sync.RWMutex
	report *CorpusReport
}

func NewStatsAPI(st *store.Store, registry *Registry, cm *ConfigManager, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:    st,
		registry: registry,
		cm:       cm,
		logger:   logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/stats/text", s.handleTextStats)
	mux.HandleFunc("/api/vocabulary/compact", s.handleCompact)
}

// SetCorpusReport records the report of the startup corpus.
func (s *StatsAPI) SetCorpusReport(report *CorpusReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
}

func (s *StatsAPI) corpusReport() *CorpusReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

func (s *StatsAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}

	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("Failed to get database stats", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}
	respondWithJSON(w, http.StatusOK, StatsResponse{
		Database:     stats,
		LoadedModels: s.registry.Loaded(),
		Corpus:       s.corpusReport(),
	})
}

// handleTextStats tokenizes the request body with the configured cleaning
// rules and reports on it without training anything.
func (s *StatsAPI) handleTextStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}

	tokens, err := s.cm.Get().Corpus.Tokenizer().Tokenize(http.MaxBytesReader(w, r.Body, maxTrainBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read text: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, newCorpusReport(tokens))
}

// handleCompact removes vocabulary and contexts no model references.
func (s *StatsAPI) handleCompact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}

	result, err := s.store.Compact(r.Context())
	if err != nil {
		s.logger.Error("Failed to compact vocabulary", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Vocabulary compaction failed")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
