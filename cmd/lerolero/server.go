package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/lerolero/pkg/ngram"
	"github.com/CTAG07/lerolero/pkg/store"
)

type Server struct {
	cm        *ConfigManager
	db        *sql.DB
	logger    *slog.Logger
	store     *store.Store
	registry  *Registry
	gen       *ngram.Generator
	authAPI   *AuthAPI
	modelAPI  *ModelAPI
	statsAPI  *StatsAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

// NewServer wires the APIs onto db. The schemas must already exist.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	st, err := store.New(db)
	if err != nil {
		return nil, fmt.Errorf("error creating model store: %w", err)
	}
	st.SetLogger(logger)

	gen := ngram.NewGenerator(nil)
	gen.SetLogger(logger)
	registry := NewRegistry(st, logger)

	server := &Server{
		cm:        cm,
		db:        db,
		logger:    logger,
		store:     st,
		registry:  registry,
		gen:       gen,
		authAPI:   NewAuthAPI(db, logger),
		modelAPI:  NewModelAPI(st, registry, cm, gen, logger),
		statsAPI:  NewStatsAPI(st, registry, cm, logger),
		serverAPI: NewServerAPI(cm, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.modelAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Everything except the health check passes through authentication.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))

	return server, nil
}

// Handler returns the root handler of the API.
func (s *Server) Handler() http.Handler {
	return s.apiMux
}

// Close releases the store's prepared statements. The database itself
// belongs to the caller.
func (s *Server) Close() {
	s.store.Close()
}

// BootstrapCorpus trains the configured corpus files into the configured
// model unless that model already exists. Either way the corpus is
// summarized for /api/stats.
func (s *Server) BootstrapCorpus(ctx context.Context) error {
	cfg := s.cm.Get().Corpus
	if len(cfg.Paths) == 0 {
		return nil
	}

	tokenizer := cfg.Tokenizer()
	tokenizer.SetLogger(s.logger)
	tokens, err := tokenizer.LoadFiles(cfg.Paths...)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	report := newCorpusReport(tokens)
	report.Model = cfg.ModelName
	report.Files = cfg.Paths
	s.statsAPI.SetCorpusReport(report)

	_, err = s.store.GetModelInfo(ctx, cfg.ModelName)
	if err == nil {
		s.logger.Info("Corpus model already exists, skipping training", slog.String("model", cfg.ModelName))
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	model, err := s.store.CreateModel(ctx, store.ModelInfo{Name: cfg.ModelName, MaxOrder: cfg.MaxOrder})
	if err != nil {
		return err
	}
	built, err := ngram.BuildModel(tokens, model.MaxOrder)
	if err != nil {
		return err
	}
	if err = s.store.SaveModel(ctx, model, built, len(tokens)); err != nil {
		return err
	}
	model.TokenCount = len(tokens)
	s.registry.Put(model, built)

	s.logger.Info("Corpus model trained",
		slog.String("model", model.Name),
		slog.Int("files", len(cfg.Paths)),
		slog.Int("tokens", report.Summary.Total),
		slog.Int("unique", report.Summary.Unique),
	)
	return nil
}
