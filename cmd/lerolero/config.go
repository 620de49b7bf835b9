package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/CTAG07/lerolero/pkg/corpus"
	"github.com/CTAG07/lerolero/pkg/ngram"
)

// Hard limits for the generation section of the configuration.
const (
	minOrderLimit  = 2
	maxOrderLimit  = 6
	minLengthLimit = 10
	maxLengthLimit = 200
)

// ServerConfig holds the configuration for the HTTP API.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr" yaml:"api_addr"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	DatabasePath string `json:"database_path" yaml:"database_path"`
}

// GenerationConfig holds the defaults and bounds applied to generation
// requests that leave a parameter out.
type GenerationConfig struct {
	DefaultOrder  int     `json:"default_order" yaml:"default_order"`
	MaxOrder      int     `json:"max_order" yaml:"max_order"`
	DefaultLength int     `json:"default_length" yaml:"default_length"`
	MinLength     int     `json:"min_length" yaml:"min_length"`
	MaxLength     int     `json:"max_length" yaml:"max_length"`
	RetryCap      int     `json:"retry_cap" yaml:"retry_cap"`
	OrderBudget   int     `json:"order_budget" yaml:"order_budget"`
	Fallback      string  `json:"fallback" yaml:"fallback"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	TopK          int     `json:"top_k" yaml:"top_k"`
	Punctuate     bool    `json:"punctuate" yaml:"punctuate"`
	SuggestLimit  int     `json:"suggest_limit" yaml:"suggest_limit"`
}

// CorpusConfig describes how raw text is cleaned and which files, if any,
// are trained into a model at startup.
type CorpusConfig struct {
	ModelName        string   `json:"model_name" yaml:"model_name"`
	MaxOrder         int      `json:"max_order" yaml:"max_order"`
	Paths            []string `json:"paths" yaml:"paths"`
	Lowercase        bool     `json:"lowercase" yaml:"lowercase"`
	KeepClitics      bool     `json:"keep_clitics" yaml:"keep_clitics"`
	KeepHyphens      bool     `json:"keep_hyphens" yaml:"keep_hyphens"`
	StripMarkup      bool     `json:"strip_markup" yaml:"strip_markup"`
	ExtraPunctuation string   `json:"extra_punctuation" yaml:"extra_punctuation"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     *ServerConfig     `json:"server_config" yaml:"server_config"`
	Generation *GenerationConfig `json:"generation_config" yaml:"generation_config"`
	Corpus     *CorpusConfig     `json:"corpus_config" yaml:"corpus_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:      ":7380",
		LogLevel:     "info",
		DataDir:      "./data",
		DatabasePath: "./data/lerolero.db?_journal_mode=WAL&_busy_timeout=5000",
	}
}

// DefaultGenerationConfig mirrors the ranges the generator was tuned for:
// orders 2 to 6 and 10 to 200 tokens.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		DefaultOrder:  3,
		MaxOrder:      maxOrderLimit,
		DefaultLength: 51,
		MinLength:     minLengthLimit,
		MaxLength:     maxLengthLimit,
		RetryCap:      ngram.DefaultRetryCap,
		Fallback:      ngram.FallbackLowerOrder.String(),
		Temperature:   1.0,
		SuggestLimit:  10,
	}
}

// DefaultCorpusConfig creates a corpus configuration with default values.
// No files are trained unless Paths is set.
func DefaultCorpusConfig() *CorpusConfig {
	return &CorpusConfig{
		ModelName:        "corpus",
		MaxOrder:         4,
		Paths:            []string{},
		Lowercase:        true,
		KeepClitics:      true,
		ExtraPunctuation: corpus.DefaultExtraPunctuation,
	}
}

// DefaultConfig returns a full configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Generation: DefaultGenerationConfig(),
		Corpus:     DefaultCorpusConfig(),
	}
}

// isYAML reports whether path should be read and written as YAML. Anything
// else is JSON.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// LoadConfig reads the configuration at path, as YAML or JSON depending on
// the extension. If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate fills sections missing from a partial file with defaults and
// rejects values outside the supported ranges.
func (c *Config) Validate() error {
	if c.Server == nil {
		c.Server = DefaultServerConfig()
	}
	if c.Generation == nil {
		c.Generation = DefaultGenerationConfig()
	}
	if c.Corpus == nil {
		c.Corpus = DefaultCorpusConfig()
	}

	g := c.Generation
	if g.MaxOrder < minOrderLimit || g.MaxOrder > maxOrderLimit {
		return fmt.Errorf("generation max_order must be between %d and %d, got %d", minOrderLimit, maxOrderLimit, g.MaxOrder)
	}
	if g.DefaultOrder < minOrderLimit || g.DefaultOrder > g.MaxOrder {
		return fmt.Errorf("generation default_order must be between %d and %d, got %d", minOrderLimit, g.MaxOrder, g.DefaultOrder)
	}
	if g.MinLength < 1 || g.MaxLength > maxLengthLimit || g.MinLength > g.MaxLength {
		return fmt.Errorf("generation length bounds [%d, %d] are invalid", g.MinLength, g.MaxLength)
	}
	if g.DefaultLength < g.MinLength || g.DefaultLength > g.MaxLength {
		return fmt.Errorf("generation default_length %d is outside [%d, %d]", g.DefaultLength, g.MinLength, g.MaxLength)
	}
	if math.IsNaN(g.Temperature) || math.IsInf(g.Temperature, 0) || g.Temperature < 0 {
		return fmt.Errorf("generation temperature must be a finite number of at least 0, got %v", g.Temperature)
	}
	if g.RetryCap <= 0 {
		return fmt.Errorf("generation retry_cap must be positive, got %d", g.RetryCap)
	}
	if _, err := ngram.ParseFallback(g.Fallback); err != nil {
		return err
	}
	if c.Corpus.MaxOrder < minOrderLimit || c.Corpus.MaxOrder > maxOrderLimit {
		return fmt.Errorf("corpus max_order must be between %d and %d, got %d", minOrderLimit, maxOrderLimit, c.Corpus.MaxOrder)
	}
	return nil
}

// Level maps the configured level name to a slog level. Unknown names
// fall back to info.
func (c *ServerConfig) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Tokenizer builds the corpus tokenizer described by c.
func (c *CorpusConfig) Tokenizer() *corpus.Tokenizer {
	return corpus.NewTokenizer(corpus.NewNormalizer(
		corpus.WithLowercase(c.Lowercase),
		corpus.WithCliticHyphens(c.KeepClitics),
		corpus.WithHyphenatedCompounds(c.KeepHyphens),
		corpus.WithMarkupStripping(c.StripMarkup),
		corpus.WithExtraPunctuation(c.ExtraPunctuation),
	))
}

// ConfigManager handles thread-safe access to the configuration.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// clone copies c including the sections behind its pointers. c must be
// validated, so that no section is nil.
func (c *Config) clone() Config {
	server, generation, corpusCfg := *c.Server, *c.Generation, *c.Corpus
	corpusCfg.Paths = append([]string{}, corpusCfg.Paths...)
	return Config{Server: &server, Generation: &generation, Corpus: &corpusCfg}
}

// Get returns a copy of the current configuration that callers may read
// and modify without holding any lock.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.clone()
}

// Update validates newConfig, makes it current and saves it to disk.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := marshalConfig(cm.configPath, &newConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	*cm.config = newConfig.clone()
	cm.logger.Info("Configuration updated", slog.String("path", cm.configPath))
	return nil
}
