package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/CTAG07/lerolero/pkg/corpus"
	"github.com/CTAG07/lerolero/pkg/ngram"
	"github.com/CTAG07/lerolero/pkg/store"
)

const (
	modeProgressive = "progressive (orders 2 up to the chosen one)"
	modeSingle      = "single order"

	seedRandom = "(random)"
	seedTyped  = "(type a word)"
)

// errQuit ends the session without an error.
var errQuit = errors.New("session ended")

// prompter is the subset of terminal interaction a session needs.
type prompter interface {
	Select(message string, options []string, def string) (string, error)
	Input(message, def string, validate func(string) error) (string, error)
	Confirm(message string, def bool) (bool, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Select(message string, options []string, def string) (string, error) {
	var out string
	prompt := &survey.Select{Message: message, Options: options, PageSize: 15}
	if slices.Contains(options, def) {
		prompt.Default = def
	}
	if err := survey.AskOne(prompt, &out); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (surveyPrompter) Input(message, def string, validate func(string) error) (string, error) {
	var out string
	var opts []survey.AskOpt
	if validate != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			return validate(fmt.Sprint(ans))
		}))
	}
	if err := survey.AskOne(&survey.Input{Message: message, Default: def}, &out, opts...); err != nil {
		return "", translateSurveyErr(err)
	}
	return strings.TrimSpace(out), nil
}

func (surveyPrompter) Confirm(message string, def bool) (bool, error) {
	var out bool
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &out); err != nil {
		return false, translateSurveyErr(err)
	}
	return out, nil
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errQuit
	}
	return err
}

// session drives interactive generation over the stored models.
type session struct {
	store    *store.Store
	registry *Registry
	gen      *ngram.Generator
	cfg      *GenerationConfig
	prompt   prompter
	out      io.Writer
	width    int
}

// runInteractive opens the configured database, trains the startup corpus
// if needed and runs a session on the terminal.
func runInteractive(ctx context.Context, configPath string) error {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()
	// Keep informational logs from interleaving with the prompts.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: max(config.Server.Level(), slog.LevelWarn)}))
	cm.SetLogger(logger)

	db, err := openDatabase(config.Server)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	server, err := NewServer(cm, logger, db, nil)
	if err != nil {
		return err
	}
	defer server.Close()
	if err = server.BootstrapCorpus(ctx); err != nil {
		return err
	}

	s := &session{
		store:    server.store,
		registry: server.registry,
		gen:      server.gen,
		cfg:      config.Generation,
		prompt:   surveyPrompter{},
		out:      os.Stdout,
		width:    corpus.DefaultWrapWidth,
	}
	return s.run(ctx)
}

// run repeats generations until the user declines another one.
func (s *session) run(ctx context.Context) error {
	for {
		err := s.generateOnce(ctx)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return err
		}
		again, err := s.prompt.Confirm("Generate again?", true)
		if errors.Is(err, errQuit) || (err == nil && !again) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// generateOnce asks for every parameter of one generation and prints the
// wrapped result.
func (s *session) generateOnce(ctx context.Context) error {
	infos, err := s.store.GetModelInfos(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return errors.New("no models found: set corpus_config.paths or train a model through the API")
	}
	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	slices.Sort(names)

	name, err := s.prompt.Select("Model:", names, names[0])
	if err != nil {
		return err
	}
	info, m, err := s.registry.Get(ctx, name)
	if err != nil {
		return err
	}
	if m[2] == nil || m[2].Len() == 0 {
		_, _ = fmt.Fprintf(s.out, "Model %q has not been trained yet.\n", name)
		return nil
	}

	mode, err := s.prompt.Select("Mode:", []string{modeProgressive, modeSingle}, modeProgressive)
	if err != nil {
		return err
	}

	maxOrder := min(info.MaxOrder, s.cfg.MaxOrder)
	order, err := s.askInt("Order:", min(s.cfg.DefaultOrder, maxOrder), 2, maxOrder)
	if err != nil {
		return err
	}
	length, err := s.askInt("Length in words:", s.cfg.DefaultLength, s.cfg.MinLength, s.cfg.MaxLength)
	if err != nil {
		return err
	}

	var tokens []string
	if mode == modeSingle {
		tokens, err = s.single(m[order], length)
	} else {
		tokens, err = s.progressive(m, order, length)
	}
	if err != nil {
		return err
	}

	if s.cfg.Punctuate {
		tokens = corpus.Punctuate(tokens, nil)
	}
	_, _ = fmt.Fprintf(s.out, "\n%s\n\n", corpus.Wrap(corpus.Join(tokens), s.width))
	return nil
}

func (s *session) single(table *ngram.Table, length int) ([]string, error) {
	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("%w: no data for this order", ngram.ErrEmptyModel)
	}
	word, err := s.askSeed(table)
	if err != nil {
		return nil, err
	}
	var seed ngram.Context
	if word == "" {
		seed, err = s.gen.RandomSeed(table)
	} else {
		seed, err = s.gen.ResolveSeed(table, word)
	}
	if err != nil {
		return nil, err
	}
	var opts []ngram.GenerateOption
	if s.cfg.Temperature != 1.0 {
		opts = append(opts, ngram.WithTemperature(s.cfg.Temperature))
	}
	if s.cfg.TopK > 0 {
		opts = append(opts, ngram.WithTopK(s.cfg.TopK))
	}
	return s.gen.Generate(table, seed, length, opts...)
}

func (s *session) progressive(m ngram.Model, maxOrder, length int) ([]string, error) {
	word, err := s.askSeed(m[2])
	if err != nil {
		return nil, err
	}
	if word == "" {
		start, err := s.gen.RandomSeed(m[2])
		if err != nil {
			return nil, err
		}
		word = start[0]
	}
	fallback, err := ngram.ParseFallback(s.cfg.Fallback)
	if err != nil {
		return nil, err
	}
	return s.gen.GenerateProgressive(m, word, maxOrder, length,
		ngram.WithFallback(fallback),
		ngram.WithOrderBudget(s.cfg.OrderBudget),
		ngram.WithRetryCap(s.cfg.RetryCap),
	)
}

// askSeed offers the interesting first words of table, a random start or a
// typed word. Typed words that start no context are answered with similar
// words until one fits. An empty result means a random start.
func (s *session) askSeed(table *ngram.Table) (string, error) {
	bag := tokenBag(table)
	opts := corpus.DefaultInterestingOptions()
	var options []string
	for _, word := range corpus.InterestingWords(bag, opts) {
		if len(table.ContextsWithPrefix(ngram.Context{word}, 1)) > 0 {
			options = append(options, word)
		}
	}
	options = append([]string{seedRandom, seedTyped}, options...)

	choice, err := s.prompt.Select("Seed word:", options, seedRandom)
	if err != nil {
		return "", err
	}
	switch choice {
	case seedRandom:
		return "", nil
	case seedTyped:
	default:
		return choice, nil
	}

	for {
		word, err := s.prompt.Input("Word:", "", nil)
		if err != nil {
			return "", err
		}
		if word == "" {
			return "", nil
		}
		if len(table.ContextsWithPrefix(ngram.Context{word}, 1)) > 0 {
			return word, nil
		}
		suggestions := ngram.Suggest(table, word, s.cfg.SuggestLimit)
		if len(suggestions) == 0 {
			_, _ = fmt.Fprintf(s.out, "%q never starts a sentence fragment and nothing similar does. Try another word.\n", word)
			continue
		}
		choice, err := s.prompt.Select(fmt.Sprintf("%q was not found. Did you mean:", word), append(suggestions, seedTyped), suggestions[0])
		if err != nil {
			return "", err
		}
		if choice != seedTyped {
			return choice, nil
		}
	}
}

func (s *session) askInt(message string, def, lo, hi int) (int, error) {
	validate := func(ans string) error {
		n, err := strconv.Atoi(strings.TrimSpace(ans))
		if err != nil {
			return errors.New("enter a whole number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("enter a number between %d and %d", lo, hi)
		}
		return nil
	}
	ans, err := s.prompt.Input(fmt.Sprintf("%s (%d-%d)", message, lo, hi), strconv.Itoa(def), validate)
	if err != nil {
		return 0, err
	}
	if err = validate(ans); err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(strings.TrimSpace(ans))
	return n, nil
}
