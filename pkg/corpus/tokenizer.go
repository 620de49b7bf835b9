package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// maxLineSize bounds a single line of input. Cleaned corpora are often one
// line holding an entire book.
const maxLineSize = 64 << 20

// Tokenizer turns raw text into normalized word tokens.
type Tokenizer struct {
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewTokenizer returns a Tokenizer using n. A nil n uses NewNormalizer().
func NewTokenizer(n *Normalizer) *Tokenizer {
	if n == nil {
		n = NewNormalizer()
	}
	return &Tokenizer{
		normalizer: n,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Tokenizer. By default, all logs are
// discarded.
func (t *Tokenizer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// NewStream returns a Stream reading tokens from r.
func (t *Tokenizer) NewStream(r io.Reader) *Stream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Stream{scanner: scanner, normalizer: t.normalizer}
}

// Stream reads a text line by line and hands out one token at a time.
type Stream struct {
	scanner    *bufio.Scanner
	normalizer *Normalizer
	buffer     []string
}

// Next returns the next token. When the stream is exhausted it returns an
// empty string and io.EOF. Any other error comes from the underlying reader.
func (s *Stream) Next() (string, error) {
	for len(s.buffer) == 0 {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		line := s.normalizer.Normalize(s.scanner.Text())
		if line != "" {
			s.buffer = strings.Split(line, " ")
		}
	}

	tok := s.buffer[0]
	s.buffer = s.buffer[1:]
	return tok, nil
}

// Tokenize reads r to the end and returns all of its tokens.
func (t *Tokenizer) Tokenize(r io.Reader) ([]string, error) {
	stream := t.NewStream(r)
	var tokens []string
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return tokens, nil
		}
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
	}
}

// LoadFiles tokenizes each file in turn and concatenates the results, as if
// the files had been joined with a space.
func (t *Tokenizer) LoadFiles(paths ...string) ([]string, error) {
	var tokens []string
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("could not open corpus file: %w", err)
		}
		part, err := t.Tokenize(file)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("could not read corpus file %s: %w", path, err)
		}
		t.logger.Debug("Loaded corpus file", slog.String("path", path), slog.Int("tokens", len(part)))
		tokens = append(tokens, part...)
	}
	return tokens, nil
}
