package ngram

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// assertChain checks that every token after the seed is a recorded
// continuation of the window before it, and that a short result ends on a
// dead end.
func assertChain(t *testing.T, table *Table, out []string, length int) {
	t.Helper()
	n := table.ContextSize()
	for i := n; i < len(out); i++ {
		window := Context(out[i-n : i])
		if _, ok := table.ContinuationCandidates(window)[out[i]]; !ok {
			t.Fatalf("token %d (%q) is not a continuation of %q", i, out[i], window)
		}
	}
	if len(out) < length && table.Has(Context(out[len(out)-n:])) {
		t.Fatalf("generation stopped at %d tokens although %q has continuations", len(out), out[len(out)-n:])
	}
}

func TestGenerateKeepsSeedAndBounds(t *testing.T) {
	table := mustBuild(t, abab, 3)
	seed := Context{"a", "b"}

	for _, length := range []int{2, 3, 5, 10, 50} {
		out, err := newTestGenerator().Generate(table, seed, length)
		if err != nil {
			t.Fatalf("Generate(length=%d) error = %v", length, err)
		}
		if len(out) > length {
			t.Errorf("Generate(length=%d) returned %d tokens", length, len(out))
		}
		if diff := cmp.Diff([]string(seed), out[:2]); diff != "" {
			t.Errorf("output does not start with the seed (-want +got):\n%s", diff)
		}
		assertChain(t, table, out, length)
	}
}

func TestGenerateShortLengthReturnsSeed(t *testing.T) {
	table := mustBuild(t, abab, 3)
	out, err := newTestGenerator().Generate(table, Context{"a", "b"}, 1)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestGenerateDeadEnd(t *testing.T) {
	table := mustBuild(t, []string{"um", "dois", "três"}, 2)
	out, err := newTestGenerator().Generate(table, Context{"um"}, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"um", "dois", "três"}, out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestGenerateUnknownSeedContext(t *testing.T) {
	table := mustBuild(t, abab, 3)
	out, err := newTestGenerator().Generate(table, Context{"x", "y"}, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"x", "y"}, out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestGenerateContextSizeMismatch(t *testing.T) {
	table := mustBuild(t, abab, 3)
	for _, seed := range []Context{nil, {"a"}, {"a", "b", "a"}} {
		if _, err := newTestGenerator().Generate(table, seed, 10); !errors.Is(err, ErrContextSizeMismatch) {
			t.Errorf("Generate(seed=%q) error = %v, want ErrContextSizeMismatch", seed, err)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	tokens := benchmarkTokens()
	table := mustBuild(t, tokens, 3)
	seed := Context{"a", "princesa"}

	tests := []struct {
		name string
		opts []GenerateOption
	}{
		{"uniform", nil},
		{"weighted", []GenerateOption{WithWeighted(true)}},
		{"temperature", []GenerateOption{WithTemperature(1.7)}},
		{"topk", []GenerateOption{WithTopK(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := NewGenerator(rand.NewPCG(7, 11)).Generate(table, seed, 60, tt.opts...)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			second, err := NewGenerator(rand.NewPCG(7, 11)).Generate(table, seed, 60, tt.opts...)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("same source produced different output (-first +second):\n%s", diff)
			}
			assertChain(t, table, first, 60)
		})
	}
}

func TestGenerateZeroTemperaturePicksMostFrequent(t *testing.T) {
	// "o" is followed by "gato" three times and by "cão" once.
	tokens := []string{"o", "gato", "o", "gato", "o", "cão", "o", "gato"}
	table := mustBuild(t, tokens, 2)

	g := newTestGenerator()
	for i := 0; i < 20; i++ {
		out, err := g.Generate(table, Context{"o"}, 2, WithTemperature(0))
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if out[1] != "gato" {
			t.Fatalf("draw %d picked %q, want gato", i, out[1])
		}
	}
}

func TestGenerateNaNTemperatureKeepsCounts(t *testing.T) {
	tokens := []string{"o", "gato", "o", "gato", "o", "cão", "o", "gato"}
	table := mustBuild(t, tokens, 2)

	want, got := newTestGenerator(), newTestGenerator()
	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		a, err := want.Generate(table, Context{"o"}, 2, WithWeighted(true))
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		b, err := got.Generate(table, Context{"o"}, 2, WithTemperature(math.NaN()))
		if err != nil {
			t.Fatalf("Generate(NaN) error = %v", err)
		}
		if a[1] != b[1] {
			t.Fatalf("draw %d: NaN temperature picked %q, plain weighted picked %q", i, b[1], a[1])
		}
		seen[b[1]]++
	}
	if seen["gato"] == 0 || seen["cão"] == 0 {
		t.Errorf("NaN temperature collapsed the distribution: %v", seen)
	}
}

func TestGenerateTopKOne(t *testing.T) {
	tokens := []string{"o", "cão", "o", "gato", "o", "gato"}
	table := mustBuild(t, tokens, 2)

	g := newTestGenerator()
	for i := 0; i < 20; i++ {
		out, err := g.Generate(table, Context{"o"}, 2, WithTopK(1))
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if out[1] != "gato" {
			t.Fatalf("draw %d picked %q, want gato", i, out[1])
		}
	}
}

func BenchmarkGenerate(b *testing.B) {
	table := mustBuild(b, benchmarkTokens(), 3)
	g := newTestGenerator()
	seed := Context{"era", "uma"}

	b.Run("Uniform", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = g.Generate(table, seed, 100)
		}
	})
	b.Run("Temperature", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = g.Generate(table, seed, 100, WithTemperature(0.8), WithTopK(3))
		}
	})
}
