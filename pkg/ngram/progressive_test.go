package ngram

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateProgressiveInvalidOrder(t *testing.T) {
	m := mustBuildModel(t, abab, 3)
	for _, order := range []int{0, 1} {
		if _, err := newTestGenerator().GenerateProgressive(m, "a", order, 10); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("GenerateProgressive(maxOrder=%d) error = %v, want ErrInvalidOrder", order, err)
		}
	}
}

func TestGenerateProgressiveUnknownSeed(t *testing.T) {
	m := mustBuildModel(t, abab, 4)
	out, err := newTestGenerator().GenerateProgressive(m, "zebra", 4, 20)
	if err != nil {
		t.Fatalf("GenerateProgressive() error = %v", err)
	}
	if diff := cmp.Diff([]string{"zebra"}, out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestGenerateProgressiveLengthBounds(t *testing.T) {
	m := mustBuildModel(t, benchmarkTokens(), 4)
	g := newTestGenerator()

	tests := []struct {
		length int
		want   int
	}{
		{0, 0},
		{1, 1},
		{10, 10},
		{51, 51},
		{200, 200},
	}
	for _, tt := range tests {
		out, err := g.GenerateProgressive(m, "princesa", 4, tt.length)
		if err != nil {
			t.Fatalf("GenerateProgressive(length=%d) error = %v", tt.length, err)
		}
		// The corpus repeats, so there is always material to reach the target.
		if len(out) != tt.want {
			t.Errorf("GenerateProgressive(length=%d) returned %d tokens, want %d", tt.length, len(out), tt.want)
		}
		if tt.want > 0 && out[0] != "princesa" {
			t.Errorf("output starts with %q, want the seed", out[0])
		}
	}
}

func TestGenerateProgressiveFollowsBigrams(t *testing.T) {
	// Without an order budget the order-2 table does all the work until it
	// reaches a dead end, so every step must be a recorded bigram.
	m := mustBuildModel(t, abab, 3)
	for seed := uint64(0); seed < 20; seed++ {
		g := NewGenerator(rand.NewPCG(seed, seed+1))
		out, err := g.GenerateProgressive(m, "a", 3, 12)
		if err != nil {
			t.Fatalf("GenerateProgressive() error = %v", err)
		}
		if len(out) > 12 {
			t.Fatalf("returned %d tokens, want at most 12", len(out))
		}
		assertChain(t, m[2], out, 12)
	}
}

func TestGenerateProgressiveLowerOrderFallback(t *testing.T) {
	// "b" closes the corpus, so the order-3 table has no (c, b) context while
	// the order-2 table still knows that "b" is followed by "c".
	m := mustBuildModel(t, []string{"a", "b", "c", "b"}, 3)

	tests := []struct {
		name     string
		fallback Fallback
		want     []string
	}{
		{"lower-order", FallbackLowerOrder, []string{"a", "b", "c", "b", "c", "b"}},
		{"same-table", FallbackSameTable, []string{"a", "b", "c", "b"}},
		{"none", FallbackNone, []string{"a", "b", "c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newTestGenerator().GenerateProgressive(m, "a", 3, 6,
				WithOrderBudget(1), WithFallback(tt.fallback))
			if err != nil {
				t.Fatalf("GenerateProgressive() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Errorf("unexpected output (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateProgressiveOrderBudgetEscalates(t *testing.T) {
	tokens := strings.Fields("um dois três quatro cinco seis sete oito")
	m := mustBuildModel(t, tokens, 4)

	out, err := newTestGenerator().GenerateProgressive(m, "um", 4, 20, WithOrderBudget(1))
	if err != nil {
		t.Fatalf("GenerateProgressive() error = %v", err)
	}
	if diff := cmp.Diff(tokens, out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestGenerateProgressiveSkipsMissingOrders(t *testing.T) {
	full := mustBuildModel(t, strings.Fields("um dois três quatro"), 3)
	m := Model{3: full[3]}

	// With no order-2 table the single seed can never form a context.
	out, err := newTestGenerator().GenerateProgressive(m, "um", 3, 10)
	if err != nil {
		t.Fatalf("GenerateProgressive() error = %v", err)
	}
	if diff := cmp.Diff([]string{"um"}, out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestGenerateProgressiveRetryCap(t *testing.T) {
	// Each unrecoverable miss ends its order and each success resets the
	// count, so even the smallest cap gives the same run as the default.
	m := mustBuildModel(t, benchmarkTokens()[:60], 4)
	for _, fallback := range []Fallback{FallbackLowerOrder, FallbackSameTable, FallbackNone} {
		want, err := newTestGenerator().GenerateProgressive(m, "princesa", 4, 80, WithFallback(fallback), WithOrderBudget(3))
		if err != nil {
			t.Fatalf("GenerateProgressive() error = %v", err)
		}
		got, err := newTestGenerator().GenerateProgressive(m, "princesa", 4, 80, WithFallback(fallback), WithOrderBudget(3), WithRetryCap(1))
		if err != nil {
			t.Fatalf("GenerateProgressive(retry cap 1) error = %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%v: retry cap 1 changed the output (-default +cap 1):\n%s", fallback, diff)
		}
	}
}

func TestGenerateProgressiveDegradesToBigrams(t *testing.T) {
	// No 4-gram of abab repeats, so the higher orders add nothing once the
	// bigram table reaches the final "c".
	m := mustBuildModel(t, abab, 4)
	for seed := uint64(0); seed < 20; seed++ {
		g := NewGenerator(rand.NewPCG(seed, seed+1))
		out, err := g.GenerateProgressive(m, "a", 4, 10)
		if err != nil {
			t.Fatalf("GenerateProgressive() error = %v", err)
		}
		if len(out) > 10 {
			t.Fatalf("returned %d tokens, want at most 10", len(out))
		}
		if out[0] != "a" {
			t.Fatalf("output %v does not start with the seed", out)
		}
		assertChain(t, m[2], out, 10)
		if len(out) < 10 && out[len(out)-1] != "c" {
			t.Errorf("output %v stopped before reaching the dead end", out)
		}
	}
}

func TestParseFallback(t *testing.T) {
	for _, f := range []Fallback{FallbackLowerOrder, FallbackSameTable, FallbackNone} {
		got, err := ParseFallback(f.String())
		if err != nil || got != f {
			t.Errorf("ParseFallback(%q) = %v, %v; want %v", f.String(), got, err, f)
		}
	}
	if got, err := ParseFallback(""); err != nil || got != FallbackLowerOrder {
		t.Errorf("ParseFallback(\"\") = %v, %v; want lower-order", got, err)
	}
	if _, err := ParseFallback("sideways"); err == nil {
		t.Error("ParseFallback(\"sideways\") succeeded, want an error")
	}
}

func BenchmarkGenerateProgressive(b *testing.B) {
	m := mustBuildModel(b, benchmarkTokens(), 6)
	g := newTestGenerator()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = g.GenerateProgressive(m, "princesa", 6, 100, WithOrderBudget(8))
	}
}
