package ngram

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCollapse(t *testing.T) {
	got := collapse([]string{"b", "a", "b", "c", "b"})
	want := []Candidate{{"b", 3}, {"a", 1}, {"c", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("collapse() mismatch (-want +got):\n%s", diff)
	}
}

func TestSampleDistribution(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	candidates := []Candidate{{"gato", 3}, {"cão", 1}}

	const draws = 20000
	hits := 0
	for i := 0; i < draws; i++ {
		if sample(rng, candidates) == "gato" {
			hits++
		}
	}
	if ratio := float64(hits) / draws; math.Abs(ratio-0.75) > 0.02 {
		t.Errorf("gato drawn %.3f of the time, want about 0.75", ratio)
	}
}

func TestSampleUniformOverOccurrences(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	candidates := occurrences([]string{"gato", "gato", "gato", "cão"})

	const draws = 20000
	hits := 0
	for i := 0; i < draws; i++ {
		if sample(rng, candidates) == "gato" {
			hits++
		}
	}
	if ratio := float64(hits) / draws; math.Abs(ratio-0.75) > 0.02 {
		t.Errorf("gato drawn %.3f of the time, want about 0.75", ratio)
	}
}

func TestSampleZeroWeights(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	if got := sample(rng, []Candidate{{"x", 0}, {"y", 0}}); got != "x" {
		t.Errorf("sample() = %q, want x", got)
	}
}

func TestShape(t *testing.T) {
	base := []Candidate{{"a", 1}, {"b", 4}, {"c", 2}}

	t.Run("identity", func(t *testing.T) {
		if diff := cmp.Diff(base, shape(base, 1.0, 0)); diff != "" {
			t.Errorf("shape() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("greedy", func(t *testing.T) {
		want := []Candidate{{"b", 4}}
		if diff := cmp.Diff(want, shape(base, 0, 0)); diff != "" {
			t.Errorf("shape() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("top-k", func(t *testing.T) {
		want := []Candidate{{"b", 4}, {"c", 2}}
		if diff := cmp.Diff(want, shape(base, 1.0, 2)); diff != "" {
			t.Errorf("shape() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sharpen", func(t *testing.T) {
		got := shape(base, 0.5, 0)
		// Weights are squared and scaled so the largest becomes 1.
		want := []float64{1.0 / 16, 1, 4.0 / 16}
		for i, c := range got {
			if math.Abs(c.Weight-want[i]) > 1e-9 {
				t.Errorf("weight of %s = %v, want %v", c.Token, c.Weight, want[i])
			}
		}
	})

	t.Run("flatten", func(t *testing.T) {
		got := shape(base, 2.0, 0)
		// Square roots, scaled by sqrt(4).
		want := []float64{0.5, 1, math.Sqrt(2) / 2}
		for i, c := range got {
			if math.Abs(c.Weight-want[i]) > 1e-9 {
				t.Errorf("weight of %s = %v, want %v", c.Token, c.Weight, want[i])
			}
		}
	})

	// The input slice is never reordered.
	if base[0].Token != "a" || base[1].Token != "b" {
		t.Errorf("shape() reordered its input: %v", base)
	}
}
