package ngram

import (
	"math/rand/v2"
	"strings"
	"testing"
)

// abab is the small corpus used across the package tests.
var abab = []string{"a", "b", "a", "b", "c"}

// newTestGenerator returns a Generator with a fixed seed.
func newTestGenerator() *Generator {
	return NewGenerator(rand.NewPCG(1, 2))
}

// mustBuild builds a table or fails the test.
func mustBuild(t testing.TB, tokens []string, order int) *Table {
	t.Helper()
	table, err := Build(tokens, order)
	if err != nil {
		t.Fatalf("Build(order=%d) error = %v", order, err)
	}
	return table
}

// mustBuildModel builds a model or fails the test.
func mustBuildModel(t testing.TB, tokens []string, maxOrder int) Model {
	t.Helper()
	m, err := BuildModel(tokens, maxOrder)
	if err != nil {
		t.Fatalf("BuildModel(maxOrder=%d) error = %v", maxOrder, err)
	}
	return m
}

// benchmarkTokens returns a repetitive but branching corpus.
func benchmarkTokens() []string {
	const text = "era uma vez uma princesa muito bonita que vivia em um castelo encantado " +
		"no reino distante havia dragões e cavaleiros corajosos que protegiam a terra sagrada " +
		"os habitantes da vila eram felizes e trabalhavam nos campos verdes sob o sol dourado " +
		"a princesa gostava de passear pelos jardins do castelo onde cresciam flores coloridas "
	return strings.Fields(strings.Repeat(text, 200))
}
