package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CTAG07/lerolero/pkg/ngram"
)

// setupTestDB creates a new SQLite database in a temp dir and a Store for
// testing. It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := New(db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// setupTestDBBench creates a Store for benchmarking.
func setupTestDBBench(b *testing.B) *Store {
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=OFF&_cache_size=-16000")
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		b.Fatalf("failed to set up schema: %v", err)
	}

	s, err := New(db)
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	b.Cleanup(s.Close)
	return s
}

// setupTestDBWithTraining is a convenience helper that also trains a model
// on tokens.
func setupTestDBWithTraining(t *testing.T, tokens []string, maxOrder int) (context.Context, *sql.DB, *Store, ModelInfo) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	model, err := s.CreateModel(ctx, ModelInfo{Name: "test_model", MaxOrder: maxOrder})
	if err != nil {
		t.Fatalf("setup: CreateModel() failed: %v", err)
	}
	if err := s.Train(ctx, model, tokens); err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	model, err = s.GetModelInfo(ctx, model.Name)
	if err != nil {
		t.Fatalf("setup: GetModelInfo() failed: %v", err)
	}
	return ctx, db, s, model
}

// testCorpus is small enough to reason about and still branches.
func testCorpus() []string {
	return strings.Fields("o gato viu o rato e o rato viu o gato e o gato fugiu")
}

// assertSameModel compares two models order by order: same contexts in the
// same order, and the same weighted continuations for each.
func assertSameModel(t *testing.T, want, got ngram.Model) {
	t.Helper()
	if diff := cmp.Diff(want.Orders(), got.Orders()); diff != "" {
		t.Fatalf("orders mismatch (-want +got):\n%s", diff)
	}
	for _, order := range want.Orders() {
		if diff := cmp.Diff(want[order].Contexts(), got[order].Contexts()); diff != "" {
			t.Errorf("order %d: contexts mismatch (-want +got):\n%s", order, diff)
			continue
		}
		for _, c := range want[order].Contexts() {
			if diff := cmp.Diff(want[order].Candidates(c), got[order].Candidates(c)); diff != "" {
				t.Errorf("order %d, context %q: candidates mismatch (-want +got):\n%s", order, c, diff)
			}
		}
	}
}
