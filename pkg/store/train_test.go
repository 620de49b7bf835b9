package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/CTAG07/lerolero/pkg/ngram"
)

func TestTrainAndLoadModel(t *testing.T) {
	tokens := testCorpus()
	ctx, _, s, model := setupTestDBWithTraining(t, tokens, 4)

	if model.TokenCount != len(tokens) {
		t.Errorf("TokenCount = %d, want %d", model.TokenCount, len(tokens))
	}

	got, err := s.LoadModel(ctx, model)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	want, _ := ngram.BuildModel(tokens, 4)
	assertSameModel(t, want, got)

	for _, order := range want.Orders() {
		if got[order].TotalObservations() != want[order].TotalObservations() {
			t.Errorf("order %d: %d observations, want %d", order, got[order].TotalObservations(), want[order].TotalObservations())
		}
	}
}

func TestLoadedModelGenerates(t *testing.T) {
	ctx, _, s, model := setupTestDBWithTraining(t, testCorpus(), 3)

	m, err := s.LoadModel(ctx, model)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	out, err := ngram.NewGenerator(nil).GenerateProgressive(m, "gato", 3, 20)
	if err != nil {
		t.Fatalf("GenerateProgressive() error = %v", err)
	}
	if len(out) == 0 || out[0] != "gato" {
		t.Errorf("unexpected output %v", out)
	}
}

func TestTrainReplacesData(t *testing.T) {
	ctx, db, s, model := setupTestDBWithTraining(t, testCorpus(), 2)

	if err := s.Train(ctx, model, strings.Fields("um dois três")); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	var count int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ngram_transitions WHERE model_id = ?", model.Id).Scan(&count)
	if count != 2 {
		t.Errorf("expected 2 transitions after retraining, found %d", count)
	}

	table, err := s.LoadTable(ctx, model, 2)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if table.Has(ngram.Context{"gato"}) {
		t.Error("old data survived retraining")
	}
	if !table.Has(ngram.Context{"dois"}) {
		t.Error("new data is missing after retraining")
	}
}

func TestLoadTableOrderOutOfRange(t *testing.T) {
	ctx, _, s, model := setupTestDBWithTraining(t, testCorpus(), 3)

	for _, order := range []int{1, 4} {
		if _, err := s.LoadTable(ctx, model, order); !errors.Is(err, ngram.ErrInvalidOrder) {
			t.Errorf("LoadTable(order=%d) error = %v, want ErrInvalidOrder", order, err)
		}
	}
}

func TestTrainInvalidOrder(t *testing.T) {
	ctx, _, s, model := setupTestDBWithTraining(t, testCorpus(), 2)
	model.MaxOrder = 1
	if err := s.Train(ctx, model, testCorpus()); !errors.Is(err, ngram.ErrInvalidOrder) {
		t.Errorf("Train() error = %v, want ErrInvalidOrder", err)
	}
}

func BenchmarkTrain(b *testing.B) {
	tokens := strings.Fields(strings.Repeat("era uma vez uma princesa que vivia num castelo encantado ", 500))
	s := setupTestDBBench(b)
	model, err := s.CreateModel(b.Context(), ModelInfo{Name: "bench", MaxOrder: 4})
	if err != nil {
		b.Fatalf("CreateModel() error = %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Train(b.Context(), model, tokens); err != nil {
			b.Fatalf("Train() error = %v", err)
		}
	}
}
