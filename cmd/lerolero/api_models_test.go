package main

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/CTAG07/lerolero/pkg/store"
)

func TestCreateAndListModels(t *testing.T) {
	server := setupTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/models", "", CreateModelRequest{Name: "pessoa", MaxOrder: 4})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[store.ModelInfo](t, rec)
	if created.Name != "pessoa" || created.MaxOrder != 4 || created.Id == 0 {
		t.Errorf("unexpected created model %+v", created)
	}
	expectStatus(t, doJSON(t, server, http.MethodPost, "/api/models", "", CreateModelRequest{Name: "camoes", MaxOrder: 2}), http.StatusCreated)

	rec = doRequest(t, server, http.MethodGet, "/api/models", "", nil)
	expectStatus(t, rec, http.StatusOK)
	var names []string
	for _, m := range decode[[]store.ModelInfo](t, rec) {
		names = append(names, m.Name)
	}
	if diff := cmp.Diff([]string{"camoes", "pessoa"}, names); diff != "" {
		t.Errorf("model listing mismatch (-want +got):\n%s", diff)
	}

	rec = doRequest(t, server, http.MethodGet, "/api/models/pessoa", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[store.ModelInfo](t, rec); got != created {
		t.Errorf("GET model = %+v, want %+v", got, created)
	}
}

func TestCreateModelRejects(t *testing.T) {
	server := setupTestServer(t)
	expectStatus(t, doJSON(t, server, http.MethodPost, "/api/models", "", CreateModelRequest{Name: "dup", MaxOrder: 3}), http.StatusCreated)

	testCases := []struct {
		name string
		req  CreateModelRequest
		want int
	}{
		{"duplicate", CreateModelRequest{Name: "dup", MaxOrder: 3}, http.StatusConflict},
		{"order too low", CreateModelRequest{Name: "low", MaxOrder: 1}, http.StatusBadRequest},
		{"order too high", CreateModelRequest{Name: "high", MaxOrder: 7}, http.StatusBadRequest},
		{"blank name", CreateModelRequest{Name: " ", MaxOrder: 3}, http.StatusBadRequest},
		{"reserved name", CreateModelRequest{Name: "import", MaxOrder: 3}, http.StatusBadRequest},
		{"slash", CreateModelRequest{Name: "a/b", MaxOrder: 3}, http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, doJSON(t, server, http.MethodPost, "/api/models", "", tc.req), tc.want)
		})
	}
}

func TestTrainModel(t *testing.T) {
	server := setupTestServer(t)
	expectStatus(t, doJSON(t, server, http.MethodPost, "/api/models", "", CreateModelRequest{Name: "gatos", MaxOrder: 3}), http.StatusCreated)

	rec := doRequest(t, server, http.MethodPost, "/api/models/gatos/train", "", strings.NewReader(testCorpusText))
	expectStatus(t, rec, http.StatusOK)
	resp := decode[TrainResponse](t, rec)
	if resp.Model.TokenCount != 15 {
		t.Errorf("token count = %d, want 15", resp.Model.TokenCount)
	}
	if len(resp.Tables) != 2 || resp.Tables[0].Observations != 14 || resp.Tables[1].Observations != 13 {
		t.Errorf("unexpected table stats %+v", resp.Tables)
	}

	// The registry holds the trained model without a reload.
	if server.registry.Loaded() != 1 {
		t.Errorf("registry holds %d models, want 1", server.registry.Loaded())
	}

	stored, err := server.store.GetModelInfo(t.Context(), "gatos")
	if err != nil {
		t.Fatalf("GetModelInfo() error = %v", err)
	}
	if stored.TokenCount != 15 {
		t.Errorf("stored token count = %d, want 15", stored.TokenCount)
	}

	expectStatus(t, doRequest(t, server, http.MethodPost, "/api/models/gatos/train", "", strings.NewReader("!!! ...")), http.StatusBadRequest)
	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/gatos/train", "", nil), http.StatusMethodNotAllowed)
	expectStatus(t, doRequest(t, server, http.MethodPost, "/api/models/nobody/train", "", strings.NewReader(testCorpusText)), http.StatusNotFound)
}

func TestPruneModelEndpoint(t *testing.T) {
	server := setupTrainedServer(t, 2)
	// Load the model so the prune has a cache entry to drop.
	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/test/generate?seed=gato", "", nil), http.StatusOK)

	rec := doJSON(t, server, http.MethodPost, "/api/models/test/prune", "", PruneRequest{MinFreq: 1})
	expectStatus(t, rec, http.StatusOK)
	// Every bigram seen once goes: the three after "gato" and the two
	// after "rato". The order 2 model has no other table.
	if removed := decode[map[string]int64](t, rec)["removed"]; removed != 5 {
		t.Errorf("prune removed %d transitions, want 5", removed)
	}
	if server.registry.Loaded() != 0 {
		t.Error("prune did not invalidate the cached model")
	}

	rec = doRequest(t, server, http.MethodGet, "/api/models/test/candidates?context=o", "", nil)
	expectStatus(t, rec, http.StatusOK)
	want := []CandidateResponse{{Token: "gato", Count: 3}, {Token: "rato", Count: 2}}
	if diff := cmp.Diff(want, decode[[]CandidateResponse](t, rec)); diff != "" {
		t.Errorf("candidates after prune mismatch (-want +got):\n%s", diff)
	}

	expectStatus(t, doJSON(t, server, http.MethodPost, "/api/models/test/prune", "", PruneRequest{MinFreq: 0}), http.StatusBadRequest)
}

func TestExportAndImport(t *testing.T) {
	source := setupTrainedServer(t, 3)

	rec := doRequest(t, source, http.MethodGet, "/api/models/test/export", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "test.json") {
		t.Errorf("unexpected Content-Disposition %q", rec.Header().Get("Content-Disposition"))
	}
	exported := rec.Body.Bytes()

	target := setupTestServer(t)
	rec = doRequest(t, target, http.MethodPost, "/api/models/import", "", bytes.NewReader(exported))
	expectStatus(t, rec, http.StatusOK)
	imported := decode[store.ModelInfo](t, rec)
	if imported.Name != "test" || imported.MaxOrder != 3 || imported.TokenCount != 15 {
		t.Errorf("unexpected imported model %+v", imported)
	}

	// Both servers give the same continuations.
	for _, server := range []*Server{source, target} {
		rec = doRequest(t, server, http.MethodGet, "/api/models/test/candidates?context=o+rato", "", nil)
		expectStatus(t, rec, http.StatusOK)
		want := []CandidateResponse{{Token: "e", Count: 1}, {Token: "viu", Count: 1}}
		if diff := cmp.Diff(want, decode[[]CandidateResponse](t, rec)); diff != "" {
			t.Errorf("candidates mismatch (-want +got):\n%s", diff)
		}
	}

	expectStatus(t, doRequest(t, target, http.MethodPost, "/api/models/import", "", strings.NewReader("{")), http.StatusBadRequest)
}

func TestLimitedExport(t *testing.T) {
	server := setupTrainedServer(t, 3)

	rec := doRequest(t, server, http.MethodGet, "/api/models/test/export?order=2&max_contexts=1", "", nil)
	expectStatus(t, rec, http.StatusOK)
	want := TableExport{
		Order: 2,
		Contexts: []ContextExport{
			{Context: []string{"o"}, Continuations: map[string]int{"gato": 3, "rato": 2}},
		},
	}
	if diff := cmp.Diff(want, decode[TableExport](t, rec)); diff != "" {
		t.Errorf("limited export mismatch (-want +got):\n%s", diff)
	}

	rec = doRequest(t, server, http.MethodGet, "/api/models/test/export?order=2&min_observations=2", "", nil)
	expectStatus(t, rec, http.StatusOK)
	var contexts [][]string
	for _, c := range decode[TableExport](t, rec).Contexts {
		contexts = append(contexts, c.Context)
	}
	// First-seen order: o, gato, viu, rato, e.
	wantContexts := [][]string{{"o"}, {"gato"}, {"viu"}, {"rato"}, {"e"}}
	if diff := cmp.Diff(wantContexts, contexts); diff != "" {
		t.Errorf("min_observations export mismatch (-want +got):\n%s", diff)
	}

	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/test/export?order=4", "", nil), http.StatusBadRequest)
	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/test/export?order=x", "", nil), http.StatusBadRequest)
}

func TestDeleteModel(t *testing.T) {
	server := setupTrainedServer(t, 2)
	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/test/stats", "", nil), http.StatusOK)

	expectStatus(t, doRequest(t, server, http.MethodDelete, "/api/models/test", "", nil), http.StatusNoContent)
	if server.registry.Loaded() != 0 {
		t.Error("delete did not invalidate the cached model")
	}
	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/test", "", nil), http.StatusNotFound)
	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/test/generate", "", nil), http.StatusNotFound)
}

func TestUnknownAction(t *testing.T) {
	server := setupTrainedServer(t, 2)
	expectStatus(t, doRequest(t, server, http.MethodGet, "/api/models/test/dance", "", nil), http.StatusNotFound)
}
