package zotero

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/citelinker/resolver/internal/core/config"
	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/resolve/classify"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ProviderConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, nil)
}

func TestResolveByIdentifier(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resolve/identifier" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["identifier"] != "10.1000/xyz" {
			t.Errorf("identifier = %q", body["identifier"])
		}
		json.NewEncoder(w).Encode(ResolveResult{
			Key:      "KEY1",
			Citation: &domain.Citation{Key: "KEY1", Title: "A Paper", Creators: []string{"Doe, J."}, Date: "2021"},
		})
	}))

	res, err := c.ResolveByIdentifier(context.Background(), "10.1000/xyz")
	if err != nil {
		t.Fatalf("ResolveByIdentifier: %v", err)
	}
	if res.Key != "KEY1" || res.Ambiguous() {
		t.Errorf("result = %+v", res)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ResolveResult{
			Candidates: []Candidate{{Identifier: "a"}, {Identifier: "b"}},
		})
	}))

	res, err := c.ResolveByIdentifier(context.Background(), "ambiguous")
	if err != nil {
		t.Fatalf("ResolveByIdentifier: %v", err)
	}
	if !res.Ambiguous() || len(res.Candidates) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestProviderErrorCarriesStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))

	_, err := c.FetchRecord(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *classify.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Errorf("error = %v, want HTTPError 404", err)
	}
	if classify.Classify(err) != classify.CategoryPermanent {
		t.Errorf("404 classified as %s", classify.Classify(err))
	}
}

func TestCreateAndUpdateRecord(t *testing.T) {
	var updated bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/records":
			json.NewEncoder(w).Encode(map[string]string{"key": "NEW1"})
		case r.Method == http.MethodPut && r.URL.Path == "/records/NEW1":
			updated = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	key, err := c.CreateRecord(context.Background(), &domain.Citation{Title: "Manual"})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if key != "NEW1" {
		t.Errorf("key = %q", key)
	}
	if err := c.UpdateRecord(context.Background(), "NEW1", &domain.Citation{Title: "Manual v2"}); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if !updated {
		t.Error("update never reached the server")
	}
}
