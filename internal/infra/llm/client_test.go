package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"
)

func chatServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": answer}},
			},
		})
	}))
}

func TestExtractCitation(t *testing.T) {
	srv := chatServer(t, `{"title":"Weak Consistency Models","creators":["Doe, Jane"],"date":"2023-04-01","item_type":"blogPost"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "gpt-4o-mini", "test-key", 5*time.Second)
	citation, err := client.ExtractCitation(context.Background(), "# Weak Consistency Models\n...", "https://example.com/post")
	if err != nil {
		t.Fatalf("ExtractCitation: %v", err)
	}
	if citation.Title != "Weak Consistency Models" {
		t.Errorf("title = %q", citation.Title)
	}
	if len(citation.Creators) != 1 || citation.Creators[0] != "Doe, Jane" {
		t.Errorf("creators = %v", citation.Creators)
	}
	if citation.ItemType != "blogPost" {
		t.Errorf("item type = %q", citation.ItemType)
	}
}

func TestExtractCitationCodeFence(t *testing.T) {
	srv := chatServer(t, "```json\n{\"title\":\"Fenced\",\"creators\":[],\"date\":\"\",\"item_type\":\"\"}\n```")
	defer srv.Close()

	client := NewClient(srv.URL, "gpt-4o-mini", "test-key", 5*time.Second)
	citation, err := client.ExtractCitation(context.Background(), "text", "https://example.com")
	if err != nil {
		t.Fatalf("ExtractCitation: %v", err)
	}
	if citation.Title != "Fenced" {
		t.Errorf("title = %q", citation.Title)
	}
	if citation.ItemType != "webpage" {
		t.Errorf("item type = %q, want webpage default", citation.ItemType)
	}
}

func TestExtractCitationNoTitle(t *testing.T) {
	srv := chatServer(t, `{"title":"","creators":[],"date":"","item_type":""}`)
	defer srv.Close()

	client := NewClient(srv.URL, "gpt-4o-mini", "test-key", 5*time.Second)
	if _, err := client.ExtractCitation(context.Background(), "text", "https://example.com"); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestTruncateToRune(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short untouched", "héllo", 10, "héllo"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"cut lands mid-rune", "aé", 2, "a"},
		{"cut on rune boundary", "aéb", 3, "aé"},
		{"multi-byte run", "ééé", 3, "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateToRune(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncateToRune(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncation produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestExtractCitationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "gpt-4o-mini", "test-key", 5*time.Second)
	if _, err := client.ExtractCitation(context.Background(), "text", "https://example.com"); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
