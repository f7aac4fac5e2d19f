package lm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dhkalign "github.com/dhkalign/gateway/internal"
)

func TestClient_Translate_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth: %q", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello"}},
			},
		})
	}))
	defer srv.Close()

	c := &Client{
		cfg: Config{Enabled: true, BaseURL: srv.URL, Model: "test-model", APIKey: "test-key", MaxTokens: 128, TimeoutMS: 2000},
		http: srv.Client(),
		apiKey: "test-key",
	}

	out, err := c.Translate(context.Background(), "ami bhalo achi", "bn-rom", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

func TestClient_Translate_Disabled(t *testing.T) {
	t.Parallel()
	c := &Client{cfg: Config{Enabled: false}}
	if _, err := c.Translate(context.Background(), "x", "bn-rom", "en"); err != dhkalign.ErrUpstreamDown {
		t.Errorf("got %v, want ErrUpstreamDown", err)
	}
}

func TestClient_Translate_UpstreamErrorNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"message":"upstream exploded"}}`))
	}))
	defer srv.Close()

	c := &Client{
		cfg:    Config{Enabled: true, BaseURL: srv.URL, Model: "test-model", APIKey: "k", MaxTokens: 10, TimeoutMS: 2000},
		http:   srv.Client(),
		apiKey: "k",
	}

	_, err := c.Translate(context.Background(), "x", "bn-rom", "en")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (HTTP error responses are not retried)", calls)
	}
}

func TestClient_Translate_TimeoutDeadline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	c := &Client{
		cfg:    Config{Enabled: true, BaseURL: srv.URL, Model: "test-model", APIKey: "k", MaxTokens: 10, TimeoutMS: 2000},
		http:   srv.Client(),
		apiKey: "k",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.Translate(ctx, "x", "bn-rom", "en"); err == nil {
		t.Fatal("expected timeout error")
	}
}
