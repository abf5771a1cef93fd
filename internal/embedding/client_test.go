package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientCreation(t *testing.T) {
	client := NewClient("http://localhost:11434", "nomic-embed-text", WithMaxRetries(5), WithTimeout(time.Second))

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.baseURL != "http://localhost:11434" {
		t.Errorf("Expected baseURL to be http://localhost:11434, got %s", client.baseURL)
	}
	if client.model != "nomic-embed-text" {
		t.Errorf("Expected model to be nomic-embed-text, got %s", client.model)
	}
	if client.maxRetries != 5 || client.client.Timeout != time.Second {
		t.Errorf("Options not applied: retries=%d timeout=%v", client.maxRetries, client.client.Timeout)
	}
}

func embeddingServer(t *testing.T, failures int, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" || req.Input == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if int(n) <= failures {
			http.Error(w, "unavailable", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.25,-0.5,1]}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGenerateEmbedding(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv, calls := embeddingServer(t, 0, 0)
		client := NewClient(srv.URL, "test-model")

		vec, err := client.Generate(context.Background(), "test text")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(vec) != 3 || vec[0] != 0.25 || vec[1] != -0.5 || vec[2] != 1 {
			t.Errorf("Unexpected embedding %v", vec)
		}
		if calls.Load() != 1 {
			t.Errorf("Expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		srv, calls := embeddingServer(t, 2, http.StatusServiceUnavailable)
		client := NewClient(srv.URL, "test-model", WithRetryInterval(time.Millisecond))

		if _, err := client.Generate(context.Background(), "test text"); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("Expected 3 calls, got %d", calls.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		srv, calls := embeddingServer(t, 100, http.StatusInternalServerError)
		client := NewClient(srv.URL, "test-model", WithRetryInterval(time.Millisecond), WithMaxRetries(2))

		_, err := client.Generate(context.Background(), "test text")
		if err == nil || !strings.Contains(err.Error(), "500") {
			t.Fatalf("Expected status 500 error, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("Expected 3 calls, got %d", calls.Load())
		}
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		srv, calls := embeddingServer(t, 100, http.StatusBadRequest)
		client := NewClient(srv.URL, "test-model", WithRetryInterval(time.Millisecond))

		if _, err := client.Generate(context.Background(), "test text"); err == nil {
			t.Fatal("Expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("Expected no retries, got %d calls", calls.Load())
		}
	})

	t.Run("empty response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		if _, err := NewClient(srv.URL, "m").Generate(context.Background(), "x"); err == nil {
			t.Error("Expected error for empty embedding list")
		}
	})
}
