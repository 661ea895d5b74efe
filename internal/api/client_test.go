package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/dex-scanner/internal/model"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com", "")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 2 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 2)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://api.example.com", "key",
			WithTimeout(5*time.Second),
			WithRetries(5, 20*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.maxRetries != 5 || c.retryBackoff != 20*time.Millisecond {
			t.Errorf("retries = %d/%v, want 5/20ms", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.example.com", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{StatusCode: 404, Message: "Not Found"}
		expected := "scanner api error 404: Not Found"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code int
			want bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{429, true},
			{400, false},
			{403, false},
			{404, false},
		}
		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, got, tt.want)
			}
		}
	})
}

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unauthorized", &APIError{StatusCode: 401}, true},
		{"forbidden", &APIError{StatusCode: 403}, true},
		{"legal", &APIError{StatusCode: 451}, true},
		{"wrapped forbidden", errors.Join(errors.New("get scanner page"), &APIError{StatusCode: 403}), true},
		{"server error", &APIError{StatusCode: 500}, false},
		{"unreachable", ErrUnreachable, true},
		{"generic", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlocked(tt.err); got != tt.want {
				t.Errorf("IsBlocked = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestDoRequest tests the base HTTP request method.
func TestDoRequest(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want application/json", r.Header.Get("Accept"))
			}
			if r.Header.Get("Authorization") != "Bearer key" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer key")
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		body, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q", string(body))
		}
	})

	t.Run("request without API key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "blocked"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 403 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 403)
		}
		if !strings.Contains(string(apiErr.Body), "blocked") {
			t.Errorf("Body should contain 'blocked', got %q", string(apiErr.Body))
		}
		if !IsBlocked(err) {
			t.Error("403 should be reported as blocked")
		}
	})

	t.Run("transport failure is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := NewClient(url, "")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("expected ErrUnreachable, got %v", err)
		}
		if !IsBlocked(err) {
			t.Error("unreachable should be reported as blocked")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if errors.Is(err, ErrUnreachable) {
			t.Error("cancellation should not be reported as unreachable")
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, 5*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt32(&attempts); got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, 5*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if got := atomic.LoadInt32(&attempts); got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(2, 5*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Fatalf("expected max retries error, got %v", err)
		}
		if got := atomic.LoadInt32(&attempts); got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
	})
}

func TestGetScannerPage(t *testing.T) {
	t.Run("sends filter and page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/scanner" {
				t.Errorf("path = %q, want /scanner", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("chain") != "SOL" {
				t.Errorf("chain = %q, want SOL", q.Get("chain"))
			}
			if q.Get("rankBy") != "volume" {
				t.Errorf("rankBy = %q, want volume", q.Get("rankBy"))
			}
			if q.Get("minVol24H") != "1500.5" {
				t.Errorf("minVol24H = %q, want 1500.5", q.Get("minVol24H"))
			}
			if q.Get("isNotHP") != "true" {
				t.Errorf("isNotHP = %q, want true", q.Get("isNotHP"))
			}
			if q.Has("maxAge") {
				t.Error("nil maxAge should be omitted")
			}
			if q.Get("page") != "2" {
				t.Errorf("page = %q, want 2", q.Get("page"))
			}

			json.NewEncoder(w).Encode(map[string]any{
				"pairs": []map[string]any{
					{"pairAddress": "P1", "token1Address": "T1", "chainId": 900, "price": "0.5"},
					{"pairAddress": "P2", "token1Address": "T2", "chainId": 900, "price": 1.25},
				},
				"totalRows": 120,
			})
		}))
		defer server.Close()

		chain := "SOL"
		rank := model.RankVolume
		vol := 1500.5
		notHP := true
		f := model.Filter{Chain: &chain, RankBy: &rank, MinVol24H: &vol, IsNotHP: &notHP}

		c := NewClient(server.URL, "")
		resp, err := c.GetScannerPage(context.Background(), f, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.TotalRows != 120 {
			t.Errorf("TotalRows = %d, want 120", resp.TotalRows)
		}
		if len(resp.Pairs) != 2 {
			t.Fatalf("len(Pairs) = %d, want 2", len(resp.Pairs))
		}
		if resp.Pairs[1].Price != "1.25" {
			t.Errorf("numeric price = %q, want 1.25", resp.Pairs[1].Price)
		}
	})

	t.Run("error response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnavailableForLegalReasons)
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.GetScannerPage(context.Background(), model.Filter{}, 1)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !IsBlocked(err) {
			t.Errorf("451 should be blocked, got %v", err)
		}
	})

	t.Run("invalid JSON response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.GetScannerPage(context.Background(), model.Filter{}, 1)
		if err == nil || !strings.Contains(err.Error(), "unmarshal response") {
			t.Fatalf("expected unmarshal error, got %v", err)
		}
		if IsBlocked(err) {
			t.Error("decode failure should be a generic failure")
		}
	})
}
