package kernel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"routecodex-hq/routecodex/pkg/config"
)

func testProviderConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		ProviderProtocol:     "openai-chat",
		ProviderID:           "test",
		CompatibilityProfile: "openai",
		BaseURL:              baseURL,
		Auth:                 config.AuthConfig{Type: "apikey", APIKey: "sk-test"},
		Timeout:              5 * time.Second,
		Retry: config.RetryConfig{
			Policy:      "retry-immediate",
			MaxAttempts: 3,
			Delay:       time.Millisecond,
		},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     time.Second,
	}
}

type captureSink struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (s *captureSink) Record(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func TestDoRetriesOn5xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	k, err := New("test", testProviderConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer k.Close()

	body, status, _, err := k.DoBytes(context.Background(), &Exchange{
		Method:    http.MethodPost,
		URL:       srv.URL + "/v1/chat/completions",
		Body:      []byte(`{}`),
		RequestID: "req-1",
	})
	if err != nil {
		t.Fatalf("DoBytes() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want 3", calls)
	}
}

func TestNewFloorsZeroAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := testProviderConfig(srv.URL)
	cfg.Retry = config.RetryConfig{}
	k, err := New("test", cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer k.Close()

	raw, status, _, err := k.DoBytes(context.Background(), &Exchange{
		Method: http.MethodGet, URL: srv.URL, RequestID: "r1",
	})
	if err != nil {
		t.Fatalf("DoBytes() error = %v", err)
	}
	if status != http.StatusOK || len(raw) == 0 {
		t.Errorf("status = %d, body = %q", status, raw)
	}
}

func TestDoDoesNotRetryAuthFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	k, err := New("test", testProviderConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer k.Close()

	_, _, _, err = k.DoBytes(context.Background(), &Exchange{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   []byte(`{}`),
	})
	ke, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ke.Code != CodeAuthRejected {
		t.Errorf("code = %q, want %q", ke.Code, CodeAuthRejected)
	}
	if ke.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", ke.StatusCode)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1 (no retry)", calls)
	}
}

func TestDoAppliesCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	k, err := New("test", testProviderConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer k.Close()

	if _, _, _, err := k.DoBytes(context.Background(), &Exchange{Method: "POST", URL: srv.URL, Body: []byte(`{}`)}); err != nil {
		t.Fatalf("DoBytes() error = %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer sk-test")
	}
}

func TestSnapshotsRedactAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sink := &captureSink{}
	k, err := New("test", testProviderConfig(srv.URL), sink)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer k.Close()

	ex := &Exchange{
		Method:    "POST",
		URL:       srv.URL,
		Headers:   map[string]string{"Authorization": "Bearer secret", "X-Thing": "ok"},
		Body:      []byte(`{}`),
		RequestID: "req-2",
	}
	if _, _, _, err := k.DoBytes(context.Background(), ex); err != nil {
		t.Fatalf("DoBytes() error = %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2 (request + response)", len(sink.snapshots))
	}
	req := sink.snapshots[0]
	if req.Phase != "request" || req.RequestID != "req-2" {
		t.Errorf("request snapshot = %+v", req)
	}
	if req.Headers["Authorization"] != "[REDACTED]" {
		t.Errorf("Authorization not redacted: %q", req.Headers["Authorization"])
	}
	if req.Headers["X-Thing"] != "ok" {
		t.Errorf("non-secret header altered: %q", req.Headers["X-Thing"])
	}
}

func TestTokenFileCredentialReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("tok-1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cred, err := newTokenFileCredential("test", path)
	if err != nil {
		t.Fatalf("newTokenFileCredential() error = %v", err)
	}
	defer cred.Close()

	req, _ := http.NewRequest("POST", "http://example.invalid", nil)
	if err := cred.Apply(req); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", got)
	}

	if err := os.WriteFile(path, []byte("tok-2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The watcher delivers asynchronously; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest("POST", "http://example.invalid", nil)
		if err := cred.Apply(req); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if req.Header.Get("Authorization") == "Bearer tok-2" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("token file change was not picked up")
}

func TestBackoffPolicies(t *testing.T) {
	tests := []struct {
		policy  string
		attempt int
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"retry-immediate", 2, 0, 5 * time.Millisecond},
		{"retry-delayed", 3, 10 * time.Millisecond, 100 * time.Millisecond},
		{"retry-exponential", 3, 20 * time.Millisecond, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			k := &Kernel{
				providerKey: "test",
				retry: config.RetryConfig{
					Policy:      tt.policy,
					MaxAttempts: 3,
					Delay:       10 * time.Millisecond,
				},
			}
			start := time.Now()
			if err := k.backoff(context.Background(), tt.attempt); err != nil {
				t.Fatalf("backoff() error = %v", err)
			}
			elapsed := time.Since(start)
			if elapsed < tt.wantMin || elapsed > tt.wantMax {
				t.Errorf("backoff took %v, want between %v and %v", elapsed, tt.wantMin, tt.wantMax)
			}
		})
	}
}
