package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(handler http.HandlerFunc) (*httptest.Server, *int64) {
	var count int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&count, 1)
		handler(w, r)
	}))
	return server, &count
}

func newRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}

func TestSubmitAwait(t *testing.T) {
	server, _ := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok": true}`))
	})
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Delay = time.Millisecond
	client := New(cfg)
	defer client.Close()

	handle := client.Submit(newRequest(t, server.URL))
	resp, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok": true}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want application/json", resp.ContentType)
	}
}

func TestDispatchSpacing(t *testing.T) {
	server, count := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Delay = 100 * time.Millisecond
	client := New(cfg)
	defer client.Close()

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		handle := client.Submit(newRequest(t, server.URL))
		if _, err := handle.Await(ctx); err != nil {
			t.Fatalf("Await() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// Three dispatches require at least two full delay windows.
	if elapsed < 200*time.Millisecond {
		t.Errorf("3 requests completed in %v, want >= 200ms of spacing", elapsed)
	}
	if got := atomic.LoadInt64(count); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestConfigureDelay(t *testing.T) {
	server, _ := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Delay = time.Hour
	client := New(cfg)
	defer client.Close()

	client.ConfigureDelay(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		handle := client.Submit(newRequest(t, server.URL))
		if _, err := handle.Await(ctx); err != nil {
			t.Fatalf("Await() error = %v (delay not reconfigured?)", err)
		}
	}
}

func TestAwait_ContextDeadline(t *testing.T) {
	server, _ := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Delay = time.Millisecond
	client := New(cfg)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	handle := client.Submit(newRequest(t, server.URL))
	_, err := handle.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Delay = time.Millisecond
	client := New(cfg)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	handle := client.Submit(newRequest(t, "http://localhost:0"))
	_, err := handle.Await(context.Background())
	if !errors.Is(err, ErrClientClosed) {
		t.Errorf("Await() error = %v, want ErrClientClosed", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	client := New(DefaultConfig())
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestExecuteError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Delay = time.Millisecond
	cfg.Timeout = 500 * time.Millisecond
	client := New(cfg)
	defer client.Close()

	// Port 0 is never listening.
	handle := client.Submit(newRequest(t, "http://127.0.0.1:0"))
	_, err := handle.Await(context.Background())
	if err == nil {
		t.Fatal("Await() error = nil, want transport failure")
	}
}
