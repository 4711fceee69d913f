package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSession_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected method GET, got %s", r.Method)
		}
		if r.URL.Path != "/v1/tms/client/testclient1" {
			t.Errorf("Expected path /v1/tms/client/testclient1, got %s", r.URL.Path)
		}
		if r.Header.Get(HeaderTenant) != "test" {
			t.Errorf("Expected header %s: test, got %s", HeaderTenant, r.Header.Get(HeaderTenant))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"clientId":"testclient1"}`))
	}))
	defer server.Close()

	session := NewSession(server.URL, DefaultSessionConfig())
	defer session.Close()

	spec, err := NewBuilder(tenantConfig()).Build("GET", "v1/tms/client/testclient1", AuthTenant)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := session.Send(context.Background(), spec)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"clientId":"testclient1"}` {
		t.Errorf("body = %s", body)
	}
	if resp.Timing.StartTime.IsZero() {
		t.Error("Timing.StartTime not set")
	}
}

func TestSession_SendErrorStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	session := NewSession(server.URL, DefaultSessionConfig())
	defer session.Close()

	resp, err := session.Send(context.Background(), RequestSpec{Method: "GET", Path: "/"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestSession_SendConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	session := NewSession(url, DefaultSessionConfig())
	defer session.Close()

	if _, err := session.Send(context.Background(), RequestSpec{Method: "GET", Path: "/"}); err == nil {
		t.Error("Send() expected error for refused connection")
	}
}

func TestSession_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := DefaultSessionConfig()
	cfg.Timeout = 50 * time.Millisecond
	session := NewSession(server.URL, cfg)
	defer session.Close()

	if _, err := session.Send(context.Background(), RequestSpec{Method: "GET", Path: "/"}); err == nil {
		t.Error("Send() expected timeout error")
	}
}

func TestSession_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	session := NewSession(server.URL, DefaultSessionConfig())
	defer session.Close()

	var reused bool
	for i := 0; i < 2; i++ {
		resp, err := session.Send(context.Background(), RequestSpec{Method: "GET", Path: "/"})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		reused = resp.Timing.ConnReused
	}

	if !reused {
		t.Error("second request should reuse the session's connection")
	}
}

func TestSession_BaseURL(t *testing.T) {
	session := NewSession("http://tms.local:8080/api", DefaultSessionConfig())
	defer session.Close()

	if session.BaseURL() != "http://tms.local:8080/api" {
		t.Errorf("BaseURL() = %q", session.BaseURL())
	}
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.IdleConnTimeout != 90*time.Second {
		t.Errorf("IdleConnTimeout = %v, want 90s", cfg.IdleConnTimeout)
	}
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be false by default")
	}
}
