package client

import (
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
)

func startTestDaemon(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "cusp.sock")
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("failed to listen on unix socket: %v", err)
	}
	server := &http.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })
	return NewClient(socketPath)
}

func TestGetVersion(t *testing.T) {
	client := startTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`"0.3.0"`))
	}))

	version, err := client.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion returned error: %v", err)
	}
	if version != "0.3.0" {
		t.Fatalf("version = %q, want 0.3.0", version)
	}
}

func TestGetVersionShortBody(t *testing.T) {
	client := startTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a misbehaving daemon must not crash the caller
	}))

	version, err := client.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion returned error: %v", err)
	}
	if version != "" {
		t.Fatalf("version = %q, want empty", version)
	}
}

func TestGetMapsNotFound(t *testing.T) {
	client := startTestDaemon(t, http.HandlerFunc(http.NotFound))

	if _, err := client.Get("/jobs/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
