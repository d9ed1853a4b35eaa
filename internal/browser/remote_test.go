package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeDriverServer is a minimal remote session server for tests.
func fakeDriverServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	commands := 0

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "remote-1"})
	})
	mux.HandleFunc("GET /sessions/remote-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "active"})
	})
	mux.HandleFunc("DELETE /sessions/remote-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /sessions/remote-1/command", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		commands++
		var req struct {
			Command string `json:"command"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		switch req.Command {
		case "screenshot":
			json.NewEncoder(w).Encode(map[string]any{
				"value": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
			})
		case "vanish":
			w.WriteHeader(http.StatusGone)
		default:
			json.NewEncoder(w).Encode(map[string]any{"value": "ok"})
		}
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, &commands
}

func TestRemoteLifecycle(t *testing.T) {
	ts, commands := fakeDriverServer(t)

	sess, err := RemoteFactory(ts.URL)(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	if !sess.IsRunning() {
		t.Fatal("Started session reports not running")
	}

	v, err := sess.RunCommand(context.Background(), "navigate", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if v != "ok" {
		t.Errorf("Result %v, want ok", v)
	}

	shot, err := sess.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("Screenshot failed: %v", err)
	}
	if string(shot) != "png-bytes" {
		t.Errorf("Screenshot %q, want decoded png-bytes", shot)
	}

	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if sess.IsRunning() {
		t.Error("Stopped session reports running")
	}
	if *commands < 2 {
		t.Errorf("Server saw %d commands, want at least 2", *commands)
	}
}

func TestRemoteGoneStatusIsSessionGone(t *testing.T) {
	ts, _ := fakeDriverServer(t)

	sess, err := RemoteFactory(ts.URL)(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}

	if _, err := sess.RunCommand(context.Background(), "vanish", nil); !errors.Is(err, ErrSessionGone) {
		t.Errorf("Expected ErrSessionGone for a 410 response, got %v", err)
	}
}

func TestRemoteUnreachableServerIsSessionGone(t *testing.T) {
	ts, _ := fakeDriverServer(t)

	sess, err := RemoteFactory(ts.URL)(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	ts.Close()

	if _, err := sess.RunCommand(context.Background(), "navigate", nil); !errors.Is(err, ErrSessionGone) {
		t.Errorf("Expected ErrSessionGone for a dead server, got %v", err)
	}
	if sess.IsRunning() {
		t.Error("Session against a dead server reports running")
	}
}

func TestRemoteStartFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := RemoteFactory(ts.URL)(context.Background(), DefaultConfig())
	if err == nil {
		t.Fatal("Expected a start failure")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("Error %v does not carry the status", err)
	}
}
