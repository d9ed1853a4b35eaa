package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scenicrun/scenic/internal/browser"
	"github.com/scenicrun/scenic/internal/cache"
	"github.com/scenicrun/scenic/internal/fault"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	return New(Config{DefaultTimeout: 5 * time.Second, MaxConcurrent: 2}, nil)
}

func startedFake(t *testing.T) *browser.Fake {
	t.Helper()
	f := browser.NewFake()
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return f
}

func TestRunSuccess(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)

	out, err := s.Run(context.Background(), "sess-1", sess, "6 * 7", nil, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Success {
		t.Fatalf("Outcome %+v, want success", out)
	}
	if out.Data != int64(42) {
		t.Errorf("Data %v (%T), want 42", out.Data, out.Data)
	}
	if out.ExecutionTime < 0 {
		t.Errorf("Negative execution time %d", out.ExecutionTime)
	}
}

func TestRunParams(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)

	out, err := s.Run(context.Background(), "sess-1", sess,
		`params.name + "!"`, map[string]any{"name": "scenic"}, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Data != "scenic!" {
		t.Errorf("Data %v, want scenic!", out.Data)
	}
}

func TestRunSessionCommand(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)
	sess.Results["navigate"] = "ok"

	out, err := s.Run(context.Background(), "sess-1", sess,
		`session.run("navigate", {url: "https://example.com"})`, nil, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Data != "ok" {
		t.Errorf("Data %v, want ok", out.Data)
	}
	if len(sess.Commands) != 1 || sess.Commands[0] != "navigate" {
		t.Errorf("Commands %v, want [navigate]", sess.Commands)
	}
}

func TestRunScriptFault(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)
	sess.Image = []byte{0x89, 0x50, 0x4e, 0x47}
	sess.Source = "<html><body>page</body></html>"

	out, err := s.Run(context.Background(), "sess-1", sess,
		`throw new Error("boom")`, nil, 0)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !fault.IsScript(err) {
		t.Errorf("Expected a script fault, got %v", err)
	}
	if fault.IsSession(err) {
		t.Error("Script failure misclassified as session fault")
	}
	if out.Success || !strings.Contains(out.Error, "boom") {
		t.Errorf("Outcome %+v, want failure mentioning boom", out)
	}
	if string(out.Screenshot) != string(sess.Image) {
		t.Error("Screenshot diagnostics not captured")
	}
	if !strings.Contains(out.CapturedPage, sess.Source) {
		t.Errorf("CapturedPage %q does not embed the page source", out.CapturedPage)
	}
}

func TestRunSessionGoneFault(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)
	sess.CommandErr = browser.ErrSessionGone

	out, err := s.Run(context.Background(), "sess-1", sess,
		`session.run("click", {})`, nil, 0)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !fault.IsSession(err) {
		t.Errorf("Expected a session fault, got %v", err)
	}
	if out.Success {
		t.Errorf("Outcome %+v, want failure", out)
	}
}

func TestRunDeadProcessFault(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)
	sess.CommandErr = errors.New("connection reset")
	sess.Kill()

	// A generic command error against a dead process still classifies as a
	// session fault.
	_, err := s.Run(context.Background(), "sess-1", sess,
		`session.run("click", {})`, nil, 0)
	if !fault.IsSession(err) {
		t.Errorf("Expected a session fault, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)

	start := time.Now()
	out, err := s.Run(context.Background(), "sess-1", sess,
		`for (;;) {}`, nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 3*time.Second {
		t.Fatalf("Run took %v, must return promptly after the 100ms deadline", elapsed)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if !fault.IsScript(err) {
		t.Error("Timeout must classify as a script fault, not a session fault")
	}
	if out.Success || !strings.Contains(out.Error, "timed out") {
		t.Errorf("Outcome %+v, want failure mentioning the timeout", out)
	}
}

func TestRunAfterTimeoutReusesSlot(t *testing.T) {
	s := New(Config{DefaultTimeout: 5 * time.Second, MaxConcurrent: 1}, nil)
	sess := startedFake(t)

	if _, err := s.Run(context.Background(), "sess-1", sess,
		`for (;;) {}`, nil, 50*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}

	// The abandoned worker's interrupt frees its slot; the next run must not
	// be starved by the dead one.
	out, err := s.Run(context.Background(), "sess-1", sess, "1 + 1", nil, 0)
	if err != nil {
		t.Fatalf("Run after timeout failed: %v", err)
	}
	if out.Data != int64(2) {
		t.Errorf("Data %v, want 2", out.Data)
	}
}

func TestRunCaptureFailureSwallowed(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)
	sess.CaptureErr = errors.New("no renderer")

	out, err := s.Run(context.Background(), "sess-1", sess,
		`throw new Error("boom")`, nil, 0)
	if !fault.IsScript(err) {
		t.Fatalf("Expected a script fault, got %v", err)
	}
	if !strings.Contains(out.Error, "boom") {
		t.Errorf("Capture failure masked the original error: %+v", out)
	}
	if out.Screenshot != nil || out.CapturedPage != "" {
		t.Errorf("Expected empty diagnostics on capture failure, got %+v", out)
	}
}

func TestRunRestrictedGlobals(t *testing.T) {
	s := newTestSandbox(t)
	sess := startedFake(t)

	for _, global := range []string{"require", "process", "module", "exports"} {
		out, err := s.Run(context.Background(), "sess-1", sess, "typeof "+global, nil, 0)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if out.Data != "undefined" {
			t.Errorf("typeof %s = %v, want undefined", global, out.Data)
		}
	}
}

func TestRunCacheBinding(t *testing.T) {
	c := cache.New(cache.Config{DefaultTTL: time.Hour, MaxSize: 100}, nil)
	defer c.Close()

	s := newTestSandbox(t).WithCache(c)
	sess := startedFake(t)

	out, err := s.Run(context.Background(), "sess-1", sess,
		`cache.set("greeting", "hello"); cache.get("greeting")`, nil, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Data != "hello" {
		t.Errorf("Data %v, want hello", out.Data)
	}
}

type stubRecorder struct {
	calls chan string
}

func (r *stubRecorder) SaveRecording(ctx context.Context, sessionID string) (string, error) {
	r.calls <- sessionID
	return "recording.mp4", nil
}

func TestRecordingHookFiresInsideGrace(t *testing.T) {
	rec := &stubRecorder{calls: make(chan string, 1)}
	s := New(Config{
		DefaultTimeout:   5 * time.Second,
		MaxConcurrent:    2,
		RecordingEnabled: true,
		RecordingGrace:   time.Minute,
	}, nil).WithRecorder(rec)
	sess := startedFake(t)

	if _, err := s.Run(context.Background(), "sess-1", sess, "1 + 1", nil, 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	select {
	case id := <-rec.calls:
		if id != "sess-1" {
			t.Errorf("Recorder got session %s, want sess-1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Recording hook did not fire inside the grace window")
	}
}

func TestRecordingHookSkippedOutsideGrace(t *testing.T) {
	rec := &stubRecorder{calls: make(chan string, 1)}
	s := New(Config{
		DefaultTimeout:   5 * time.Second,
		MaxConcurrent:    2,
		RecordingEnabled: true,
		RecordingGrace:   time.Nanosecond,
	}, nil).WithRecorder(rec)
	sess := startedFake(t)

	if _, err := s.Run(context.Background(), "sess-1", sess, "1 + 1", nil, 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	select {
	case <-rec.calls:
		t.Fatal("Recording hook fired for a run outside the grace window")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvaluateFreshVMPerRun(t *testing.T) {
	interp := NewInterpreter()

	if _, err := interp.Evaluate(context.Background(), "globalThis.leak = 42", nil); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	v, err := interp.Evaluate(context.Background(), "typeof leak", nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if v != "undefined" {
		t.Errorf("State leaked across evaluations: typeof leak = %v", v)
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	interp := NewInterpreter()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := interp.Evaluate(ctx, "for (;;) {}", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}
