// Package sandbox executes untrusted automation scripts against browser
// sessions under a hard deadline. A run's only capabilities are the bindings
// it is handed: the session, the parameters, a logger, and optionally the
// result cache. Failures are classified as session faults (the session is
// unusable) or script faults (the script itself failed or timed out).
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scenicrun/scenic/internal/browser"
	"github.com/scenicrun/scenic/internal/cache"
	"github.com/scenicrun/scenic/internal/fault"
	"github.com/scenicrun/scenic/internal/logging"
	"github.com/scenicrun/scenic/internal/monitoring"
	"github.com/scenicrun/scenic/internal/outcome"
)

// ErrTimeout indicates a script exceeded its deadline.
var ErrTimeout = errors.New("script execution timed out")

// Config defines sandbox behavior.
type Config struct {
	// DefaultTimeout applies when a run does not specify its own.
	DefaultTimeout time.Duration
	// MaxConcurrent bounds simultaneously executing scripts.
	MaxConcurrent int
	// RecordingEnabled fires the save-recording hook after runs.
	RecordingEnabled bool
	// RecordingGrace is the total-duration window inside which the hook
	// still fires.
	RecordingGrace time.Duration
}

// DefaultConfig returns production sandbox settings.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 60 * time.Second,
		MaxConcurrent:  8,
		RecordingGrace: 6 * time.Minute,
	}
}

// Sandbox runs scripts on dedicated workers with a bounded concurrency
// budget. A worker whose run is cancelled on timeout is abandoned, never
// reused; its late completion is discarded.
type Sandbox struct {
	cfg      Config
	interp   Interpreter
	log      *logging.Logger
	cache    *cache.Cache
	recorder Recorder
	metrics  *monitoring.Metrics
	slots    chan struct{}
}

// New creates a sandbox with the default goja interpreter.
func New(cfg Config, log *logging.Logger) *Sandbox {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.RecordingGrace <= 0 {
		cfg.RecordingGrace = 6 * time.Minute
	}

	return &Sandbox{
		cfg:    cfg,
		interp: NewInterpreter(),
		log:    log,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
	}
}

// WithCache makes the result cache available to scripts.
func (s *Sandbox) WithCache(c *cache.Cache) *Sandbox {
	s.cache = c
	return s
}

// WithRecorder attaches the save-recording hook target.
func (s *Sandbox) WithRecorder(r Recorder) *Sandbox {
	s.recorder = r
	return s
}

// WithMetrics attaches a metrics collector.
func (s *Sandbox) WithMetrics(m *monitoring.Metrics) *Sandbox {
	s.metrics = m
	return s
}

// WithInterpreter replaces the script interpreter. Used in tests.
func (s *Sandbox) WithInterpreter(i Interpreter) *Sandbox {
	s.interp = i
	return s
}

type evalResult struct {
	value any
	err   error
}

// Run executes one script against one session under the given timeout.
//
// On success the outcome carries the script's value. On failure the outcome
// carries the error message plus best-effort diagnostics, and the returned
// error is a classified *fault.Error: a session fault tells the pool to
// replace the session and retry; a script fault (including timeout) is
// final.
func (s *Sandbox) Run(ctx context.Context, sessionID string, sess browser.Session, script string, params map[string]any, timeout time.Duration) (outcome.Outcome, error) {
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return outcome.Outcome{}, ctx.Err()
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if params == nil {
		params = map[string]any{}
	}
	st := &runState{}
	bindings := map[string]any{
		"session": sessionBinding(runCtx, sess, st),
		"params":  params,
		"log":     s.logBinding(),
	}
	if s.cache != nil {
		bindings["cache"] = s.cacheBinding()
	}

	results := make(chan evalResult, 1)
	go func() {
		defer func() { <-s.slots }()
		value, err := s.interp.Evaluate(runCtx, script, bindings)
		results <- evalResult{value: value, err: err}
	}()

	select {
	case res := <-results:
		return s.finish(sessionID, sess, st, res, start, timeout)
	case <-runCtx.Done():
		// The worker is abandoned: its VM is interrupted and its late
		// result lands in the buffered channel, never read.
		if s.metrics != nil {
			s.metrics.ScriptTimeouts.Inc()
			s.metrics.ScriptRuns.WithLabelValues("timeout").Inc()
		}
		s.log.Warn("script run exceeded deadline, abandoning worker",
			zap.String("session_id", sessionID),
			zap.Duration("timeout", timeout))

		msg := fmt.Sprintf("%v after %s", ErrTimeout, timeout)
		shot, page := s.captureDiagnostics(sess)
		s.maybeSaveRecording(sessionID, start)
		return outcome.Failure(msg, shot, page, start), fault.Script(ErrTimeout)
	}
}

// finish classifies a completed evaluation and assembles its outcome.
func (s *Sandbox) finish(sessionID string, sess browser.Session, st *runState, res evalResult, start time.Time, timeout time.Duration) (outcome.Outcome, error) {
	defer s.maybeSaveRecording(sessionID, start)

	if res.err == nil {
		if s.metrics != nil {
			s.metrics.ScriptRuns.WithLabelValues("success").Inc()
		}
		return outcome.Success(res.value, start), nil
	}

	// The interrupt can land just as the evaluation finishes; treat a
	// deadline result as a timeout regardless of which side won the race.
	if errors.Is(res.err, context.DeadlineExceeded) {
		if s.metrics != nil {
			s.metrics.ScriptTimeouts.Inc()
			s.metrics.ScriptRuns.WithLabelValues("timeout").Inc()
		}
		msg := fmt.Sprintf("%v after %s", ErrTimeout, timeout)
		shot, page := s.captureDiagnostics(sess)
		return outcome.Failure(msg, shot, page, start), fault.Script(ErrTimeout)
	}

	shot, page := s.captureDiagnostics(sess)

	if sessionErr := st.sessionFault(); sessionErr != nil {
		if s.metrics != nil {
			s.metrics.ScriptRuns.WithLabelValues("session_fault").Inc()
		}
		s.log.Warn("session fault during script run",
			zap.String("session_id", sessionID),
			zap.Error(sessionErr))
		return outcome.Failure(res.err.Error(), shot, page, start), fault.Session(sessionErr)
	}

	if s.metrics != nil {
		s.metrics.ScriptRuns.WithLabelValues("script_fault").Inc()
	}
	return outcome.Failure(res.err.Error(), shot, page, start), fault.Script(res.err)
}

// maybeSaveRecording fires the asynchronous save-recording hook when enabled
// and the run finished inside the grace window. Fire-and-forget: the result
// never affects the outcome.
func (s *Sandbox) maybeSaveRecording(sessionID string, start time.Time) {
	if !s.cfg.RecordingEnabled || s.recorder == nil {
		return
	}
	if time.Since(start) >= s.cfg.RecordingGrace {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if file, err := s.recorder.SaveRecording(ctx, sessionID); err != nil {
			s.log.Warn("recording save failed",
				zap.String("session_id", sessionID), zap.Error(err))
		} else {
			s.log.Info("recording saved",
				zap.String("session_id", sessionID), zap.String("file", file))
		}
	}()
}
