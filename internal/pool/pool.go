// Package pool owns the registry of live browser sessions. It creates
// sessions through a factory, reclaims idle or dead ones on a timer, and
// transparently retries executions across session churn: a task signaling a
// session fault gets a replacement session after an exponential backoff,
// while a script fault surfaces to the caller untouched.
package pool

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scenicrun/scenic/internal/browser"
	"github.com/scenicrun/scenic/internal/fault"
	"github.com/scenicrun/scenic/internal/logging"
	"github.com/scenicrun/scenic/internal/monitoring"
	"github.com/scenicrun/scenic/internal/outcome"
)

// Task runs one script attempt against a session handle. A returned
// *fault.Error with kind session triggers replacement and retry; any other
// error, or a failed outcome with a nil error, is final.
type Task func(h *Handle) (outcome.Outcome, error)

// Config defines pool behavior.
type Config struct {
	// IdleLimit is the aliveness window: a session unused for longer fails
	// its aliveness check.
	IdleLimit time.Duration
	// SweepInterval is the period of the staleness sweep started by Init.
	SweepInterval time.Duration
	// MaxRetries bounds session-fault replacements per execute call.
	MaxRetries int
	// BackoffBase is the exponent base of the retry backoff, in seconds
	// per attempt: base^attempt * 1s.
	BackoffBase float64
	// MaxBackoff clamps a single backoff sleep.
	MaxBackoff time.Duration
	// Defaults is the session config used when execute has to create the
	// first session itself.
	Defaults browser.Config
}

// DefaultConfig returns production pool settings.
func DefaultConfig() Config {
	return Config{
		IdleLimit:     10 * time.Minute,
		SweepInterval: 5 * time.Minute,
		MaxRetries:    100,
		BackoffBase:   1.5,
		MaxBackoff:    5 * time.Minute,
		Defaults:      browser.DefaultConfig(),
	}
}

// Pool is a concurrent session registry with fault-triggered replacement.
type Pool struct {
	cfg     Config
	factory browser.Factory
	log     *logging.Logger
	metrics *monitoring.Metrics

	sessions sync.Map // string -> *Handle
	closed   atomic.Bool

	done      chan struct{}
	wg        sync.WaitGroup
	initOnce  sync.Once
	closeOnce sync.Once

	// sleep performs the retry backoff. Replaced in tests.
	sleep func(time.Duration)
}

// New creates a pool. Call Init to start the staleness sweep.
func New(factory browser.Factory, cfg Config, log *logging.Logger) *Pool {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 100
	}
	if cfg.BackoffBase <= 1 {
		cfg.BackoffBase = 1.5
	}
	if cfg.IdleLimit <= 0 {
		cfg.IdleLimit = 10 * time.Minute
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}

	return &Pool{
		cfg:     cfg,
		factory: factory,
		log:     log,
		done:    make(chan struct{}),
		sleep:   time.Sleep,
	}
}

// WithMetrics attaches a metrics collector.
func (p *Pool) WithMetrics(m *monitoring.Metrics) *Pool {
	p.metrics = m
	return p
}

// Create starts a new session with the given config and registers its
// handle. On a start failure no partial handle is retained.
func (p *Pool) Create(ctx context.Context, cfg browser.Config) (string, error) {
	if p.closed.Load() {
		return "", ErrClosed
	}

	sess, err := p.factory(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	id := "sess-" + uuid.NewString()
	p.sessions.Store(id, newHandle(id, cfg, sess))

	if p.metrics != nil {
		p.metrics.SessionsCreated.Inc()
		p.metrics.SessionsActive.Inc()
	}
	p.log.Info("session created", zap.String("session_id", id))
	return id, nil
}

// Get returns the handle for id. An unknown id fails with ErrNotFound; a
// handle failing its aliveness check is evicted and fails with ErrExpired.
func (p *Pool) Get(id string) (*Handle, error) {
	v, ok := p.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	h := v.(*Handle)
	if !p.alive(h, time.Now()) {
		p.Terminate(context.Background(), id)
		return nil, fmt.Errorf("session %s: %w", id, ErrExpired)
	}
	return h, nil
}

// GetOrCreateMostRecent returns the most recently created live session,
// creating one with the default config when none exist.
func (p *Pool) GetOrCreateMostRecent(ctx context.Context) (*Handle, error) {
	now := time.Now()
	var best *Handle
	p.sessions.Range(func(_, v any) bool {
		h := v.(*Handle)
		if !p.alive(h, now) {
			return true
		}
		if best == nil || h.CreatedAt.After(best.CreatedAt) {
			best = h
		}
		return true
	})
	if best != nil {
		return best, nil
	}

	p.log.Info("no live sessions, creating one with default config")
	id, err := p.Create(ctx, p.cfg.Defaults)
	if err != nil {
		return nil, err
	}
	return p.Get(id)
}

// Terminate removes id from the registry and best-effort releases the
// underlying session. Idempotent; release errors are logged and swallowed.
func (p *Pool) Terminate(ctx context.Context, id string) {
	v, ok := p.sessions.LoadAndDelete(id)
	if !ok {
		return
	}
	h := v.(*Handle)

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := h.Session.Stop(stopCtx); err != nil {
		p.log.Warn("failed to stop session, omitting",
			zap.String("session_id", id), zap.Error(err))
	}

	if p.metrics != nil {
		p.metrics.SessionsActive.Dec()
	}
	p.log.Info("session terminated", zap.String("session_id", id))
}

// ListActive returns a point-in-time snapshot of all registered sessions.
func (p *Pool) ListActive() []Info {
	var infos []Info
	p.sessions.Range(func(_, v any) bool {
		infos = append(infos, v.(*Handle).Info())
		return true
	})
	return infos
}

// Execute obtains the most recent session and runs task on it. A session
// fault terminates the session, sleeps an exponential backoff, recreates a
// session with the same config, and retries. A script fault is returned as
// the task's failed outcome without retry. Exhausting MaxRetries fails with
// ErrRetriesExhausted.
func (p *Pool) Execute(ctx context.Context, task Task) (outcome.Outcome, error) {
	h, err := p.GetOrCreateMostRecent(ctx)
	if err != nil {
		return outcome.Outcome{}, err
	}
	cfg := h.Config

	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		p.log.Debug("execute attempt",
			zap.Int("attempt", attempt+1), zap.Int("max", p.cfg.MaxRetries),
			zap.String("session_id", h.ID))

		h.mu.Lock()
		// Touch on acquisition too, so a long-running task does not leave the
		// handle sweepable mid-run.
		h.Touch()
		out, err := task(h)
		h.mu.Unlock()
		h.recordExecution()

		if err != nil && fault.IsSession(err) {
			if p.metrics != nil {
				p.metrics.ExecuteRetries.Inc()
			}
			p.log.Warn("session fault, replacing session",
				zap.String("session_id", h.ID), zap.Error(err))

			p.Terminate(ctx, h.ID)
			if serr := p.backoff(ctx, attempt); serr != nil {
				return outcome.Outcome{}, serr
			}

			id, cerr := p.Create(ctx, cfg)
			if cerr != nil {
				return outcome.Outcome{}, cerr
			}
			nh, gerr := p.Get(id)
			if gerr != nil {
				return outcome.Outcome{}, gerr
			}
			h = nh
			continue
		}

		if h.Config.ReconnectPerScript {
			// Isolation policy: drop the driver handle after every script.
			p.Terminate(ctx, h.ID)
		}

		if err != nil && !fault.IsScript(err) {
			return out, err
		}
		// Success, or a script fault surfaced as a failed outcome.
		return out, nil
	}

	if p.metrics != nil {
		p.metrics.ExecuteExhausted.Inc()
	}
	return outcome.Outcome{}, ErrRetriesExhausted
}

// ExecuteOn runs task on the session identified by id, serializing with
// other runs on the same handle. When the session has expired or the task
// signals a session fault, one replacement with the same config is created
// and the task re-run.
func (p *Pool) ExecuteOn(ctx context.Context, id string, task Task) (outcome.Outcome, error) {
	h, err := p.Get(id)
	if err != nil {
		return outcome.Outcome{}, err
	}

	h.mu.Lock()
	h.Touch()
	out, err := task(h)
	h.mu.Unlock()
	h.recordExecution()

	if err == nil || !fault.IsSession(err) {
		if h.Config.ReconnectPerScript {
			p.Terminate(ctx, h.ID)
		}
		if err != nil && fault.IsScript(err) {
			return out, nil
		}
		return out, err
	}

	p.log.Warn("session fault, recreating once",
		zap.String("session_id", h.ID), zap.Error(err))
	p.Terminate(ctx, h.ID)

	newID, cerr := p.Create(ctx, h.Config)
	if cerr != nil {
		return outcome.Outcome{}, cerr
	}
	nh, gerr := p.Get(newID)
	if gerr != nil {
		return outcome.Outcome{}, gerr
	}

	nh.mu.Lock()
	nh.Touch()
	out, err = task(nh)
	nh.mu.Unlock()
	nh.recordExecution()

	if err != nil && fault.IsScript(err) {
		return out, nil
	}
	return out, err
}

// Init starts the periodic staleness sweep.
func (p *Pool) Init() {
	p.initOnce.Do(func() {
		if p.cfg.SweepInterval <= 0 {
			return
		}
		p.wg.Add(1)
		go p.sweepLoop()
	})
}

// Shutdown terminates all active handles and stops the sweep, waiting a
// bounded time before abandoning stragglers.
func (p *Pool) Shutdown(ctx context.Context) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)

		p.sessions.Range(func(k, _ any) bool {
			p.Terminate(ctx, k.(string))
			return true
		})

		settled := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(settled)
		}()
		select {
		case <-settled:
		case <-time.After(10 * time.Second):
			p.log.Warn("pool sweep did not stop in time, abandoning")
		}
	})
}

// Sweep terminates every handle currently failing its aliveness check.
func (p *Pool) Sweep() {
	now := time.Now()
	p.sessions.Range(func(k, v any) bool {
		h := v.(*Handle)
		if !p.alive(h, now) {
			p.log.Info("sweeping stale session",
				zap.String("session_id", h.ID),
				zap.Time("last_access", h.LastAccess()))
			p.Terminate(context.Background(), k.(string))
			if p.metrics != nil {
				p.metrics.SessionsSwept.Inc()
			}
		}
		return true
	})
}

func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-p.done:
			return
		}
	}
}

// alive checks the underlying process is running and the handle has been
// used within the idle limit.
func (p *Pool) alive(h *Handle, now time.Time) bool {
	return h.Session.IsRunning() && now.Sub(h.LastAccess()) < p.cfg.IdleLimit
}

// backoff sleeps base^attempt seconds, clamped to MaxBackoff. The sleep
// happens on the retrying caller's own goroutine and counts as expected
// latency.
func (p *Pool) backoff(ctx context.Context, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	secs := math.Pow(p.cfg.BackoffBase, float64(attempt))
	d := p.cfg.MaxBackoff
	if secs < p.cfg.MaxBackoff.Seconds() {
		d = time.Duration(secs * float64(time.Second))
	}

	p.log.Debug("backing off before retry", zap.Duration("sleep", d))
	p.sleep(d)
	return nil
}
