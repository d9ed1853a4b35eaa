package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scenicrun/scenic/internal/browser"
)

// runState collects classification evidence during one run. Bindings record
// a session-level failure here before surfacing it to the script, so the
// sandbox can tell a dead session apart from a faulty script afterwards.
type runState struct {
	mu         sync.Mutex
	sessionErr error
}

func (st *runState) recordSessionFault(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sessionErr == nil {
		st.sessionErr = err
	}
}

func (st *runState) sessionFault() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessionErr
}

// sessionBinding exposes the browser session to scripts. Errors returned
// from the Go functions are thrown as script exceptions by the interpreter;
// session-gone errors are recorded in st first.
func sessionBinding(ctx context.Context, sess browser.Session, st *runState) map[string]any {
	classify := func(err error) error {
		if err == nil {
			return nil
		}
		if errors.Is(err, browser.ErrSessionGone) || !sess.IsRunning() {
			st.recordSessionFault(err)
		}
		return err
	}

	return map[string]any{
		"run": func(cmd string, args map[string]any) (any, error) {
			v, err := sess.RunCommand(ctx, cmd, args)
			return v, classify(err)
		},
		"url": func() (string, error) {
			v, err := sess.CurrentURL(ctx)
			return v, classify(err)
		},
		"source": func() (string, error) {
			v, err := sess.PageSource(ctx)
			return v, classify(err)
		},
		"screenshot": func() ([]byte, error) {
			v, err := sess.Screenshot(ctx)
			return v, classify(err)
		},
		"isRunning": func() bool {
			return sess.IsRunning()
		},
	}
}

// cacheBinding exposes the result cache to scripts.
func (s *Sandbox) cacheBinding() map[string]any {
	return map[string]any{
		"get": func(key string) any {
			v, _ := s.cache.Get(key, func() (any, error) { return nil, nil })
			return v
		},
		"set": func(key string, value any) {
			s.cache.Set(key, value)
		},
		"setWithTtl": func(key string, value any, ttlSeconds int) {
			s.cache.Set(key, value, time.Duration(ttlSeconds)*time.Second)
		},
		"invalidate": func(key string) {
			s.cache.Invalidate(key)
		},
		"invalidateMatching": func(pattern string) int {
			return s.cache.InvalidateMatching(pattern)
		},
	}
}

// logBinding exposes a structured logger to scripts.
func (s *Sandbox) logBinding() map[string]any {
	sugar := s.log.Sugar()
	return map[string]any{
		"debug": func(args ...any) { sugar.Debug(args...) },
		"info":  func(args ...any) { sugar.Info(args...) },
		"warn":  func(args ...any) { sugar.Warn(args...) },
		"error": func(args ...any) { sugar.Error(args...) },
	}
}
