package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/scenicrun/scenic/internal/browser"
)

// Handle is the pool's record of one live session. Handles are owned
// exclusively by the pool; callers receive them for the duration of a task
// and must not retain them across executions.
type Handle struct {
	ID        string
	CreatedAt time.Time
	Config    browser.Config
	Session   browser.Session

	lastAccess atomic.Int64 // unix nanoseconds
	execCount  atomic.Int64

	// mu serializes script runs on this physical session.
	mu sync.Mutex
}

func newHandle(id string, cfg browser.Config, sess browser.Session) *Handle {
	h := &Handle{
		ID:        id,
		CreatedAt: time.Now(),
		Config:    cfg,
		Session:   sess,
	}
	h.lastAccess.Store(h.CreatedAt.UnixNano())
	return h
}

// Touch refreshes the handle's last access time.
func (h *Handle) Touch() {
	h.lastAccess.Store(time.Now().UnixNano())
}

// LastAccess returns the last access time.
func (h *Handle) LastAccess() time.Time {
	return time.Unix(0, h.lastAccess.Load())
}

// ExecutionCount returns the number of script runs on this handle.
func (h *Handle) ExecutionCount() int64 {
	return h.execCount.Load()
}

func (h *Handle) recordExecution() {
	h.execCount.Add(1)
	h.Touch()
}

// Info is a point-in-time snapshot of a handle for listings.
type Info struct {
	ID             string         `json:"id"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastAccessAt   time.Time      `json:"lastAccessAt"`
	ExecutionCount int64          `json:"executionCount"`
	Status         string         `json:"status"`
	Config         browser.Config `json:"config"`
}

// Info snapshots the handle.
func (h *Handle) Info() Info {
	status := "active"
	if !h.Session.IsRunning() {
		status = "dead"
	}
	return Info{
		ID:             h.ID,
		CreatedAt:      h.CreatedAt,
		LastAccessAt:   h.LastAccess(),
		ExecutionCount: h.ExecutionCount(),
		Status:         status,
		Config:         h.Config,
	}
}
