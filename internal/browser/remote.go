package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// Remote drives a browser session hosted by a remote session server over
// JSON/HTTP. The server owns the actual browser process; Remote is a proxy.
type Remote struct {
	client  *resty.Client
	baseURL string
	cfg     Config

	// Remote session id, assigned by the server on Start.
	remoteID string
	running  atomic.Bool
}

// NewRemote creates a session proxy against the given base URL. The session
// is not started until Start is called.
func NewRemote(baseURL string, cfg Config) *Remote {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Minute).
		SetHeader("Content-Type", "application/json")

	return &Remote{
		client:  client,
		baseURL: baseURL,
		cfg:     cfg,
	}
}

// RemoteFactory returns a Factory producing started Remote sessions against
// baseURL.
func RemoteFactory(baseURL string) Factory {
	return func(ctx context.Context, cfg Config) (Session, error) {
		s := NewRemote(baseURL, cfg)
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Start provisions a session on the remote server.
func (r *Remote) Start(ctx context.Context) error {
	var created struct {
		ID string `json:"id"`
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(r.cfg).
		SetResult(&created).
		Post("/sessions")
	if err != nil {
		return fmt.Errorf("failed to create remote session: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to create remote session, status %d: %s", resp.StatusCode(), resp.String())
	}

	r.remoteID = created.ID
	r.running.Store(true)
	return nil
}

// Stop releases the remote session. Safe to call more than once.
func (r *Remote) Stop(ctx context.Context) error {
	if !r.running.Swap(false) {
		return nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		Delete("/sessions/" + r.remoteID)
	if err != nil {
		return fmt.Errorf("failed to stop remote session %s: %w", r.remoteID, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("failed to stop remote session %s, status %d", r.remoteID, resp.StatusCode())
	}
	return nil
}

// IsRunning reports the last known liveness of the remote session.
func (r *Remote) IsRunning() bool {
	if !r.running.Load() {
		return false
	}

	var status struct {
		Status string `json:"status"`
	}
	resp, err := r.client.R().
		SetResult(&status).
		Get("/sessions/" + r.remoteID)
	if err != nil || resp.IsError() {
		return false
	}
	return status.Status == "active"
}

// RunCommand executes one driving command against the remote session.
func (r *Remote) RunCommand(ctx context.Context, cmd string, args map[string]any) (any, error) {
	var result struct {
		Value any `json:"value"`
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"command": cmd, "args": args}).
		SetResult(&result).
		Post("/sessions/" + r.remoteID + "/command")
	if err != nil {
		return nil, fmt.Errorf("command %q failed: %w", cmd, ErrSessionGone)
	}
	if resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone {
		return nil, fmt.Errorf("command %q: session %s: %w", cmd, r.remoteID, ErrSessionGone)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("command %q failed, status %d: %s", cmd, resp.StatusCode(), resp.String())
	}
	return result.Value, nil
}

// CurrentURL returns the current page URL.
func (r *Remote) CurrentURL(ctx context.Context) (string, error) {
	v, err := r.RunCommand(ctx, "currentUrl", nil)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// PageSource returns the current page source.
func (r *Remote) PageSource(ctx context.Context) (string, error) {
	v, err := r.RunCommand(ctx, "pageSource", nil)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// Screenshot captures the current page. The server returns base64 bytes.
func (r *Remote) Screenshot(ctx context.Context) ([]byte, error) {
	v, err := r.RunCommand(ctx, "screenshot", nil)
	if err != nil {
		return nil, err
	}
	encoded, _ := v.(string)
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return data, nil
}
