package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/scenicrun/scenic/internal/logging"
)

// Recorder saves a session's video recording and returns the stored file
// name. Implementations are invoked fire-and-forget after a run.
type Recorder interface {
	SaveRecording(ctx context.Context, sessionID string) (string, error)
}

// HTTPRecorder asks a remote recorder service to persist the recording for
// a session. The upload is retried on transient failures.
type HTTPRecorder struct {
	client  *retryablehttp.Client
	baseURL string
}

// NewHTTPRecorder creates a recorder client against baseURL.
func NewHTTPRecorder(baseURL string, log *logging.Logger) *HTTPRecorder {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	if log != nil {
		client.Logger = zapLeveledLogger{log}
	}
	return &HTTPRecorder{client: client, baseURL: baseURL}
}

// SaveRecording triggers the remote save and returns the recording file name.
func (r *HTTPRecorder) SaveRecording(ctx context.Context, sessionID string) (string, error) {
	body, err := json.Marshal(map[string]string{"sessionId": sessionID})
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", r.baseURL+"/recordings", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recording upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("recording upload failed, status %d", resp.StatusCode)
	}

	var saved struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return "", fmt.Errorf("failed to decode recorder response: %w", err)
	}
	return saved.File, nil
}

// zapLeveledLogger adapts the zap wrapper to retryablehttp's logger.
type zapLeveledLogger struct {
	log *logging.Logger
}

func (l zapLeveledLogger) Error(msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, keysAndValues...)
}

func (l zapLeveledLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Infow(msg, keysAndValues...)
}

func (l zapLeveledLogger) Debug(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapLeveledLogger) Warn(msg string, keysAndValues ...any) {
	l.log.Sugar().Warnw(msg, keysAndValues...)
}
