// Package outcome defines the immutable result of one script execution
// attempt. One Outcome is produced per attempt; the JSON field names are the
// wire contract with external callers.
package outcome

import "time"

// Outcome is the result of a single script execution attempt.
type Outcome struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	Data          any    `json:"data,omitempty"`
	Screenshot    []byte `json:"screenshot,omitempty"`
	CapturedPage  string `json:"capturedPage,omitempty"`
	VideoFile     string `json:"videoFile,omitempty"`
	HTMLFile      string `json:"htmlFile,omitempty"`
	ExecutionTime int64  `json:"executionTime"` // milliseconds
}

// Success builds a successful outcome timed from start.
func Success(data any, start time.Time) Outcome {
	return Outcome{
		Success:       true,
		Data:          data,
		ExecutionTime: time.Since(start).Milliseconds(),
	}
}

// Failure builds a failed outcome with captured diagnostics. Any of
// screenshot and capturedPage may be empty when capture itself failed.
func Failure(errMsg string, screenshot []byte, capturedPage string, start time.Time) Outcome {
	return Outcome{
		Success:       false,
		Error:         errMsg,
		Screenshot:    screenshot,
		CapturedPage:  capturedPage,
		ExecutionTime: time.Since(start).Milliseconds(),
	}
}
