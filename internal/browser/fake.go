package browser

import (
	"context"
	"sync"
)

// Fake is an in-memory Session for tests. Command results and failures are
// scripted by the test.
type Fake struct {
	mu       sync.Mutex
	running  bool
	URL      string
	Source   string
	Image    []byte
	Commands []string

	// StartErr, when set, fails Start.
	StartErr error
	// CommandErr, when set, fails every RunCommand call.
	CommandErr error
	// CaptureErr, when set, fails Screenshot and PageSource.
	CaptureErr error
	// Results maps command name to its returned value.
	Results map[string]any
}

// NewFake creates a stopped fake session.
func NewFake() *Fake {
	return &Fake{
		URL:     "about:blank",
		Source:  "<html></html>",
		Results: map[string]any{},
	}
}

// FakeFactory returns a Factory producing started fakes, recording each
// created session into the given slice when it is non-nil.
func FakeFactory(created *[]*Fake) Factory {
	var mu sync.Mutex
	return func(ctx context.Context, cfg Config) (Session, error) {
		f := NewFake()
		if err := f.Start(ctx); err != nil {
			return nil, err
		}
		if created != nil {
			mu.Lock()
			*created = append(*created, f)
			mu.Unlock()
		}
		return f, nil
	}
}

// Start marks the session running.
func (f *Fake) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	f.running = true
	return nil
}

// Stop marks the session stopped.
func (f *Fake) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

// Kill simulates the underlying process dying.
func (f *Fake) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

// IsRunning reports whether the fake is running.
func (f *Fake) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// RunCommand records the command and returns the scripted result.
func (f *Fake) RunCommand(ctx context.Context, cmd string, args map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, cmd)
	if f.CommandErr != nil {
		return nil, f.CommandErr
	}
	return f.Results[cmd], nil
}

// CurrentURL returns the scripted URL.
func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return "", f.CaptureErr
	}
	return f.URL, nil
}

// PageSource returns the scripted source.
func (f *Fake) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return "", f.CaptureErr
	}
	return f.Source, nil
}

// Screenshot returns the scripted image bytes.
func (f *Fake) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	return f.Image, nil
}
