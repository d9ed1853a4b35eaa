package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scenicrun/scenic/internal/browser"
)

// captureTimeout bounds diagnostics capture after a failed run. The run's
// own context may already be dead, so capture gets a fresh short one.
const captureTimeout = 10 * time.Second

// captureDiagnostics best-effort collects a screenshot and a timestamped
// page snapshot from the failed session. Capture failures are swallowed and
// never mask the original error.
func (s *Sandbox) captureDiagnostics(sess browser.Session) ([]byte, string) {
	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()

	var screenshot []byte
	if shot, err := sess.Screenshot(ctx); err != nil {
		s.log.Debug("screenshot capture failed", zap.Error(err))
	} else {
		screenshot = shot
	}

	var page string
	url, _ := sess.CurrentURL(ctx)
	if source, err := sess.PageSource(ctx); err != nil {
		s.log.Debug("page capture failed", zap.Error(err))
	} else if source != "" {
		page = fmt.Sprintf("<!-- captured=%s url=%s -->\n%s",
			time.Now().Format(time.RFC3339), url, source)
	}

	return screenshot, page
}
