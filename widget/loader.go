package widget

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/internal/metrics"
)

// loadScripts injects the vendor loader scripts strictly in order: the
// second script must not start until the first has resolved.
func (m *Manager) loadScripts(ctx context.Context, urls []string) error {
	for _, url := range urls {
		if err := m.loadScriptWithRetry(ctx, url); err != nil {
			metrics.WidgetLoadTotal.WithLabelValues("failed").Inc()
			return err
		}
	}
	metrics.WidgetLoadTotal.WithLabelValues("ok").Inc()
	return nil
}

// loadScriptWithRetry attempts one script up to cfg.RetryAttempts times
// total. The delay before attempt k (k >= 2) is cfg.RetryBackoff * (k-1);
// the first attempt starts immediately. Each attempt races the injection
// against a per-script timeout.
func (m *Manager) loadScriptWithRetry(ctx context.Context, url string) error {
	attempts := m.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			m.sleep(m.cfg.RetryBackoff * time.Duration(attempt-1))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.ScriptTimeout)
		err := m.host.InjectScript(attemptCtx, url)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		m.debugf("widget: script load attempt failed", map[string]interface{}{
			"url": url, "attempt": attempt, "error": err.Error(),
		})

		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %v",
		apperrors.ErrWidgetLoad, url, attempts, lastErr)
}

// debugf logs only when the debug flag is set; widget failures must never
// get noisy on the host page.
func (m *Manager) debugf(msg string, fields map[string]interface{}) {
	if !m.cfg.Debug {
		return
	}
	log.Debug().Fields(fields).Msg(msg)
}
