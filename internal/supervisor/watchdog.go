package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CheckStaleness is wired into the cron runner (staleness_check spec) to warn
// when neither side's book has updated recently — a sign the stream adapter
// has silently stopped delivering for the active market.
func (s *Supervisor) CheckStaleness(ctx context.Context, staleAfter time.Duration) {
	st := s.engine.Status()
	if st.ActiveSlug == "" {
		return
	}
	latest := st.UpBook.Ts
	if st.DownBook.Ts.After(latest) {
		latest = st.DownBook.Ts
	}
	if latest.IsZero() {
		return
	}
	if age := time.Since(latest); age > staleAfter {
		s.logger.Warn("market data stale",
			zap.String("slug", st.ActiveSlug),
			zap.Duration("age", age),
		)
		s.mu.RLock()
		adapter := s.adapter
		s.mu.RUnlock()
		if adapter != nil {
			adapter.Reconnect()
		}
	}
}
