package browser

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
)

// Manager hands out sessions with scoped acquisition: every session it
// launches is closed exactly once.
type Manager struct {
	launcher Launcher
	metrics  *metrics.Metrics
	log      *logger.Logger

	acquired atomic.Int64
	released atomic.Int64
}

type Stats struct {
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
	Active   int64 `json:"active"`
}

func NewManager(launcher Launcher, m *metrics.Metrics, log *logger.Logger) *Manager {
	return &Manager{launcher: launcher, metrics: m, log: log}
}

// Acquire launches a session. The returned release func is idempotent and
// must be called on every path.
func (m *Manager) Acquire(ctx context.Context, env Environment) (Session, func(), error) {
	s, err := m.launcher.Launch(ctx, env)
	if err != nil {
		m.metrics.LaunchFailed()
		m.log.LogError(ctx, "browser launch failed", err)
		return nil, func() {}, apperr.Wrap(apperr.KindBrowserAutomation, "Failed to start browser session", err)
	}

	m.acquired.Add(1)
	m.metrics.SessionAcquired()
	m.log.Debug("BROWSER", "session acquired", zap.Int("width", env.Width), zap.Int("height", env.Height))

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := s.Close(); err != nil {
				m.log.Warn("BROWSER", "session close failed", zap.Error(err))
			}
			m.released.Add(1)
			m.metrics.SessionReleased()
			m.log.Debug("BROWSER", "session released")
		})
	}
	return s, release, nil
}

// WithSession runs fn with a fresh session and releases it afterwards,
// including when fn panics or ctx is cancelled.
func (m *Manager) WithSession(ctx context.Context, env Environment, fn func(ctx context.Context, s Session) error) error {
	s, release, err := m.Acquire(ctx, env)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, s)
}

func (m *Manager) Stats() Stats {
	a, r := m.acquired.Load(), m.released.Load()
	return Stats{Acquired: a, Released: r, Active: a - r}
}
