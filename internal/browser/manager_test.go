package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/browser"
	"payment-simulator/internal/browser/browsertest"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
)

var env = browser.Environment{UserAgent: "UA", Width: 1280, Height: 800}

func TestWithSessionReleasesOnEveryPath(t *testing.T) {
	launcher := &browsertest.Launcher{}
	m := browser.NewManager(launcher, metrics.New(), logger.NewNop())
	ctx := context.Background()

	require.NoError(t, m.WithSession(ctx, env, func(context.Context, browser.Session) error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, m.WithSession(ctx, env, func(context.Context, browser.Session) error { return boom }), boom)

	assert.Panics(t, func() {
		_ = m.WithSession(ctx, env, func(context.Context, browser.Session) error { panic("unexpected") })
	})

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := m.WithSession(timeoutCtx, env, func(ctx context.Context, s browser.Session) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := m.Stats()
	assert.Equal(t, int64(4), stats.Acquired)
	assert.Equal(t, stats.Acquired, stats.Released)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, 4, launcher.CloseCalls())
}

func TestReleaseIsIdempotent(t *testing.T) {
	launcher := &browsertest.Launcher{}
	m := browser.NewManager(launcher, nil, logger.NewNop())

	_, release, err := m.Acquire(context.Background(), env)
	require.NoError(t, err)
	release()
	release()

	assert.Equal(t, 1, launcher.CloseCalls())
	assert.Equal(t, int64(1), m.Stats().Released)
	assert.Equal(t, env, launcher.Sessions[0].Environment)
}

func TestLaunchFailureIsBrowserError(t *testing.T) {
	launcher := &browsertest.Launcher{Err: errors.New("chrome not found")}
	m := browser.NewManager(launcher, nil, logger.NewNop())

	called := false
	err := m.WithSession(context.Background(), env, func(context.Context, browser.Session) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, apperr.BrowserAutomation)
	assert.False(t, called)
	assert.Equal(t, browser.Stats{}, m.Stats())
}

func TestFrameLocatorFindsWidgetFrame(t *testing.T) {
	s := browsertest.NewSession()
	s.FrameURLs = []string{"https://example.com/ad", "https://js.stripe.com/v3/elements-inner-card.html"}
	s.FramesAfter = 2

	clock := clockz.NewFakeClock()
	locator := browser.NewPrefixFrameLocator(time.Second)
	locator.Clock = clock

	done := make(chan struct{})
	var frame browser.Frame
	var err error
	go func() {
		frame, err = locator.LocateEmbeddedCardFrame(context.Background(), s)
		close(done)
	}()

	waitOrAdvance(t, clock, locator.Interval, done)
	require.NoError(t, err)
	assert.Equal(t, "https://js.stripe.com/v3/elements-inner-card.html", frame.URL)
}

func TestFrameLocatorTimesOut(t *testing.T) {
	s := browsertest.NewSession()
	s.FrameURLs = []string{"https://example.com/other"}

	clock := clockz.NewFakeClock()
	locator := browser.NewPrefixFrameLocator(time.Second)
	locator.Clock = clock

	done := make(chan struct{})
	var err error
	go func() {
		_, err = locator.LocateEmbeddedCardFrame(context.Background(), s)
		close(done)
	}()

	waitOrAdvance(t, clock, locator.Interval, done)
	assert.ErrorIs(t, err, apperr.WidgetFrameNotFound)
}

type advancer interface {
	Advance(time.Duration)
	BlockUntilReady()
}

func waitOrAdvance(t *testing.T, clock advancer, step time.Duration, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("locator did not finish")
		default:
			clock.Advance(step)
			clock.BlockUntilReady()
			time.Sleep(time.Millisecond)
		}
	}
}
