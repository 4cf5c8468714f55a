package browser

import (
	"context"
	"strings"
	"time"

	"github.com/zoobzio/clockz"

	"payment-simulator/internal/apperr"
)

// DefaultWidgetFramePrefix identifies the card widget's frame. It depends on
// how the third-party widget is hosted and must be revisited when that
// changes.
const DefaultWidgetFramePrefix = "https://js.stripe.com"

// FrameLocator finds the embedded card-entry frame of the checkout page.
type FrameLocator interface {
	LocateEmbeddedCardFrame(ctx context.Context, s Session) (Frame, error)
}

// PrefixFrameLocator polls the page's frames until one whose source starts
// with a known prefix appears.
type PrefixFrameLocator struct {
	Prefixes []string
	Timeout  time.Duration
	Interval time.Duration
	Clock    clockz.Clock
}

func NewPrefixFrameLocator(timeout time.Duration, prefixes ...string) *PrefixFrameLocator {
	if len(prefixes) == 0 {
		prefixes = []string{DefaultWidgetFramePrefix}
	}
	return &PrefixFrameLocator{
		Prefixes: prefixes,
		Timeout:  timeout,
		Interval: 250 * time.Millisecond,
		Clock:    clockz.RealClock,
	}
}

func (l *PrefixFrameLocator) match(url string) bool {
	for _, p := range l.Prefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

func (l *PrefixFrameLocator) LocateEmbeddedCardFrame(ctx context.Context, s Session) (Frame, error) {
	clock := l.Clock
	if clock == nil {
		clock = clockz.RealClock
	}
	start := clock.Now()

	var lastErr error
	for {
		frames, err := s.Frames(ctx)
		if err != nil {
			lastErr = err
		}
		for _, f := range frames {
			if l.match(f.URL) {
				return f, nil
			}
		}

		if clock.Now().Sub(start) >= l.Timeout {
			return Frame{}, apperr.Wrap(apperr.KindWidgetFrameNotFound, "Payment widget frame not found", lastErr)
		}
		select {
		case <-clock.After(l.Interval):
		case <-ctx.Done():
			return Frame{}, apperr.Wrap(apperr.KindWidgetFrameNotFound, "Payment widget frame not found", ctx.Err())
		}
	}
}
