// Package browser owns the automated browser sessions used to drive the
// checkout page.
package browser

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
)

// Environment is the client the session impersonates.
type Environment struct {
	UserAgent string
	Width     int
	Height    int
}

// Frame is an embedded sub-document of the page. URL is the frame source.
type Frame struct {
	URL  string
	node *cdp.Node
}

func NewFrame(url string) Frame {
	return Frame{URL: url}
}

// Session is a single isolated page. It is never shared across requests.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string) error
	// Exists reports whether selector currently matches an element.
	Exists(ctx context.Context, selector string) (bool, error)
	Type(ctx context.Context, selector, value string) error
	SetValue(ctx context.Context, selector, value string) error
	Frames(ctx context.Context) ([]Frame, error)
	TypeInFrame(ctx context.Context, frame Frame, selector, value string) error
	// Evaluate runs expression, awaits a returned promise and decodes the
	// JSON result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	Close() error
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context, env Environment) (Session, error)
}
