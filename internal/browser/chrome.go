package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

type ChromeOptions struct {
	ExecPath string
	Headless bool
	// LaunchTimeout bounds browser start-up.
	LaunchTimeout time.Duration
}

// ChromeLauncher starts one headless Chrome process per session.
type ChromeLauncher struct {
	opts ChromeOptions
}

func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 30 * time.Second
	}
	return &ChromeLauncher{opts: opts}
}

func (l *ChromeLauncher) allocatorOptions(env Environment) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		// The host is trusted and runs headless inside a container.
		chromedp.NoSandbox,
		// Cross-origin frame access is required to type into the card widget.
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(env.Width, env.Height),
	)
	if env.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(env.UserAgent))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	return opts
}

// Launch starts the browser detached from ctx; ctx only bounds start-up.
// The session lives until Close.
func (l *ChromeLauncher) Launch(ctx context.Context, env Environment) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(env)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{ctx: tabCtx, cancelTab: tabCancel, cancelAlloc: allocCancel}

	// The first Run allocates the browser and binds it to the context it is
	// given, so it must run on the tab context itself and be bounded here.
	errc := make(chan error, 1)
	go func() {
		errc <- chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(env.Width), int64(env.Height)))
	}()

	timer := time.NewTimer(l.opts.LaunchTimeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		return s, nil
	case <-timer.C:
		_ = s.Close()
		return nil, fmt.Errorf("launch browser: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("launch browser: %w", ctx.Err())
	}
}

type chromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// opContext derives an operation context from the tab so that cancelling it
// never closes the tab, while still honouring the caller's cancellation.
func (s *chromeSession) opContext(caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(s.ctx)
	if deadline, ok := caller.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := s.opContext(ctx, 0)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) WaitForSelector(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (s *chromeSession) Type(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) Frames(ctx context.Context) ([]Frame, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes("iframe", &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(nodes))
	for _, n := range nodes {
		frames = append(frames, Frame{URL: n.AttributeValue("src"), node: n})
	}
	return frames, nil
}

func (s *chromeSession) TypeInFrame(ctx context.Context, frame Frame, selector, value string) error {
	if frame.node == nil {
		return fmt.Errorf("frame %q has no document node", frame.URL)
	}
	return s.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery, chromedp.FromNode(frame.node)))
}

func (s *chromeSession) Evaluate(ctx context.Context, expression string, out interface{}) error {
	var raw []byte
	err := s.run(ctx, chromedp.Evaluate(expression, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode page result: %w", err)
	}
	return nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
