// Package browsertest provides in-memory browser sessions for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"payment-simulator/internal/browser"
)

var ErrSelectorNotFound = errors.New("selector not found")

// Session is a scriptable browser.Session. Zero values behave like a page
// where every selector exists and every action succeeds.
type Session struct {
	mu sync.Mutex

	NavigateErr error
	// Missing selectors fail WaitForSelector and report false from Exists.
	Missing map[string]bool
	// FrameURLs are returned by Frames once FramesAfter calls have been made.
	FrameURLs   []string
	FramesAfter int
	// TypeErrs pops one error per call for a selector; nil entries succeed.
	TypeErrs map[string][]error
	// EvalResults pops one result per Evaluate call. A value of type error is
	// returned as the error; anything else is JSON round-tripped into out.
	EvalResults []interface{}
	// Block makes every call wait for ctx cancellation.
	Block bool

	Navigated   []string
	Typed       map[string]string
	FrameTyped  map[string]string
	Values      map[string]string
	Evaluated   []string
	FrameCalls  int
	CloseCalls  int
	Environment browser.Environment
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) block(ctx context.Context) error {
	if !s.Block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.block(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Navigated = append(s.Navigated, url)
	return s.NavigateErr
}

func (s *Session) WaitForSelector(ctx context.Context, selector string) error {
	if err := s.block(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	missing := s.Missing[selector]
	s.mu.Unlock()
	if missing {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *Session) Exists(_ context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Missing[selector], nil
}

func (s *Session) popTypeErr(key string) error {
	errs := s.TypeErrs[key]
	if len(errs) == 0 {
		return nil
	}
	s.TypeErrs[key] = errs[1:]
	return errs[0]
}

func (s *Session) Type(ctx context.Context, selector, value string) error {
	if err := s.block(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.popTypeErr(selector); err != nil {
		return err
	}
	if s.Typed == nil {
		s.Typed = make(map[string]string)
	}
	s.Typed[selector] += value
	return nil
}

func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	if err := s.block(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[selector] = value
	return nil
}

func (s *Session) Frames(ctx context.Context) ([]browser.Frame, error) {
	if err := s.block(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FrameCalls++
	if s.FrameCalls <= s.FramesAfter {
		return nil, nil
	}
	frames := make([]browser.Frame, 0, len(s.FrameURLs))
	for _, u := range s.FrameURLs {
		frames = append(frames, browser.NewFrame(u))
	}
	return frames, nil
}

func (s *Session) TypeInFrame(ctx context.Context, frame browser.Frame, selector, value string) error {
	if err := s.block(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.popTypeErr("frame:" + selector); err != nil {
		return err
	}
	if s.FrameTyped == nil {
		s.FrameTyped = make(map[string]string)
	}
	// Last write wins so a retried fill records the final value.
	s.FrameTyped[selector] = value
	return nil
}

func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := s.block(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Evaluated = append(s.Evaluated, expression)
	if len(s.EvalResults) == 0 {
		return nil
	}
	next := s.EvalResults[0]
	s.EvalResults = s.EvalResults[1:]
	if err, ok := next.(error); ok {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// EvaluatedContaining counts Evaluate calls whose expression contains sub.
func (s *Session) EvaluatedContaining(sub string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.Evaluated {
		if strings.Contains(e, sub) {
			n++
		}
	}
	return n
}

// Launcher hands out Sessions built by New, or fails with Err.
type Launcher struct {
	mu       sync.Mutex
	New      func() *Session
	Err      error
	Sessions []*Session
}

func (l *Launcher) Launch(_ context.Context, env browser.Environment) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	s := NewSession()
	if l.New != nil {
		s = l.New()
	}
	s.Environment = env
	l.Sessions = append(l.Sessions, s)
	return s, nil
}

// CloseCalls sums Close calls across every launched session.
func (l *Launcher) CloseCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.Sessions {
		s.mu.Lock()
		n += s.CloseCalls
		s.mu.Unlock()
	}
	return n
}
