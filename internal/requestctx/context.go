// Package requestctx carries per-request state through context.Context.
//
// A State is created once per inbound request by the request-id middleware
// and discarded when the response is written. Nothing in it outlives the
// request.
package requestctx

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrModeAlreadySet = errors.New("simulation mode already set for request")

type contextKey struct{}

// Identity is the caller derived at authentication time. It is used for
// logging and rate-limit keying only.
type Identity struct {
	ID           string `json:"id"`
	TruncatedKey string `json:"truncatedKey"`
}

type State struct {
	RequestID string
	Method    string
	Path      string
	ClientIP  string
	UserAgent string
	StartedAt time.Time

	mu       sync.RWMutex
	identity *Identity
	mode     string
}

func New(requestID, method, path, clientIP, userAgent string) *State {
	return &State{
		RequestID: requestID,
		Method:    method,
		Path:      path,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		StartedAt: time.Now(),
	}
}

func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request state, or nil outside a request.
func FromContext(ctx context.Context) *State {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(contextKey{}).(*State)
	return s
}

// RequestID returns the request id or "" when ctx carries no state.
func RequestID(ctx context.Context) string {
	if s := FromContext(ctx); s != nil {
		return s.RequestID
	}
	return ""
}

func (s *State) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
}

func (s *State) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// SetMode records the simulation mode. The mode is decided once at
// validation and a second call fails.
func (s *State) SetMode(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != "" {
		return ErrModeAlreadySet
	}
	s.mode = mode
	return nil
}

func (s *State) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}
