// Package session implements the client session registry (component C):
// endpoint → live stack client, connect/disconnect lifecycle, and status
// callbacks.
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/resilience"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
)

// Status codes surfaced via the status callback, per spec §6.1.
type Status int

const (
	StatusClientStarted Status = iota
	StatusStopClient
	StatusServerStarted
	StatusStopServer
	StatusConnected
	StatusDisconnected
)

// PumpController is the narrow interface session holds onto a session's
// publish pump, so this package never imports internal/subscription
// (which in turn needs session lookups) — breaks the import cycle.
type PumpController interface {
	Stop()
	Join()
}

// Session is one live connection to a server, keyed by canonical
// host:port.
type Session struct {
	Key    string
	Client stack.Client

	mu   sync.Mutex
	pump PumpController
}

// AttachPump records the subscription engine's publish pump for this
// session so Disconnect can stop and join it before tearing the session
// down.
func (s *Session) AttachPump(pc PumpController) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pump = pc
}

func (s *Session) detachPump() PumpController {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc := s.pump
	s.pump = nil
	return pc
}

// Registry maps session keys to live sessions (spec §4.3).
type Registry struct {
	logger   *zap.Logger
	stack    stack.Stack
	breakers *resilience.Breakers
	onStatus func(endpoint string, status Status)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, st stack.Stack, breakers *resilience.Breakers, onStatus func(string, Status)) *Registry {
	return &Registry{
		logger:   logger,
		stack:    st,
		breakers: breakers,
		onStatus: onStatus,
		sessions: make(map[string]*Session),
	}
}

// ErrAlreadyConnected is returned by Connect when a session already exists
// for the endpoint's session key.
var ErrAlreadyConnected = fmt.Errorf("already connected")

// ErrConnectFailed wraps a stack.Connect failure or a breaker rejection.
type ErrConnectFailed struct{ Cause error }

func (e *ErrConnectFailed) Error() string { return fmt.Sprintf("connect failed: %v", e.Cause) }
func (e *ErrConnectFailed) Unwrap() error { return e.Cause }

func (r *Registry) sessionKey(endpointURL string) (string, error) {
	host, port, _, err := r.stack.ParseEndpointURL(endpointURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", host, port), nil
}

// Connect creates a new session for endpointURL, failing with
// ErrAlreadyConnected if one exists, or ErrConnectFailed on dial failure
// (including a breaker rejection — spec §7 category 6).
func (r *Registry) Connect(ctx context.Context, endpointURL string) (*Session, error) {
	key, err := r.sessionKey(endpointURL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	r.mu.Lock()
	if _, exists := r.sessions[key]; exists {
		r.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	r.mu.Unlock()

	client, err := r.stack.ClientNew(endpointURL)
	if err != nil {
		return nil, &ErrConnectFailed{Cause: err}
	}

	breakErr := r.breakers.Execute(key, func() error {
		return client.Connect(ctx)
	})
	if breakErr != nil {
		return nil, &ErrConnectFailed{Cause: breakErr}
	}

	sess := &Session{Key: key, Client: client}

	r.mu.Lock()
	r.sessions[key] = sess
	r.mu.Unlock()

	r.logger.Info("client connected", zap.String("session", key))
	if r.onStatus != nil {
		r.onStatus(endpointURL, StatusClientStarted)
	}
	return sess, nil
}

// Get resolves endpointURL to its live session, or returns false if none
// exists.
func (r *Registry) Get(endpointURL string) (*Session, bool) {
	key, err := r.sessionKey(endpointURL)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Disconnect stops the session's publish pump, closes the stack client,
// and removes the session from the registry.
func (r *Registry) Disconnect(ctx context.Context, endpointURL string) error {
	key, err := r.sessionKey(endpointURL)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	r.mu.Lock()
	sess, exists := r.sessions[key]
	if exists {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("no session for %s", key)
	}

	if pc := sess.detachPump(); pc != nil {
		pc.Stop()
		pc.Join()
	}

	if err := sess.Client.Close(ctx); err != nil {
		r.logger.Warn("error closing client", zap.String("session", key), zap.Error(err))
	}
	r.breakers.Remove(key)

	r.logger.Info("client disconnected", zap.String("session", key))
	if r.onStatus != nil {
		r.onStatus(endpointURL, StatusStopClient)
	}
	return nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
