// Package session owns the bearer token of every account and recovers from
// expired tokens by re-authenticating once.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

// ErrRenewed marks an operation that hit an expired token under Renew. The
// token was regenerated but the operation was not retried.
var ErrRenewed = errors.New("token renewed, operation deferred to the next cycle")

type Authenticator interface {
	Authenticate(ctx context.Context, descriptor json.RawMessage) (string, error)
}

type TokenStore interface {
	Load(ctx context.Context, n int) ([]string, error)
	Save(ctx context.Context, tokens []string) error
}

type Manager struct {
	auth        Authenticator
	store       TokenStore
	descriptors []json.RawMessage
	log         *zap.Logger

	mu     sync.Mutex
	tokens []string
}

// Open loads cached tokens for descriptors. The token list always has one
// slot per descriptor.
func Open(ctx context.Context, auth Authenticator, store TokenStore, descriptors []json.RawMessage, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tokens, err := store.Load(ctx, len(descriptors))
	if err != nil {
		return nil, err
	}
	if len(tokens) != len(descriptors) {
		padded := make([]string, len(descriptors))
		copy(padded, tokens)
		tokens = padded
	}
	return &Manager{
		auth:        auth,
		store:       store,
		descriptors: descriptors,
		log:         log,
		tokens:      tokens,
	}, nil
}

func (m *Manager) Len() int { return len(m.descriptors) }

// Token returns the cached token for account i, authenticating first when
// there is none.
func (m *Manager) Token(ctx context.Context, i int) (string, error) {
	if err := m.checkIndex(i); err != nil {
		return "", err
	}
	m.mu.Lock()
	tok := m.tokens[i]
	m.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return m.refresh(ctx, i)
}

// Invalidate drops the cached token for account i.
func (m *Manager) Invalidate(i int) {
	if m.checkIndex(i) != nil {
		return
	}
	m.mu.Lock()
	m.tokens[i] = ""
	m.mu.Unlock()
}

// Do runs op with a valid token for account i. When op fails with an auth
// error the token is regenerated and op is retried exactly once; a second
// auth failure is terminal for this call. Other failures are returned as is.
func (m *Manager) Do(ctx context.Context, i int, op func(ctx context.Context, token string) error) error {
	token, err := m.Token(ctx, i)
	if err != nil {
		return err
	}
	err = op(ctx, token)
	if !clierr.Is(err, clierr.CodeAuth) {
		return err
	}

	m.log.Info("token rejected, re-authenticating", zap.Int("account", i+1))
	m.Invalidate(i)
	token, err = m.refresh(ctx, i)
	if err != nil {
		return err
	}
	err = op(ctx, token)
	if clierr.Is(err, clierr.CodeAuth) {
		m.drop(ctx, i)
		return clierr.Wrap(clierr.CodeAuth, "re-authentication did not restore access", err)
	}
	return err
}

// Renew runs op once. When op fails with an auth error the token is
// regenerated and persisted, but op is not run again; the returned error
// wraps ErrRenewed.
func (m *Manager) Renew(ctx context.Context, i int, op func(ctx context.Context, token string) error) error {
	token, err := m.Token(ctx, i)
	if err != nil {
		return err
	}
	err = op(ctx, token)
	if !clierr.Is(err, clierr.CodeAuth) {
		return err
	}

	m.log.Info("token rejected, re-authenticating without retry", zap.Int("account", i+1))
	m.Invalidate(i)
	if _, err := m.refresh(ctx, i); err != nil {
		return err
	}
	return clierr.Wrap(clierr.CodeAuth, "token expired", ErrRenewed)
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, m *Manager, i int, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	return call(ctx, m.Do, i, fn)
}

// RenewCall is Renew for operations that return a value.
func RenewCall[T any](ctx context.Context, m *Manager, i int, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	return call(ctx, m.Renew, i, fn)
}

type runner func(ctx context.Context, i int, op func(ctx context.Context, token string) error) error

func call[T any](ctx context.Context, run runner, i int, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	var out T
	err := run(ctx, i, func(ctx context.Context, token string) error {
		v, err := fn(ctx, token)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Tokens is a snapshot of the current token list.
func (m *Manager) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens...)
}

func (m *Manager) refresh(ctx context.Context, i int) (string, error) {
	token, err := m.auth.Authenticate(ctx, m.descriptors[i])
	if err != nil {
		m.drop(ctx, i)
		if !clierr.Is(err, clierr.CodeAuth) {
			err = clierr.Wrap(clierr.CodeAuth, "authenticate", err)
		}
		return "", err
	}

	m.mu.Lock()
	m.tokens[i] = token
	snapshot := append([]string(nil), m.tokens...)
	m.mu.Unlock()

	m.persist(ctx, i, snapshot)
	m.log.Debug("authenticated", zap.Int("account", i+1))
	return token, nil
}

// drop clears the token of account i and persists the list, so a rejected
// token is not offered again by the next run.
func (m *Manager) drop(ctx context.Context, i int) {
	m.mu.Lock()
	m.tokens[i] = ""
	snapshot := append([]string(nil), m.tokens...)
	m.mu.Unlock()
	m.persist(ctx, i, snapshot)
}

func (m *Manager) persist(ctx context.Context, i int, snapshot []string) {
	if err := m.store.Save(ctx, snapshot); err != nil {
		m.log.Warn("persist token store failed", zap.Int("account", i+1), zap.Error(err))
	}
}

func (m *Manager) checkIndex(i int) error {
	if i < 0 || i >= len(m.descriptors) {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("account index %d out of range (have %d)", i+1, len(m.descriptors)))
	}
	return nil
}
