package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

type fakeAuth struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func (f *fakeAuth) Authenticate(_ context.Context, descriptor json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(descriptor)
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[key]++
	if err := f.fail[key]; err != nil {
		return "", err
	}
	return fmt.Sprintf("tok-%s-%d", key, f.calls[key]), nil
}

type memStore struct {
	initial []string
	saves   [][]string
	saveErr error
}

func (s *memStore) Load(_ context.Context, n int) ([]string, error) {
	out := make([]string, n)
	copy(out, s.initial)
	return out, nil
}

func (s *memStore) Save(_ context.Context, tokens []string) error {
	s.saves = append(s.saves, append([]string(nil), tokens...))
	return s.saveErr
}

func descriptors(names ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(names))
	for _, n := range names {
		out = append(out, json.RawMessage(n))
	}
	return out
}

func authErr() error { return clierr.WithStatus(clierr.CodeAuth, 401, "Unauthorized") }

func TestTokenAuthenticatesWhenNoCachedToken(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	store := &memStore{initial: []string{"", "cached-b"}}
	m, err := Open(context.Background(), auth, store, descriptors("a", "b"), nil)
	require.NoError(t, err)

	tok, err := m.Token(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "tok-a-1", tok)

	tok, err = m.Token(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "cached-b", tok)

	assert.Equal(t, 1, auth.calls["a"])
	assert.Zero(t, auth.calls["b"])
	require.Len(t, store.saves, 1)
	assert.Equal(t, []string{"tok-a-1", "cached-b"}, store.saves[0], "the full token list is persisted")
}

func TestDoRetriesOnceAfterAuthFailure(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	store := &memStore{initial: []string{"stale"}}
	m, err := Open(context.Background(), auth, store, descriptors("a"), nil)
	require.NoError(t, err)

	var seen []string
	err = m.Do(context.Background(), 0, func(_ context.Context, token string) error {
		seen = append(seen, token)
		if token == "stale" {
			return authErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stale", "tok-a-1"}, seen)
	assert.Equal(t, 1, auth.calls["a"])
	assert.Equal(t, []string{"tok-a-1"}, m.Tokens())
}

func TestDoSecondAuthFailureIsTerminal(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	m, err := Open(context.Background(), auth, &memStore{initial: []string{"stale"}}, descriptors("a"), nil)
	require.NoError(t, err)

	attempts := 0
	err = m.Do(context.Background(), 0, func(context.Context, string) error {
		attempts++
		return authErr()
	})
	require.Error(t, err)
	assert.True(t, clierr.Is(err, clierr.CodeAuth))
	assert.Equal(t, 2, attempts, "exactly one retry")
	assert.Equal(t, 1, auth.calls["a"], "exactly one re-authentication")
	assert.Equal(t, []string{""}, m.Tokens())
}

func TestDoSecondAuthFailurePersistsDroppedToken(t *testing.T) {
	t.Parallel()

	store := &memStore{initial: []string{"stale", "tok-b"}}
	m, err := Open(context.Background(), &fakeAuth{}, store, descriptors("a", "b"), nil)
	require.NoError(t, err)

	err = m.Do(context.Background(), 0, func(context.Context, string) error { return authErr() })
	require.Error(t, err)
	require.NotEmpty(t, store.saves)
	assert.Equal(t, []string{"", "tok-b"}, store.saves[len(store.saves)-1], "the rejected token must not survive in the store")
}

func TestRenewRegeneratesTokenWithoutRetry(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	store := &memStore{initial: []string{"stale"}}
	m, err := Open(context.Background(), auth, store, descriptors("a"), nil)
	require.NoError(t, err)

	attempts := 0
	_, err = RenewCall(context.Background(), m, 0, func(context.Context, string) (int, error) {
		attempts++
		return 0, authErr()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRenewed))
	assert.Equal(t, 1, attempts, "no retry")
	assert.Equal(t, 1, auth.calls["a"])
	assert.Equal(t, []string{"tok-a-1"}, m.Tokens())
	require.Len(t, store.saves, 1)
	assert.Equal(t, []string{"tok-a-1"}, store.saves[0])
}

func TestRenewPassesThroughSuccessAndOtherFailures(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	m, err := Open(context.Background(), auth, &memStore{initial: []string{"ok"}}, descriptors("a"), nil)
	require.NoError(t, err)

	got, err := RenewCall(context.Background(), m, 0, func(_ context.Context, token string) (string, error) {
		return token, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	boom := clierr.WithStatus(clierr.CodeRemote, 500, "boom")
	err = m.Renew(context.Background(), 0, func(context.Context, string) error { return boom })
	assert.True(t, errors.Is(err, boom))
	assert.Zero(t, auth.calls["a"])
}

func TestDoDoesNotRetryNonAuthFailures(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	m, err := Open(context.Background(), auth, &memStore{initial: []string{"ok"}}, descriptors("a"), nil)
	require.NoError(t, err)

	for _, failure := range []error{
		clierr.WithStatus(clierr.CodeRateLimited, 429, "slow down"),
		clierr.WithStatus(clierr.CodeRemote, 500, "boom"),
		clierr.New(clierr.CodeTransport, "reset"),
	} {
		attempts := 0
		err := m.Do(context.Background(), 0, func(context.Context, string) error {
			attempts++
			return failure
		})
		assert.True(t, errors.Is(err, failure))
		assert.Equal(t, 1, attempts)
	}
	assert.Zero(t, auth.calls["a"])
}

func TestDoFailedReauthenticationIsTerminalForAccount(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{fail: map[string]error{"a": clierr.New(clierr.CodeTransport, "login unreachable")}}
	m, err := Open(context.Background(), auth, &memStore{initial: []string{"stale"}}, descriptors("a"), nil)
	require.NoError(t, err)

	attempts := 0
	err = m.Do(context.Background(), 0, func(context.Context, string) error {
		attempts++
		return authErr()
	})
	assert.True(t, clierr.Is(err, clierr.CodeAuth))
	assert.Equal(t, 1, attempts)
}

func TestCallReturnsValueAndPersistenceFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := &memStore{saveErr: errors.New("disk full")}
	m, err := Open(context.Background(), &fakeAuth{}, store, descriptors("a", "b"), nil)
	require.NoError(t, err)

	got, err := Call(context.Background(), m, 1, func(_ context.Context, token string) (int, error) {
		return len(token), nil
	})
	require.NoError(t, err)
	assert.Equal(t, len("tok-b-1"), got)
	assert.Equal(t, []string{"", "tok-b-1"}, m.Tokens())
}

func TestIndexOutOfRangeIsUsageError(t *testing.T) {
	t.Parallel()

	m, err := Open(context.Background(), &fakeAuth{}, &memStore{}, descriptors("a"), nil)
	require.NoError(t, err)
	_, err = m.Token(context.Background(), 3)
	assert.True(t, clierr.Is(err, clierr.CodeUsage))
}
