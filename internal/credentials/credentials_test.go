package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadAccountsKeepsDescriptorsOpaque(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "accounts.json")
	writeFile(t, path, `[{"id":1,"hash":"a"}, "query_id=abc&user=x"]`)

	got, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"id":1,"hash":"a"}`, string(got[0]))
	assert.Equal(t, `"query_id=abc&user=x"`, string(got[1]))
}

func TestLoadAccountsRejectsUnusableStores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testCases := []struct {
		name string
		body *string
	}{
		{name: "missing"},
		{name: "object", body: ptr(`{"id":1}`)},
		{name: "empty array", body: ptr(`[]`)},
		{name: "garbage", body: ptr(`not json`)},
		{name: "null entry", body: ptr(`[null]`)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".json")
			if tc.body != nil {
				writeFile(t, path, *tc.body)
			}
			_, err := LoadAccounts(path)
			require.Error(t, err)
			assert.True(t, clierr.Is(err, clierr.CodeInput), "expected input error, got %v", err)
		})
	}
}

func TestTokenStoreLoadPadsAndTruncates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTokenStore(filepath.Join(dir, "token.json"), "")

	got, err := store.Load(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", ""}, got)

	writeFile(t, store.Path(), `["a", null, "c", "d"]`)
	got, err = store.Load(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "c"}, got)

	got, err = store.Load(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "c", "d", ""}, got)

	writeFile(t, store.Path(), `{broken`)
	got, err = store.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, got)
}

func TestTokenStoreUnreadableFileMeansNoCachedTokens(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	require.NoError(t, os.Mkdir(path, 0o700))

	core, logs := observer.New(zap.WarnLevel)
	store := NewTokenStore(path, "").WithLogger(zap.New(core))

	got, err := store.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, got)
	assert.Equal(t, 1, logs.FilterMessageSnippet("unreadable").Len())
}

func TestTokenStoreSaveRewritesWholeFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTokenStore(filepath.Join(dir, "nested", "token.json"), filepath.Join(dir, "locks", "token.lock"))

	require.NoError(t, store.Save(context.Background(), []string{"t1", "t2", "t3"}))
	require.NoError(t, store.Save(context.Background(), []string{"t1", "new"}))

	buf, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	var stored []string
	require.NoError(t, json.Unmarshal(buf, &stored))
	assert.Equal(t, []string{"t1", "new"}, stored)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMod), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestTokenStoreHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.Save(ctx, []string{"x"}))
	_, err := store.Load(ctx, 1)
	assert.Error(t, err)
}

func TestWalletStoreRoundTripAndPairing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wallets.json")
	wallets, err := LoadWallets(path)
	require.NoError(t, err)
	assert.Empty(t, wallets)
	assert.Equal(t, 1, NextWalletID(wallets))

	all, err := AppendWallets(path, []Wallet{
		{ID: 1, Address: "addr-1", PrivateKey: "key-1"},
		{ID: 3, Address: "addr-3", PrivateKey: "key-3", Chain: "solana"},
	})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 4, NextWalletID(all))

	loaded, err := LoadWallets(path)
	require.NoError(t, err)
	assert.Equal(t, all, loaded)

	w, ok := WalletFor(loaded, 2)
	require.True(t, ok)
	assert.Equal(t, "addr-3", w.Address)
	_, ok = WalletFor(loaded, 1)
	assert.False(t, ok)

	_, err = AppendWallets(path, []Wallet{{ID: 1, Address: "dup"}})
	assert.True(t, clierr.Is(err, clierr.CodeUsage))
}

func TestLoadWalletsRejectsMalformedStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wallets.json")
	writeFile(t, path, `{"id":1}`)
	_, err := LoadWallets(path)
	assert.True(t, clierr.Is(err, clierr.CodeInput))
}

func ptr(s string) *string { return &s }
