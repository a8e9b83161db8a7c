package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

// Wallet is one entry of the wallet store. ID is 1-based and pairs the wallet
// with the account at index ID-1.
type Wallet struct {
	ID         int    `json:"id"`
	Address    string `json:"wallet"`
	PrivateKey string `json:"privateKey"`
	Chain      string `json:"chain,omitempty"`
}

// LoadWallets reads the wallet store. A missing file is an empty store.
func LoadWallets(path string) ([]Wallet, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, clierr.Wrap(clierr.CodeInput, "read wallet store", err)
	}
	var wallets []Wallet
	if err := json.Unmarshal(buf, &wallets); err != nil {
		return nil, clierr.Wrap(clierr.CodeInput, fmt.Sprintf("wallet store %s is not a JSON array of wallets", path), err)
	}
	return wallets, nil
}

// WalletFor returns the wallet paired with the 0-based account index.
func WalletFor(wallets []Wallet, accountIndex int) (Wallet, bool) {
	for _, w := range wallets {
		if w.ID == accountIndex+1 {
			return w, true
		}
	}
	return Wallet{}, false
}

// NextWalletID is one past the highest stored id, starting at 1.
func NextWalletID(wallets []Wallet) int {
	next := 1
	for _, w := range wallets {
		if w.ID >= next {
			next = w.ID + 1
		}
	}
	return next
}

// AppendWallets adds wallets to the store and rewrites it atomically.
func AppendWallets(path string, added []Wallet) ([]Wallet, error) {
	existing, err := LoadWallets(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(existing))
	for _, w := range existing {
		seen[w.ID] = struct{}{}
	}
	for _, w := range added {
		if _, dup := seen[w.ID]; dup {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("wallet id %d already exists", w.ID))
		}
		seen[w.ID] = struct{}{}
	}
	all := append(existing, added...)
	payload, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode wallet store", err)
	}
	if err := writeAtomic(path, payload, secretFileMod); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "save wallet store", err)
	}
	return all, nil
}
