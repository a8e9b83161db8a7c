package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/moonapp-tools/mooncoin-cli/internal/credentials"
	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

// Generate creates n fresh key pairs numbered from startID.
func Generate(scheme string, n, startID int) ([]credentials.Wallet, error) {
	scheme, err := NormalizeScheme(scheme)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "wallet count must be a positive number")
	}
	if startID <= 0 {
		startID = 1
	}
	out := make([]credentials.Wallet, 0, n)
	for i := 0; i < n; i++ {
		var w credentials.Wallet
		if scheme == SchemeEVM {
			w, err = generateEVM()
		} else {
			w, err = generateSVM()
		}
		if err != nil {
			return nil, err
		}
		w.ID = startID + i
		out = append(out, w)
	}
	return out, nil
}

func generateSVM() (credentials.Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return credentials.Wallet{}, clierr.Wrap(clierr.CodeInternal, "generate ed25519 key", err)
	}
	return credentials.Wallet{
		Address:    base58.Encode(pub),
		PrivateKey: base58.Encode(priv),
	}, nil
}

func generateEVM() (credentials.Wallet, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return credentials.Wallet{}, clierr.Wrap(clierr.CodeInternal, "generate secp256k1 key", err)
	}
	return credentials.Wallet{
		Address:    crypto.PubkeyToAddress(pk.PublicKey).Hex(),
		PrivateKey: fmt.Sprintf("0x%s", hex.EncodeToString(crypto.FromECDSA(pk))),
		Chain:      SchemeEVM,
	}, nil
}
