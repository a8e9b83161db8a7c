package wallet

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type evmSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func newEVMSigner(raw string) (*evmSigner, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, invalidKey("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, invalidKey("parse private key: %v", err)
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, invalidKey("invalid ECDSA public key")
	}
	return &evmSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func (s *evmSigner) Scheme() string  { return SchemeEVM }
func (s *evmSigner) Address() string { return s.address.Hex() }

// SignMessage produces an EIP-191 personal_sign signature with V in {27,28}.
func (s *evmSigner) SignMessage(message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), s.privateKey)
	if err != nil {
		return "", invalidKey("sign message: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func verifyEVM(address string, message []byte, signature string) bool {
	if !validEVMAddress(address) {
		return false
	}
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(address)
}

func validEVMAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}
