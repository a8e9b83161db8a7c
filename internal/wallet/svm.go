package wallet

import (
	"bytes"
	"crypto/ed25519"
	"strings"

	"github.com/mr-tron/base58"
)

type svmSigner struct {
	key     ed25519.PrivateKey
	address string
}

// newSVMSigner accepts the base58 encoding of a 64-byte ed25519 key pair
// (seed followed by public key).
func newSVMSigner(encoded string) (*svmSigner, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, invalidKey("empty private key")
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, invalidKey("private key is not valid base58")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, invalidKey("private key must decode to %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, invalidKey("private key public half does not match its seed")
	}
	return &svmSigner{key: derived, address: base58.Encode(derived[ed25519.SeedSize:])}, nil
}

func (s *svmSigner) Scheme() string  { return SchemeSVM }
func (s *svmSigner) Address() string { return s.address }

func (s *svmSigner) SignMessage(message []byte) (string, error) {
	return base58.Encode(ed25519.Sign(s.key, message)), nil
}

func verifySVM(address string, message []byte, signature string) bool {
	pub, err := base58.Decode(strings.TrimSpace(address))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base58.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

func validSVMAddress(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	pub, err := base58.Decode(address)
	return err == nil && len(pub) == ed25519.PublicKeySize
}
