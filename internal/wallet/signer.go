package wallet

import (
	"fmt"
	"strings"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

const (
	SchemeSVM = "svm"
	SchemeEVM = "evm"
)

// Signer produces detached signatures over wallet-link challenge messages.
type Signer interface {
	Scheme() string
	Address() string
	SignMessage(message []byte) (string, error)
}

// NormalizeScheme maps empty and chain-style names onto a signing scheme.
func NormalizeScheme(scheme string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", SchemeSVM, "solana", "sol":
		return SchemeSVM, nil
	case SchemeEVM, "ethereum", "eth":
		return SchemeEVM, nil
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported signing scheme %q (expected %s|%s)", scheme, SchemeSVM, SchemeEVM))
	}
}

// New parses key material for the scheme. Malformed keys are CodeInvalidKey.
func New(scheme, key string) (Signer, error) {
	scheme, err := NormalizeScheme(scheme)
	if err != nil {
		return nil, err
	}
	if scheme == SchemeEVM {
		return newEVMSigner(key)
	}
	return newSVMSigner(key)
}

// Sign signs message with the encoded key and returns the encoded signature.
func Sign(scheme, key, message string) (string, error) {
	s, err := New(scheme, key)
	if err != nil {
		return "", err
	}
	return s.SignMessage([]byte(message))
}

// AddressOf derives the public address for key.
func AddressOf(scheme, key string) (string, error) {
	s, err := New(scheme, key)
	if err != nil {
		return "", err
	}
	return s.Address(), nil
}

// Verify reports whether signature over message was produced by address.
func Verify(scheme, address, message, signature string) bool {
	scheme, err := NormalizeScheme(scheme)
	if err != nil {
		return false
	}
	if scheme == SchemeEVM {
		return verifyEVM(address, []byte(message), signature)
	}
	return verifySVM(address, []byte(message), signature)
}

func ValidateAddress(scheme, address string) error {
	scheme, err := NormalizeScheme(scheme)
	if err != nil {
		return err
	}
	var ok bool
	if scheme == SchemeEVM {
		ok = validEVMAddress(address)
	} else {
		ok = validSVMAddress(address)
	}
	if !ok {
		return clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("invalid %s address %q", scheme, address))
	}
	return nil
}

func invalidKey(format string, args ...any) error {
	return clierr.New(clierr.CodeInvalidKey, fmt.Sprintf(format, args...))
}
