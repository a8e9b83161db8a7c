package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/moonapp-tools/mooncoin-cli/internal/credentials"
	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
	"github.com/moonapp-tools/mooncoin-cli/internal/model"
	"github.com/moonapp-tools/mooncoin-cli/internal/mooncoin"
	"github.com/moonapp-tools/mooncoin-cli/internal/session"
	"github.com/moonapp-tools/mooncoin-cli/internal/wallet"
)

// SyncWallets links each account to its wallet from the wallet store. Key and
// address are validated locally before any remote call. With relink, linked
// addresses are disconnected and the wallet is linked again.
func (o *Orchestrator) SyncWallets(ctx context.Context, run *Run, wallets []credentials.Wallet, relink bool) []model.Outcome {
	return o.forEach(ctx, run, model.ActionWalletSync, func(ctx context.Context, run *Run, i int) model.Outcome {
		w, ok := credentials.WalletFor(wallets, i)
		if !ok {
			return model.Outcome{Status: model.OutcomeSkipped, Detail: fmt.Sprintf("no wallet with id %d", i+1)}
		}
		scheme, err := validateWallet(w)
		if err != nil {
			out := failure(err)
			out.Wallet = w.Address
			return out
		}

		out := o.syncWallet(ctx, run, i, w, scheme, relink)
		out.Wallet = w.Address
		return out
	})
}

func validateWallet(w credentials.Wallet) (string, error) {
	scheme, err := wallet.NormalizeScheme(w.Chain)
	if err != nil {
		return "", err
	}
	if err := wallet.ValidateAddress(scheme, w.Address); err != nil {
		return "", err
	}
	derived, err := wallet.AddressOf(scheme, w.PrivateKey)
	if err != nil {
		return "", err
	}
	if !sameAddress(scheme, derived, w.Address) {
		return "", clierr.New(clierr.CodeInvalidKey, "private key does not belong to the wallet address")
	}
	return scheme, nil
}

func (o *Orchestrator) syncWallet(ctx context.Context, run *Run, i int, w credentials.Wallet, scheme string, relink bool) model.Outcome {
	p, err := o.profile(ctx, run, i)
	if err != nil {
		return failure(err)
	}
	linked, err := session.Call(ctx, o.sessions, i, o.api.LinkedWallets)
	if err != nil {
		return failure(err)
	}

	if len(linked) > 0 && !relink {
		if containsAddress(scheme, linked, w.Address) {
			return model.Outcome{Status: model.OutcomeOK, Detail: "wallet already linked"}
		}
		return model.Outcome{
			Status: model.OutcomeSkipped,
			Detail: fmt.Sprintf("another wallet is linked (%s); use --relink to replace it", linked[0].Address),
		}
	}
	for _, lw := range linked {
		addr := lw.Address
		err := o.sessions.Do(ctx, i, func(ctx context.Context, token string) error {
			return o.api.DisconnectWallet(ctx, token, addr)
		})
		if err != nil {
			return failure(err)
		}
		o.log.Info("wallet disconnected", zap.Int("account", i+1), zap.String("wallet", addr))
	}

	challenge, err := session.Call(ctx, o.sessions, i, func(ctx context.Context, token string) (mooncoin.LinkChallenge, error) {
		return o.api.CreateLinkChallenge(ctx, token, w.Address)
	})
	if err != nil {
		return failure(err)
	}
	signature, err := wallet.Sign(scheme, w.PrivateKey, challenge.Message)
	if err != nil {
		return failure(err)
	}
	payload := mooncoin.SignedLink{
		Address:   w.Address,
		Code:      challenge.Code,
		Signature: signature,
		UserID:    string(p.ID),
	}
	if err := o.sessions.Do(ctx, i, func(ctx context.Context, token string) error {
		return o.api.VerifyLink(ctx, token, payload)
	}); err != nil {
		return failure(err)
	}

	confirmed, err := session.Call(ctx, o.sessions, i, o.api.LinkedWallets)
	if err != nil {
		return failure(err)
	}
	if !containsAddress(scheme, confirmed, w.Address) {
		return failure(clierr.New(clierr.CodeRemote, "wallet not listed after verification"))
	}
	p.Wallet = w.Address
	return model.Outcome{Status: model.OutcomeOK, Detail: "wallet linked"}
}

func containsAddress(scheme string, linked []mooncoin.LinkedWallet, address string) bool {
	for _, lw := range linked {
		if sameAddress(scheme, lw.Address, address) {
			return true
		}
	}
	return false
}

// sameAddress compares base58 addresses exactly and EVM addresses without case.
func sameAddress(scheme, a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if scheme == wallet.SchemeEVM {
		return strings.EqualFold(a, b)
	}
	return a == b
}
