package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moonapp-tools/mooncoin-cli/internal/credentials"
	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
	"github.com/moonapp-tools/mooncoin-cli/internal/model"
	"github.com/moonapp-tools/mooncoin-cli/internal/orchestrator"
	"github.com/moonapp-tools/mooncoin-cli/internal/schema"
	"github.com/moonapp-tools/mooncoin-cli/internal/wallet"
)

var accountsAnnotation = map[string]string{schema.AnnotationAccounts: "true"}

type runAction func(ctx context.Context, run *orchestrator.Run) []model.Outcome

// runAccountAction loads every profile and then applies action to all
// accounts. Per-account failures land in the outcomes, not in the error.
func (s *runtimeState) runAccountAction(cmd *cobra.Command, action func(o *orchestrator.Orchestrator) runAction) error {
	ctx := cmd.Context()
	if err := s.ensureSession(ctx); err != nil {
		return err
	}
	s.orch.LoadProfiles(ctx, s.run)
	outcomes := action(s.orch)(ctx, s.run)
	return s.emitOutcomes(trimRootPath(cmd.CommandPath()), outcomes)
}

func (s *runtimeState) newCheckInCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "checkin",
		Annotations: accountsAnnotation,
		Short:       "Claim the daily check-in for every account",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAccountAction(cmd, func(o *orchestrator.Orchestrator) runAction { return o.CheckIn })
		},
	}
}

func (s *runtimeState) newTasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "tasks",
		Annotations: accountsAnnotation,
		Short:       "Complete every pending task for every account",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAccountAction(cmd, func(o *orchestrator.Orchestrator) runAction { return o.SweepTasks })
		},
	}
}

func (s *runtimeState) newSpinCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "spin",
		Annotations: accountsAnnotation,
		Short:       "Use every available spin credit for every account",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAccountAction(cmd, func(o *orchestrator.Orchestrator) runAction { return o.Spin })
		},
	}
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Annotations: accountsAnnotation,
		Short:       "Show username, balance, spins and linked wallet per account",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := s.ensureSession(ctx); err != nil {
				return err
			}
			outcomes := s.orch.LoadProfiles(ctx, s.run)
			partial := model.Partial(outcomes)
			s.lastPartial = partial
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.run.Summaries(), nil, partial)
		},
	}
}

func (s *runtimeState) newWalletCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet store and account wallet linking",
	}

	var relink bool
	syncCmd := &cobra.Command{
		Use:         "sync",
		Annotations: accountsAnnotation,
		Short:       "Link each account to the wallet with the matching id",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wallets, err := s.loadWallets()
			if err != nil {
				return err
			}
			return s.runAccountAction(cmd, func(o *orchestrator.Orchestrator) runAction {
				return func(ctx context.Context, run *orchestrator.Run) []model.Outcome {
					return o.SyncWallets(ctx, run, wallets, relink)
				}
			})
		},
	}
	syncCmd.Flags().BoolVar(&relink, "relink", false, "Disconnect linked wallets and link the stored wallet again")

	var count int
	var scheme string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Generate key pairs and append them to the wallet store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			existing, err := credentials.LoadWallets(s.settings.WalletsPath)
			if err != nil {
				return err
			}
			generated, err := wallet.Generate(scheme, count, credentials.NextWalletID(existing))
			if err != nil {
				return err
			}
			if _, err := credentials.AppendWallets(s.settings.WalletsPath, generated); err != nil {
				return err
			}
			type created struct {
				ID      int    `json:"id"`
				Address string `json:"wallet"`
				Chain   string `json:"chain,omitempty"`
				Store   string `json:"store"`
			}
			rows := make([]created, 0, len(generated))
			for _, w := range generated {
				rows = append(rows, created{ID: w.ID, Address: w.Address, Chain: w.Chain, Store: s.settings.WalletsPath})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, nil, false)
		},
	}
	createCmd.Flags().IntVar(&count, "count", 1, "Number of wallets to generate")
	createCmd.Flags().StringVar(&scheme, "scheme", wallet.SchemeSVM, "Key scheme (svm|evm)")

	var walletID int
	var message string
	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a message with a stored wallet key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return clierr.New(clierr.CodeUsage, "--message is required")
			}
			wallets, err := s.loadWallets()
			if err != nil {
				return err
			}
			w, ok := credentials.WalletFor(wallets, walletID-1)
			if !ok {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("no wallet with id %d", walletID))
			}
			signer, err := wallet.New(w.Chain, w.PrivateKey)
			if err != nil {
				return err
			}
			signature, err := signer.SignMessage([]byte(message))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
				"id":        w.ID,
				"wallet":    signer.Address(),
				"scheme":    signer.Scheme(),
				"message":   message,
				"signature": signature,
			}, nil, false)
		},
	}
	signCmd.Flags().IntVar(&walletID, "id", 1, "Wallet id in the wallet store")
	signCmd.Flags().StringVar(&message, "message", "", "Message to sign")

	root.AddCommand(syncCmd)
	root.AddCommand(createCmd)
	root.AddCommand(signCmd)
	return root
}

func (s *runtimeState) loadWallets() ([]credentials.Wallet, error) {
	wallets, err := credentials.LoadWallets(s.settings.WalletsPath)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, clierr.New(clierr.CodeInput, fmt.Sprintf("no wallets in %s; run `wallet create` first", s.settings.WalletsPath))
	}
	return wallets, nil
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var action string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded action outcomes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !s.settings.JournalEnabled {
				return clierr.New(clierr.CodeUsage, "journal is disabled")
			}
			store, err := s.openJournal()
			if err != nil {
				return err
			}
			entries, err := store.List(strings.TrimSpace(action), limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entries, nil, false)
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "Filter by action (profile|checkin|tasks|spin|wallet_sync)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to return")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Describe commands and flags as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			described, err := schema.Describe(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "describe command", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), described, nil, false)
		},
	}
}
