package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moonapp-tools/mooncoin-cli/internal/model"
	"github.com/moonapp-tools/mooncoin-cli/internal/out"
	"github.com/moonapp-tools/mooncoin-cli/internal/pace"
	"github.com/moonapp-tools/mooncoin-cli/internal/schema"
)

const menuText = `
  1) Daily check-in
  2) Complete tasks
  3) Spin
  4) Sync wallets
  0) Exit
Choose an option: `

var (
	menuTitle = color.New(color.FgCyan, color.Bold)
	menuError = color.New(color.FgRed)
)

func (s *runtimeState) newMenuCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu over all accounts (default)",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			schema.AnnotationAccounts:    "true",
			schema.AnnotationInteractive: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runMenu(cmd.Context())
		},
	}
}

// runMenu loads every account, prints the account table and then serves menu
// choices from stdin until exit or end of input.
func (s *runtimeState) runMenu(ctx context.Context) error {
	if err := s.ensureSession(ctx); err != nil {
		return err
	}
	w := s.runner.stdout
	pacer := pace.For(s.settings.NoDelay)
	input := bufio.NewScanner(s.runner.stdin)

	s.orch.LoadProfiles(ctx, s.run)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _ = menuTitle.Fprintln(w, "\nAccounts")
		if err := out.AccountsTable(w, s.run.Summaries()); err != nil {
			return err
		}
		_, _ = fmt.Fprint(w, menuText)

		choice, ok := readLine(input)
		if !ok {
			_, _ = fmt.Fprintln(w)
			return input.Err()
		}

		var outcomes []model.Outcome
		switch choice {
		case "1":
			outcomes = s.orch.CheckIn(ctx, s.run)
		case "2":
			outcomes = s.orch.SweepTasks(ctx, s.run)
		case "3":
			outcomes = s.orch.Spin(ctx, s.run)
		case "4":
			wallets, err := s.loadWallets()
			if err != nil {
				_, _ = menuError.Fprintln(w, err.Error())
				continue
			}
			relink := confirm(w, input, "Relink wallets that are already linked? [y/N]: ")
			outcomes = s.orch.SyncWallets(ctx, s.run, wallets, relink)
		case "0", "q", "exit":
			_, _ = fmt.Fprintln(w, "Bye.")
			return nil
		default:
			_, _ = menuError.Fprintf(w, "Unknown option %q\n", choice)
			continue
		}

		_, _ = fmt.Fprintln(w)
		if err := out.OutcomesTable(w, outcomes); err != nil {
			return err
		}
		if err := pacer.Wait(ctx, s.settings.Delays.Menu); err != nil {
			s.log.Debug("menu wait interrupted", zap.Error(err))
			return nil
		}
	}
}

func readLine(input *bufio.Scanner) (string, bool) {
	if !input.Scan() {
		return "", false
	}
	return strings.TrimSpace(input.Text()), true
}

func confirm(w io.Writer, input *bufio.Scanner, prompt string) bool {
	_, _ = fmt.Fprint(w, prompt)
	answer, ok := readLine(input)
	if !ok {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
