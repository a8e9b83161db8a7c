package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moonapp-tools/mooncoin-cli/internal/config"
	"github.com/moonapp-tools/mooncoin-cli/internal/credentials"
	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
	"github.com/moonapp-tools/mooncoin-cli/internal/httpx"
	"github.com/moonapp-tools/mooncoin-cli/internal/journal"
	"github.com/moonapp-tools/mooncoin-cli/internal/logging"
	"github.com/moonapp-tools/mooncoin-cli/internal/model"
	"github.com/moonapp-tools/mooncoin-cli/internal/mooncoin"
	"github.com/moonapp-tools/mooncoin-cli/internal/orchestrator"
	"github.com/moonapp-tools/mooncoin-cli/internal/out"
	"github.com/moonapp-tools/mooncoin-cli/internal/pace"
	"github.com/moonapp-tools/mooncoin-cli/internal/session"
	"github.com/moonapp-tools/mooncoin-cli/internal/version"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// logs receives the zap console log; nil means a color-capable stderr.
	logs io.Writer
	now  func() time.Time
}

func NewRunner() *Runner {
	return &Runner{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, now: time.Now}
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return NewRunnerWithIO(os.Stdin, stdout, stderr, stderr)
}

func NewRunnerWithIO(stdin io.Reader, stdout, stderr, logs io.Writer) *Runner {
	return &Runner{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logs:   logs,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	log         *zap.Logger
	lastCommand string
	lastPartial bool

	journal  *journal.Store
	sessions *session.Manager
	orch     *orchestrator.Orchestrator
	run      *orchestrator.Run
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &runtimeState{runner: r, log: zap.NewNop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(ctx)
	err = normalizeRunError(err)
	defer state.close()
	if err == nil {
		return 0
	}

	state.renderError("", err, state.lastPartial)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.journal != nil {
		_ = s.journal.Close()
	}
	_ = s.log.Sync()
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Multi-account MoonApp companion: check-in, tasks, spins and wallet linking",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())

			log, err := logging.New(settings.LogLevel, s.runner.logs)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.log = log
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runMenu(cmd.Context())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})
	config.BindFlags(cmd.PersistentFlags(), &s.flags)

	cmd.AddCommand(s.newMenuCommand())
	cmd.AddCommand(s.newCheckInCommand())
	cmd.AddCommand(s.newTasksCommand())
	cmd.AddCommand(s.newSpinCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newWalletCommand())
	cmd.AddCommand(s.newAutoCheckInCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

// ensureSession loads the account store and wires the API client, session
// manager and orchestrator. An unusable account store is the only error that
// stops the process.
func (s *runtimeState) ensureSession(ctx context.Context) error {
	if s.orch != nil {
		return nil
	}
	descriptors, err := credentials.LoadAccounts(s.settings.AccountsPath)
	if err != nil {
		return err
	}

	httpClient, err := httpx.NewWithOptions(httpx.Options{
		Timeout:           s.settings.Timeout,
		Retries:           s.settings.Retries,
		RequestsPerSecond: s.settings.RequestsPerSecond,
		Proxy:             s.settings.Proxy,
		UserAgent:         s.settings.UserAgent,
	})
	if err != nil {
		return err
	}
	api := mooncoin.New(httpClient, s.settings.BaseURL, s.settings.RefCode)

	tokens := credentials.NewTokenStore(s.settings.TokensPath, s.settings.LockPath).WithLogger(s.log)
	sessions, err := session.Open(ctx, api, tokens, descriptors, s.log)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "load token store", err)
	}
	s.sessions = sessions

	opts := orchestrator.Options{
		API:      api,
		Sessions: sessions,
		Pacer:    pace.For(s.settings.NoDelay),
		Delays:   s.settings.Delays,
		Log:      s.log,
	}
	if s.settings.JournalEnabled {
		if store, err := s.openJournal(); err != nil {
			s.log.Warn("journal disabled", zap.Error(err))
		} else {
			opts.Journal = store
		}
	}
	s.orch = orchestrator.New(opts)
	s.run = s.orch.NewRun()
	s.log.Info("accounts loaded",
		zap.Int("accounts", len(descriptors)),
		zap.String("run", s.run.ID),
		zap.String("user_agent", httpClient.UserAgent()),
	)
	return nil
}

func (s *runtimeState) openJournal() (*journal.Store, error) {
	if s.journal != nil {
		return s.journal, nil
	}
	store, err := journal.Open(s.settings.JournalPath, s.settings.JournalPath+".lock")
	if err != nil {
		return nil, err
	}
	s.journal = store
	return store, nil
}

func (s *runtimeState) emitOutcomes(commandPath string, outcomes []model.Outcome) error {
	partial := model.Partial(outcomes)
	s.lastPartial = partial
	var warnings []string
	if partial {
		warnings = append(warnings, "one or more accounts failed; see per-account outcomes")
	}
	return s.emitSuccess(commandPath, outcomes, warnings, partial)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			RunID:     s.runID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Error()
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    clierr.TypeName(err),
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			RunID:     s.runID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) runID() string {
	if s.run == nil {
		return ""
	}
	return s.run.ID
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
