package app

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

func (s *runtimeState) newAutoCheckInCommand() *cobra.Command {
	var schedule string
	var once bool
	cmd := &cobra.Command{
		Use:         "auto-checkin",
		Annotations: accountsAnnotation,
		Short:       "Check in every account now and again on a schedule until interrupted",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAutoCheckIn(cmd.Context(), trimRootPath(cmd.CommandPath()), schedule, once)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron spec or descriptor for later check-ins (default from config, @every 24h)")
	cmd.Flags().BoolVar(&once, "once", false, "Check in once and exit")
	return cmd
}

func (s *runtimeState) runAutoCheckIn(ctx context.Context, commandPath, expr string, once bool) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = s.settings.Schedule
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "parse --schedule", err)
	}
	if err := s.ensureSession(ctx); err != nil {
		return err
	}

	checkIn := func() error {
		s.run = s.orch.NewRun()
		outcomes := s.orch.CheckIn(ctx, s.run)
		if err := s.emitOutcomes(commandPath, outcomes); err != nil {
			return err
		}
		if !once {
			s.log.Info("next check-in scheduled", zap.Time("at", schedule.Next(time.Now())))
		}
		return nil
	}
	if err := checkIn(); err != nil {
		return err
	}
	if once {
		return nil
	}

	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		if err := checkIn(); err != nil {
			s.log.Error("scheduled check-in failed", zap.Error(err))
		}
	}))
	c.Start()
	<-ctx.Done()
	s.log.Info("stopping scheduler")
	<-c.Stop().Done()
	return nil
}

// cronLogger routes scheduler logs through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
