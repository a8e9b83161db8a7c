// Package orchestrator runs the per-account actions of a session: profile
// loading, daily check-in, task sweep, spin loop and wallet sync. Accounts
// are processed one at a time in store order and failures never cross an
// account boundary.
package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
	"github.com/moonapp-tools/mooncoin-cli/internal/model"
	"github.com/moonapp-tools/mooncoin-cli/internal/mooncoin"
	"github.com/moonapp-tools/mooncoin-cli/internal/pace"
	"github.com/moonapp-tools/mooncoin-cli/internal/session"
)

// API is the remote surface the actions drive.
type API interface {
	Profile(ctx context.Context, token string) (mooncoin.Profile, error)
	CheckInStatus(ctx context.Context, token string) (mooncoin.CheckInStatus, error)
	PerformCheckIn(ctx context.Context, token string) (mooncoin.CheckIn, error)
	ListTasks(ctx context.Context, token string) ([]mooncoin.Task, error)
	CompleteTask(ctx context.Context, token string, taskID mooncoin.ID) error
	PlaySpin(ctx context.Context, token string, reward mooncoin.Reward) (mooncoin.SpinResult, error)
	LinkedWallets(ctx context.Context, token string) ([]mooncoin.LinkedWallet, error)
	CreateLinkChallenge(ctx context.Context, token, address string) (mooncoin.LinkChallenge, error)
	VerifyLink(ctx context.Context, token string, payload mooncoin.SignedLink) error
	DisconnectWallet(ctx context.Context, token, address string) error
}

// Recorder persists outcomes. The journal store satisfies it.
type Recorder interface {
	Record(ctx context.Context, runID string, outcomes ...model.Outcome) error
}

type Options struct {
	API      API
	Sessions *session.Manager
	Pacer    pace.Pacer
	Delays   pace.Delays
	Journal  Recorder
	Catalog  []mooncoin.Reward
	// Pick returns an index in [0, n). Defaults to math/rand.
	Pick func(n int) int
	Log  *zap.Logger
}

type Orchestrator struct {
	api      API
	sessions *session.Manager
	pacer    pace.Pacer
	delays   pace.Delays
	journal  Recorder
	catalog  []mooncoin.Reward
	pick     func(n int) int
	log      *zap.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		api:      opts.API,
		sessions: opts.Sessions,
		pacer:    opts.Pacer,
		delays:   opts.Delays,
		journal:  opts.Journal,
		catalog:  opts.Catalog,
		pick:     opts.Pick,
		log:      opts.Log,
	}
	if o.pacer == nil {
		o.pacer = pace.Fixed{}
	}
	if len(o.catalog) == 0 {
		o.catalog = DefaultCatalog()
	}
	if o.pick == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		o.pick = rng.Intn
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return o
}

// Run is the state of one invocation: which accounts it covers and what the
// CLI currently knows about each of them.
type Run struct {
	ID       string
	Started  time.Time
	Profiles []*mooncoin.Profile
	Outcomes []model.Outcome
}

func (o *Orchestrator) NewRun() *Run {
	return &Run{
		ID:       uuid.NewString(),
		Started:  time.Now().UTC(),
		Profiles: make([]*mooncoin.Profile, o.sessions.Len()),
	}
}

func (r *Run) Username(i int) string {
	if i < 0 || i >= len(r.Profiles) || r.Profiles[i] == nil {
		return ""
	}
	return r.Profiles[i].Username
}

// Summaries describes every account of the run for the account table.
func (r *Run) Summaries() []model.AccountSummary {
	out := make([]model.AccountSummary, 0, len(r.Profiles))
	for i, p := range r.Profiles {
		if p == nil {
			out = append(out, model.AccountSummary{Account: i + 1, Error: "profile unavailable"})
			continue
		}
		out = append(out, model.AccountSummary{
			Account:  i + 1,
			Username: p.Username,
			Balance:  p.Balance,
			Spins:    p.CountSpin,
			Wallet:   p.Wallet,
		})
	}
	return out
}

type accountAction func(ctx context.Context, run *Run, i int) model.Outcome

// forEach applies fn to every account in order, pausing between accounts.
func (o *Orchestrator) forEach(ctx context.Context, run *Run, action string, fn accountAction) []model.Outcome {
	n := len(run.Profiles)
	outcomes := make([]model.Outcome, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		log := o.log.With(zap.Int("account", i+1), zap.String("action", action))
		out := fn(ctx, run, i)
		out.Account = i + 1
		out.Action = action
		if out.Username == "" {
			out.Username = run.Username(i)
		}
		o.logOutcome(log, out)
		outcomes = append(outcomes, out)

		if i < n-1 {
			if err := o.pacer.Wait(ctx, o.delays.Account); err != nil {
				break
			}
		}
	}
	run.Outcomes = append(run.Outcomes, outcomes...)
	if o.journal != nil && len(outcomes) > 0 {
		if err := o.journal.Record(context.WithoutCancel(ctx), run.ID, outcomes...); err != nil {
			o.log.Warn("journal write failed", zap.String("run", run.ID), zap.Error(err))
		}
	}
	return outcomes
}

func (o *Orchestrator) logOutcome(log *zap.Logger, out model.Outcome) {
	fields := []zap.Field{zap.String("status", string(out.Status))}
	if out.Username != "" {
		fields = append(fields, zap.String("username", out.Username))
	}
	if out.Detail != "" {
		fields = append(fields, zap.String("detail", out.Detail))
	}
	switch out.Status {
	case model.OutcomeFailed:
		log.Error("action failed", fields...)
	case model.OutcomeNotAvailable, model.OutcomeSkipped:
		log.Info("action not performed", fields...)
	default:
		log.Info("action done", fields...)
	}
}

// failure converts an error into an outcome. Not-available is the expected
// steady state, not a failure.
func failure(err error) model.Outcome {
	if clierr.Is(err, clierr.CodeNotAvailable) {
		return model.Outcome{Status: model.OutcomeNotAvailable, Detail: err.Error()}
	}
	return model.Outcome{
		Status:    model.OutcomeFailed,
		Detail:    err.Error(),
		ErrorType: clierr.TypeName(err),
	}
}

// refreshProfile reloads the profile for account i. Failures keep the
// previous profile and are only logged.
func (o *Orchestrator) refreshProfile(ctx context.Context, run *Run, i int) *mooncoin.Profile {
	p, err := session.Call(ctx, o.sessions, i, o.api.Profile)
	if err != nil {
		o.log.Warn("profile refresh failed", zap.Int("account", i+1), zap.Error(err))
		return run.Profiles[i]
	}
	run.Profiles[i] = &p
	return &p
}

// profile returns the cached profile, fetching it when missing.
func (o *Orchestrator) profile(ctx context.Context, run *Run, i int) (*mooncoin.Profile, error) {
	if run.Profiles[i] != nil {
		return run.Profiles[i], nil
	}
	p, err := session.Call(ctx, o.sessions, i, o.api.Profile)
	if err != nil {
		return nil, err
	}
	run.Profiles[i] = &p
	return &p, nil
}
