package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
	"github.com/moonapp-tools/mooncoin-cli/internal/model"
	"github.com/moonapp-tools/mooncoin-cli/internal/mooncoin"
	"github.com/moonapp-tools/mooncoin-cli/internal/session"
)

// LoadProfiles authenticates where needed and fetches every profile.
func (o *Orchestrator) LoadProfiles(ctx context.Context, run *Run) []model.Outcome {
	return o.forEach(ctx, run, model.ActionProfile, func(ctx context.Context, run *Run, i int) model.Outcome {
		p, err := session.Call(ctx, o.sessions, i, o.api.Profile)
		if err != nil {
			return failure(err)
		}
		run.Profiles[i] = &p
		return model.Outcome{
			Status:   model.OutcomeOK,
			Username: p.Username,
			Balance:  p.Balance,
			Spins:    p.CountSpin,
			Wallet:   p.Wallet,
		}
	})
}

// CheckIn claims the daily check-in where the server reports it eligible.
// An expired token is renewed but the check-in waits for the next cycle.
func (o *Orchestrator) CheckIn(ctx context.Context, run *Run) []model.Outcome {
	return o.forEach(ctx, run, model.ActionCheckIn, func(ctx context.Context, run *Run, i int) model.Outcome {
		status, err := session.RenewCall(ctx, o.sessions, i, o.api.CheckInStatus)
		if err != nil {
			return checkInFailure(err)
		}
		if !status.Eligible {
			return model.Outcome{Status: model.OutcomeNotAvailable, Detail: "check-in already claimed for today"}
		}
		done, err := session.RenewCall(ctx, o.sessions, i, o.api.PerformCheckIn)
		if err != nil {
			return checkInFailure(err)
		}
		out := model.Outcome{
			Status:    model.OutcomeOK,
			DayInWeek: done.DayInWeek,
			Detail:    fmt.Sprintf("checked in, streak day %d", done.DayInWeek),
		}
		if p := o.refreshProfile(ctx, run, i); p != nil {
			out.Balance = p.Balance
		}
		return out
	})
}

func checkInFailure(err error) model.Outcome {
	if errors.Is(err, session.ErrRenewed) {
		return model.Outcome{Status: model.OutcomeSkipped, Detail: "token expired and was renewed; check-in deferred to the next cycle"}
	}
	return failure(err)
}

// SweepTasks completes every task not yet marked complete.
func (o *Orchestrator) SweepTasks(ctx context.Context, run *Run) []model.Outcome {
	return o.forEach(ctx, run, model.ActionTasks, func(ctx context.Context, run *Run, i int) model.Outcome {
		tasks, err := session.Call(ctx, o.sessions, i, o.api.ListTasks)
		if err != nil {
			return failure(err)
		}
		pending := make([]mooncoin.Task, 0, len(tasks))
		for _, t := range tasks {
			if !t.IsCompleted {
				pending = append(pending, t)
			}
		}
		if len(pending) == 0 {
			return model.Outcome{Status: model.OutcomeSkipped, Detail: "no pending tasks"}
		}

		completed := 0
		for k, task := range pending {
			if k > 0 {
				if err := o.pacer.Wait(ctx, o.delays.Task); err != nil {
					return model.Outcome{Status: model.OutcomeFailed, Completed: completed, Detail: "interrupted: " + err.Error()}
				}
			}
			err := o.sessions.Do(ctx, i, func(ctx context.Context, token string) error {
				return o.api.CompleteTask(ctx, token, task.ID)
			})
			if err != nil {
				if clierr.Is(err, clierr.CodeAuth) {
					out := failure(err)
					out.Completed = completed
					return out
				}
				o.log.Warn("task not completed",
					zap.Int("account", i+1),
					zap.String("task", task.Title),
					zap.String("task_id", string(task.ID)),
					zap.Error(err),
				)
				continue
			}
			completed++
			o.log.Debug("task completed", zap.Int("account", i+1), zap.String("task", task.Title))
		}

		out := model.Outcome{
			Status:    model.OutcomeOK,
			Completed: completed,
			Detail:    fmt.Sprintf("completed %d of %d pending tasks", completed, len(pending)),
		}
		if completed == 0 {
			out.Status = model.OutcomeFailed
		}
		if p := o.refreshProfile(ctx, run, i); p != nil {
			out.Balance = p.Balance
		}
		return out
	})
}

// Spin plays exactly as many spins as the account had credits when the loop
// started. Bonus spins won during the loop are tallied, not played.
func (o *Orchestrator) Spin(ctx context.Context, run *Run) []model.Outcome {
	return o.forEach(ctx, run, model.ActionSpin, func(ctx context.Context, run *Run, i int) model.Outcome {
		p, err := o.profile(ctx, run, i)
		if err != nil {
			return failure(err)
		}
		credits := p.CountSpin
		if credits <= 0 {
			return model.Outcome{Status: model.OutcomeSkipped, Detail: "no spins available"}
		}

		var played, points, bonus int64
		tally := func(out model.Outcome) model.Outcome {
			out.Spins, out.Points, out.Bonus = played, points, bonus
			return out
		}
		for played < credits {
			if err := o.pacer.Wait(ctx, o.delays.SpinCooldown); err != nil {
				return tally(model.Outcome{Status: model.OutcomeFailed, Detail: "interrupted: " + err.Error()})
			}
			reward := o.catalog[o.pick(len(o.catalog))]
			res, err := session.Call(ctx, o.sessions, i, func(ctx context.Context, token string) (mooncoin.SpinResult, error) {
				return o.api.PlaySpin(ctx, token, reward)
			})
			if err != nil {
				out := tally(failure(err))
				if played > 0 {
					out.Detail = fmt.Sprintf("stopped after %d of %d spins: %s", played, credits, out.Detail)
				}
				return out
			}
			played++
			switch res.Type {
			case mooncoin.PrizeSpin:
				bonus += res.Amount
			default:
				points += res.Amount
			}
			o.log.Debug("spin played",
				zap.Int("account", i+1),
				zap.String("prize", string(res.Type)),
				zap.Int64("amount", res.Amount),
			)
			if played < credits {
				if err := o.pacer.Wait(ctx, o.delays.SpinSettle); err != nil {
					return tally(model.Outcome{Status: model.OutcomeFailed, Detail: "interrupted: " + err.Error()})
				}
			}
		}

		out := tally(model.Outcome{
			Status: model.OutcomeOK,
			Detail: fmt.Sprintf("%d spins: +%d points, +%d bonus spins", played, points, bonus),
		})
		if p := o.refreshProfile(ctx, run, i); p != nil {
			out.Balance = p.Balance
		}
		return out
	})
}
