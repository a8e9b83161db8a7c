// Package pace decides how long the CLI waits between remote calls.
package pace

import (
	"context"
	"time"
)

// Pacer waits for d or until ctx is done.
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// Fixed sleeps for exactly the requested delay.
type Fixed struct{}

func (Fixed) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// None never waits. Used with --no-delay and in tests.
type None struct{}

func (None) Wait(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// Delays are the named pauses of a run.
type Delays struct {
	Account      time.Duration `yaml:"account"`
	Task         time.Duration `yaml:"task"`
	SpinCooldown time.Duration `yaml:"spin_cooldown"`
	SpinSettle   time.Duration `yaml:"spin_settle"`
	Menu         time.Duration `yaml:"menu"`
}

func DefaultDelays() Delays {
	return Delays{
		Account:      time.Second,
		Task:         2 * time.Second,
		SpinCooldown: 5 * time.Second,
		SpinSettle:   time.Second,
		Menu:         3 * time.Second,
	}
}

// For returns None when delays are disabled.
func For(noDelay bool) Pacer {
	if noDelay {
		return None{}
	}
	return Fixed{}
}
