package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Partial   bool      `json:"partial"`
}

type OutcomeStatus string

const (
	OutcomeOK           OutcomeStatus = "ok"
	OutcomeNotAvailable OutcomeStatus = "not_available"
	OutcomeSkipped      OutcomeStatus = "skipped"
	OutcomeFailed       OutcomeStatus = "failed"
)

const (
	ActionProfile    = "profile"
	ActionCheckIn    = "checkin"
	ActionTasks      = "tasks"
	ActionSpin       = "spin"
	ActionWalletSync = "wallet_sync"
)

// Outcome is the result of one action for one account. Account is 1-based.
type Outcome struct {
	Account   int           `json:"account"`
	Username  string        `json:"username,omitempty"`
	Action    string        `json:"action"`
	Status    OutcomeStatus `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	ErrorType string        `json:"error_type,omitempty"`
	DayInWeek int           `json:"day_in_week,omitempty"`
	Completed int           `json:"completed,omitempty"`
	Spins     int64         `json:"spins,omitempty"`
	Points    int64         `json:"points,omitempty"`
	Bonus     int64         `json:"bonus_spins,omitempty"`
	Balance   float64       `json:"balance,omitempty"`
	Wallet    string        `json:"wallet,omitempty"`
}

// AccountSummary is one row of the startup account table.
type AccountSummary struct {
	Account  int     `json:"account"`
	Username string  `json:"username"`
	Balance  float64 `json:"balance"`
	Spins    int64   `json:"spins"`
	Wallet   string  `json:"wallet,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type JournalEntry struct {
	ID        int64         `json:"id"`
	RunID     string        `json:"run_id"`
	Account   int           `json:"account"`
	Action    string        `json:"action"`
	Status    OutcomeStatus `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Partial reports whether any outcome failed.
func Partial(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status == OutcomeFailed {
			return true
		}
	}
	return false
}
