package mooncoin

import (
	"bytes"
	"encoding/json"
)

// ID accepts identifiers encoded either as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(b)
	return nil
}

// Profile is the subset of /user/me the CLI displays and acts on.
type Profile struct {
	ID        ID      `json:"id"`
	Username  string  `json:"username"`
	Balance   float64 `json:"balance"`
	CountSpin int64   `json:"countSpin"`
	Wallet    string  `json:"wallet,omitempty"`
}

// WalletLinked reports whether the platform already knows a wallet for the user.
func (p Profile) WalletLinked() bool { return p.Wallet != "" }

type CheckInStatus struct {
	Eligible bool
	Items    []json.RawMessage
}

type CheckIn struct {
	DayInWeek int `json:"dayInWeek"`
}

type Task struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
}

type PrizeType string

const (
	PrizePoint PrizeType = "point"
	PrizeSpin  PrizeType = "spin"
)

// Reward is one entry of the fixed spin catalog submitted by the client.
type Reward struct {
	Amount int64     `json:"amount"`
	Key    string    `json:"key"`
	Type   PrizeType `json:"type"`
}

// SpinResult is what the server actually awarded.
type SpinResult struct {
	Amount int64     `json:"amount"`
	Type   PrizeType `json:"type"`
}

type LinkedWallet struct {
	Address string `json:"address"`
	Chain   string `json:"chain,omitempty"`
}

type LinkChallenge struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ExpiresAt string `json:"expiredAt,omitempty"`
}

// SignedLink is the verification payload; it is built per attempt and never stored.
type SignedLink struct {
	Address   string `json:"address"`
	Code      string `json:"code"`
	Signature string `json:"signature"`
	UserID    string `json:"userId"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message any             `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}
