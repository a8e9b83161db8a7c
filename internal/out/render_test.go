package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/moonapp-tools/mooncoin-cli/internal/config"
	"github.com/moonapp-tools/mooncoin-cli/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []model.Outcome{{Account: 1, Action: model.ActionSpin, Status: model.OutcomeOK, Points: 1500}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"account", "points"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["points"].(float64) != 1500 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["status"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlainDrawsAccountTable(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []model.AccountSummary{{Account: 1, Username: "luna", Balance: 10}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "#") || !strings.Contains(buf.String(), "luna") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainEnvelopeHeader(t *testing.T) {
	env := model.Envelope{
		Version:  "v1",
		Success:  true,
		Data:     map[string]any{"id": 1, "wallet": "abc"},
		Warnings: []string{"one or more accounts failed"},
		Meta:     model.EnvelopeMeta{Command: "wallet sign", RunID: "r-1", Partial: true},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, warning and data lines, got %q", buf.String())
	}
	if lines[0] != "partial command=wallet sign run=r-1" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[2] != "id=1 wallet=abc" {
		t.Fatalf("unexpected data line %q", lines[2])
	}
}

func TestRenderPlainErrorSkipsData(t *testing.T) {
	env := model.Envelope{
		Success: false,
		Data:    []any{},
		Error:   &model.ErrorBody{Code: 3, Type: "input_error", Message: "accounts store missing"},
		Meta:    model.EnvelopeMeta{Command: "checkin"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "error command=checkin\ninput_error (code 3): accounts store missing\n"
	if buf.String() != want {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestOutcomesTableAlignsColumns(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	err := OutcomesTable(&buf, []model.Outcome{
		{Account: 1, Username: "luna", Action: model.ActionCheckIn, Status: model.OutcomeOK, Detail: "day 3"},
		{Account: 12, Username: "sol", Action: model.ActionCheckIn, Status: model.OutcomeNotAvailable},
	})
	if err != nil {
		t.Fatalf("OutcomesTable failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "#") || !strings.Contains(lines[2], "not_available") {
		t.Fatalf("unexpected table: %q", buf.String())
	}
	if strings.Index(lines[1], "luna") != strings.Index(lines[2], "sol") {
		t.Fatalf("columns not aligned: %q", buf.String())
	}
}

func TestAccountsTableShowsUnlinkedWallet(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	if err := AccountsTable(&buf, []model.AccountSummary{{Account: 1, Username: "luna", Balance: 12.5, Spins: 2}, {Account: 2, Error: "login failed"}}); err != nil {
		t.Fatalf("AccountsTable failed: %v", err)
	}
	if !strings.Contains(buf.String(), "not linked") || !strings.Contains(buf.String(), "12.5") || !strings.Contains(buf.String(), "login failed") {
		t.Fatalf("unexpected table: %q", buf.String())
	}
}
