package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/moonapp-tools/mooncoin-cli/internal/credentials"
	"github.com/moonapp-tools/mooncoin-cli/internal/wallet"
)

type testEnv struct {
	dir      string
	accounts string
	tokens   string
	wallets  string
	baseURL  string
	checkIns atomic.Int32
}

// newTestEnv isolates config and cache directories and serves a fake API
// where every account is eligible for check-in.
func newTestEnv(t *testing.T, users ...string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	chdir(t, dir)

	env := &testEnv{
		dir:      dir,
		accounts: filepath.Join(dir, "accounts.json"),
		tokens:   filepath.Join(dir, "token.json"),
		wallets:  filepath.Join(dir, "wallets.json"),
	}
	if len(users) > 0 {
		descriptors := make([]map[string]string, 0, len(users))
		for _, u := range users {
			descriptors = append(descriptors, map[string]string{"user": u})
		}
		buf, err := json.Marshal(descriptors)
		if err != nil {
			t.Fatalf("encode accounts: %v", err)
		}
		if err := os.WriteFile(env.accounts, buf, 0o600); err != nil {
			t.Fatalf("write accounts: %v", err)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer tok-")
		switch {
		case r.URL.Path == "/user/login":
			var body struct {
				Data struct {
					User string `json:"user"`
				} `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			_, _ = fmt.Fprintf(w, `{"success":true,"data":{"accessToken":"tok-%s"}}`, body.Data.User)
		case r.URL.Path == "/user/me":
			_, _ = fmt.Fprintf(w, `{"success":true,"data":{"id":"1","username":%q,"balance":42,"countSpin":0}}`, user)
		case r.URL.Path == "/check-in" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"success":true,"data":{"items":[]}}`))
		case r.URL.Path == "/check-in" && r.Method == http.MethodPut:
			env.checkIns.Add(1)
			_, _ = w.Write([]byte(`{"success":true,"data":{"dayInWeek":3}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"message":"not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	env.baseURL = srv.URL
	return env
}

func (e *testEnv) args(extra ...string) []string {
	base := []string{
		"--accounts", e.accounts,
		"--tokens", e.tokens,
		"--wallets", e.wallets,
		"--base-url", e.baseURL,
		"--no-delay",
	}
	return append(extra, base...)
}

func runCLI(t *testing.T, stdin string, args []string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithIO(strings.NewReader(stdin), &stdout, &stderr, io.Discard)
	code := r.Run(args)
	return code, stdout.String(), stderr.String()
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("mooncoin wallet sync"); got != "wallet sync" {
		t.Fatalf("unexpected trim result: %s", got)
	}
	if got := trimRootPath("mooncoin"); got != "mooncoin" {
		t.Fatalf("unexpected trim result for root: %s", got)
	}
}

func TestRunnerVersion(t *testing.T) {
	newTestEnv(t)
	code, stdout, stderr := runCLI(t, "", []string{"version"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "0.1.0" {
		t.Fatalf("unexpected version output %q", stdout)
	}
}

func TestRunnerMissingAccountsStoreIsFatal(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, stderr := runCLI(t, "", env.args("checkin", "--results-only"))
	if code != 3 {
		t.Fatalf("expected exit 3, got %d stderr=%s", code, stderr)
	}
	if stdout != "" {
		t.Fatalf("expected no stdout, got %s", stdout)
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(stderr), &envelope); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr)
	}
	if envelope["success"] != false {
		t.Fatalf("expected success=false, got %v", envelope["success"])
	}
	errBody, _ := envelope["error"].(map[string]any)
	if errBody == nil || errBody["code"] != float64(3) {
		t.Fatalf("unexpected error body %v", envelope["error"])
	}
}

func TestRunnerUnknownCommandIsUsageError(t *testing.T) {
	newTestEnv(t)
	code, _, stderr := runCLI(t, "", []string{"dance"})
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr)
	}
}

func TestRunnerCheckInEmitsOutcomesAndPersistsTokens(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	code, stdout, stderr := runCLI(t, "", env.args("checkin", "--no-journal", "--results-only"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var outcomes []map[string]any
	if err := json.Unmarshal([]byte(stdout), &outcomes); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for i, want := range []string{"alice", "bob"} {
		o := outcomes[i]
		if o["username"] != want || o["status"] != "ok" || o["day_in_week"] != float64(3) {
			t.Fatalf("unexpected outcome %d: %v", i, o)
		}
	}
	if got := env.checkIns.Load(); got != 2 {
		t.Fatalf("expected 2 check-ins, got %d", got)
	}

	buf, err := os.ReadFile(env.tokens)
	if err != nil {
		t.Fatalf("read token store: %v", err)
	}
	var tokens []string
	if err := json.Unmarshal(buf, &tokens); err != nil {
		t.Fatalf("parse token store: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "tok-alice" || tokens[1] != "tok-bob" {
		t.Fatalf("unexpected tokens %v", tokens)
	}
}

func TestRunnerEnvelopeCarriesRunID(t *testing.T) {
	env := newTestEnv(t, "alice")
	code, stdout, stderr := runCLI(t, "", env.args("status", "--no-journal"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var envelope struct {
		Success bool `json:"success"`
		Data    []struct {
			Username string  `json:"username"`
			Balance  float64 `json:"balance"`
		} `json:"data"`
		Meta struct {
			RunID   string `json:"run_id"`
			Command string `json:"command"`
			Partial bool   `json:"partial"`
		} `json:"meta"`
	}
	if err := json.Unmarshal([]byte(stdout), &envelope); err != nil {
		t.Fatalf("failed to parse envelope: %v output=%s", err, stdout)
	}
	if !envelope.Success || envelope.Meta.RunID == "" || envelope.Meta.Command != "status" || envelope.Meta.Partial {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].Username != "alice" || envelope.Data[0].Balance != 42 {
		t.Fatalf("unexpected summaries %+v", envelope.Data)
	}
}

func TestRunnerHistoryReadsJournal(t *testing.T) {
	env := newTestEnv(t, "alice")
	if code, _, stderr := runCLI(t, "", env.args("checkin")); code != 0 {
		t.Fatalf("checkin failed: %d stderr=%s", code, stderr)
	}
	code, stdout, stderr := runCLI(t, "", []string{"history", "--action", "checkin", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("failed to parse history: %v output=%s", err, stdout)
	}
	if len(entries) != 1 || entries[0]["action"] != "checkin" || entries[0]["status"] != "ok" {
		t.Fatalf("unexpected history %v", entries)
	}
}

func TestRunnerHistoryRequiresJournal(t *testing.T) {
	newTestEnv(t)
	code, _, stderr := runCLI(t, "", []string{"history", "--no-journal"})
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr)
	}
}

func TestRunnerMenuRunsChoiceAndExits(t *testing.T) {
	env := newTestEnv(t, "alice")
	code, stdout, stderr := runCLI(t, "1\n0\n", env.args("--no-journal"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "alice") || !strings.Contains(stdout, "Bye.") {
		t.Fatalf("unexpected menu output:\n%s", stdout)
	}
	if got := env.checkIns.Load(); got != 1 {
		t.Fatalf("expected one check-in from the menu, got %d", got)
	}
}

func TestRunnerMenuStopsAtEndOfInput(t *testing.T) {
	env := newTestEnv(t, "alice")
	code, stdout, stderr := runCLI(t, "7\n", env.args("menu", "--no-journal"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, `Unknown option "7"`) {
		t.Fatalf("expected invalid option notice, got:\n%s", stdout)
	}
	if env.checkIns.Load() != 0 {
		t.Fatal("expected no check-in")
	}
}

func TestRunnerAutoCheckInOnce(t *testing.T) {
	env := newTestEnv(t, "alice")
	code, stdout, stderr := runCLI(t, "", env.args("auto-checkin", "--once", "--no-journal", "--results-only"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var outcomes []map[string]any
	if err := json.Unmarshal([]byte(stdout), &outcomes); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout)
	}
	if len(outcomes) != 1 || outcomes[0]["action"] != "checkin" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestRunnerAutoCheckInRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t, "alice")
	code, _, stderr := runCLI(t, "", env.args("auto-checkin", "--schedule", "every tuesday"))
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr)
	}
	if env.checkIns.Load() != 0 {
		t.Fatal("expected no check-in with an invalid schedule")
	}
}

func TestRunnerWalletCreateAndSign(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, stderr := runCLI(t, "", env.args("wallet", "create", "--count", "2", "--results-only"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var created []map[string]any
	if err := json.Unmarshal([]byte(stdout), &created); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout)
	}
	if len(created) != 2 || created[0]["id"] != float64(1) || created[1]["id"] != float64(2) {
		t.Fatalf("unexpected created wallets %v", created)
	}
	if strings.Contains(stdout, "privateKey") {
		t.Fatal("private keys must not be printed")
	}
	stored, err := credentials.LoadWallets(env.wallets)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected 2 stored wallets, got %d err=%v", len(stored), err)
	}

	code, stdout, stderr = runCLI(t, "", env.args("wallet", "sign", "--id", "2", "--message", "hello", "--results-only"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var signed struct {
		Wallet    string `json:"wallet"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal([]byte(stdout), &signed); err != nil {
		t.Fatalf("failed to parse signature: %v output=%s", err, stdout)
	}
	if signed.Wallet != stored[1].Address {
		t.Fatalf("signed with %s, expected %s", signed.Wallet, stored[1].Address)
	}
	if !wallet.Verify(wallet.SchemeSVM, signed.Wallet, "hello", signed.Signature) {
		t.Fatal("signature does not verify")
	}
}

func TestRunnerWalletSyncWithoutWalletsIsInputError(t *testing.T) {
	env := newTestEnv(t, "alice")
	code, _, stderr := runCLI(t, "", env.args("wallet", "sync"))
	if code != 3 {
		t.Fatalf("expected exit 3, got %d stderr=%s", code, stderr)
	}
}

func TestRunnerSchemaDescribesCommand(t *testing.T) {
	newTestEnv(t)
	code, stdout, stderr := runCLI(t, "", []string{"schema", "wallet", "sync", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var described struct {
		Path     string `json:"path"`
		Accounts bool   `json:"uses_accounts"`
		Flags    []struct {
			Name string `json:"name"`
		} `json:"flags"`
	}
	if err := json.Unmarshal([]byte(stdout), &described); err != nil {
		t.Fatalf("failed to parse schema: %v output=%s", err, stdout)
	}
	if described.Path != "mooncoin wallet sync" || !described.Accounts {
		t.Fatalf("unexpected schema %+v", described)
	}
	if len(described.Flags) != 1 || described.Flags[0].Name != "relink" {
		t.Fatalf("unexpected flags %+v", described.Flags)
	}
}

func TestRunnerUnreadableTokenStoreIsNotFatal(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	if err := os.Mkdir(env.tokens, 0o700); err != nil {
		t.Fatalf("create directory at token path: %v", err)
	}
	code, stdout, stderr := runCLI(t, "", env.args("checkin", "--no-journal", "--results-only"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var outcomes []map[string]any
	if err := json.Unmarshal([]byte(stdout), &outcomes); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout)
	}
	if len(outcomes) != 2 || outcomes[0]["status"] != "ok" || outcomes[1]["status"] != "ok" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
	if got := env.checkIns.Load(); got != 2 {
		t.Fatalf("expected 2 check-ins, got %d", got)
	}
}
