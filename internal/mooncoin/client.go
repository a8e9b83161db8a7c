package mooncoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
	"github.com/moonapp-tools/mooncoin-cli/internal/httpx"
)

const (
	DefaultBaseURL = "https://moonapp-api.mooncoin.co/api"
	DefaultRefCode = "717163"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	refCode string
}

func New(httpClient *httpx.Client, baseURL, refCode string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(refCode) == "" {
		refCode = DefaultRefCode
	}
	return &Client{http: httpClient, baseURL: baseURL, refCode: refCode}
}

type loginRequest struct {
	Data    json.RawMessage `json:"data"`
	RefCode string          `json:"refCode"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

// Authenticate exchanges an account descriptor for a bearer token. Only a 201
// with success=true and a non-empty token counts; every other outcome is an
// auth error so callers never cache a token from a failed login.
func (c *Client) Authenticate(ctx context.Context, descriptor json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(descriptor)) == 0 {
		return "", clierr.New(clierr.CodeAuth, "empty account descriptor")
	}
	var data loginResponse
	status, err := c.call(ctx, http.MethodPost, "/user/login", "", loginRequest{Data: descriptor, RefCode: c.refCode}, &data)
	if err != nil {
		if clierr.Is(err, clierr.CodeAuth) {
			return "", err
		}
		e := clierr.Wrap(clierr.CodeAuth, "login failed", err)
		e.Status = status
		return "", e
	}
	if status != http.StatusCreated {
		return "", clierr.WithStatus(clierr.CodeAuth, status, "login returned unexpected status")
	}
	if strings.TrimSpace(data.AccessToken) == "" {
		return "", clierr.WithStatus(clierr.CodeAuth, status, "login response missing access token")
	}
	return data.AccessToken, nil
}

func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var p Profile
	if _, err := c.call(ctx, http.MethodGet, "/user/me", token, nil, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

type checkInStatusData struct {
	Items []json.RawMessage `json:"items"`
}

// CheckInStatus reports whether today's check-in can still be claimed. The
// day boundary is decided by the server; an unsuccessful status response or
// any item already recorded for the current period means "not eligible".
func (c *Client) CheckInStatus(ctx context.Context, token string) (CheckInStatus, error) {
	env, _, err := c.raw(ctx, http.MethodGet, "/check-in", token, nil)
	if err != nil {
		return CheckInStatus{}, notAvailableOnBadRequest(err, "check-in not available")
	}
	if !env.Success {
		return CheckInStatus{Eligible: false}, nil
	}
	var data checkInStatusData
	if len(bytes.TrimSpace(env.Data)) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return CheckInStatus{}, clierr.Wrap(clierr.CodeRemote, "decode check-in status", err)
		}
	}
	return CheckInStatus{Eligible: len(data.Items) == 0, Items: data.Items}, nil
}

func (c *Client) PerformCheckIn(ctx context.Context, token string) (CheckIn, error) {
	var out CheckIn
	if _, err := c.call(ctx, http.MethodPut, "/check-in", token, struct{}{}, &out); err != nil {
		return CheckIn{}, notAvailableOnBadRequest(err, "check-in not available")
	}
	return out, nil
}

func (c *Client) ListTasks(ctx context.Context, token string) ([]Task, error) {
	var tasks []Task
	if _, err := c.call(ctx, http.MethodGet, "/task", token, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) CompleteTask(ctx context.Context, token string, taskID ID) error {
	if strings.TrimSpace(string(taskID)) == "" {
		return clierr.New(clierr.CodeUsage, "task id is required")
	}
	_, err := c.call(ctx, http.MethodGet, "/task/check/"+url.PathEscape(string(taskID)), token, nil, nil)
	return err
}

// PlaySpin submits one catalog reward. The returned result is authoritative
// and may differ from the submitted reward.
func (c *Client) PlaySpin(ctx context.Context, token string, reward Reward) (SpinResult, error) {
	var out SpinResult
	if _, err := c.call(ctx, http.MethodPut, "/spin", token, reward, &out); err != nil {
		return SpinResult{}, notAvailableOnBadRequest(err, "spin not available")
	}
	if out.Type == "" {
		out.Type = PrizePoint
	}
	if out.Type != PrizePoint && out.Type != PrizeSpin {
		return SpinResult{}, clierr.New(clierr.CodeRemote, fmt.Sprintf("unknown spin prize type %q", out.Type))
	}
	return out, nil
}

func (c *Client) LinkedWallets(ctx context.Context, token string) ([]LinkedWallet, error) {
	var wallets []LinkedWallet
	if _, err := c.call(ctx, http.MethodGet, "/wallet-link", token, nil, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

type linkChallengeRequest struct {
	Address string `json:"address"`
}

func (c *Client) CreateLinkChallenge(ctx context.Context, token, address string) (LinkChallenge, error) {
	var ch LinkChallenge
	if _, err := c.call(ctx, http.MethodPut, "/wallet-link", token, linkChallengeRequest{Address: address}, &ch); err != nil {
		return LinkChallenge{}, err
	}
	if ch.Code == "" || ch.Message == "" {
		return LinkChallenge{}, clierr.New(clierr.CodeRemote, "link challenge missing code or message")
	}
	return ch, nil
}

func (c *Client) VerifyLink(ctx context.Context, token string, payload SignedLink) error {
	_, err := c.call(ctx, http.MethodPost, "/wallet-link/verify", token, payload, nil)
	return err
}

func (c *Client) DisconnectWallet(ctx context.Context, token, address string) error {
	_, err := c.call(ctx, http.MethodDelete, "/wallet-link/"+url.PathEscape(address), token, nil, nil)
	return err
}

// call performs a request and decodes the data field of a successful envelope into out.
func (c *Client) call(ctx context.Context, method, path, token string, body, out any) (int, error) {
	env, status, err := c.raw(ctx, method, path, token, body)
	if err != nil {
		return status, err
	}
	if !env.Success {
		msg := messageText(env.Message)
		if msg == "" {
			msg = "request reported success=false"
		}
		return status, clierr.WithStatus(clierr.CodeRemote, status, msg)
	}
	if out == nil {
		return status, nil
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return status, clierr.WithStatus(clierr.CodeRemote, status, "response missing data")
	}
	if err := json.Unmarshal(data, out); err != nil {
		e := clierr.Wrap(clierr.CodeRemote, "decode response data", err)
		e.Status = status
		return status, e
	}
	return status, nil
}

func (c *Client) raw(ctx context.Context, method, path, token string, body any) (envelope, int, error) {
	var payload []byte
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return envelope{}, 0, clierr.Wrap(clierr.CodeInternal, "encode request body", err)
		}
		payload = buf
	}
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	var env envelope
	status, err := httpx.DoBodyJSON(ctx, c.http, method, c.baseURL+path, payload, headers, &env)
	if err != nil {
		return envelope{}, status, err
	}
	return env, status, nil
}

func notAvailableOnBadRequest(err error, message string) error {
	cErr, ok := clierr.As(err)
	if !ok {
		return err
	}
	if cErr.Code == clierr.CodeRemote && (cErr.Status == http.StatusBadRequest || cErr.Status/100 == 2) {
		e := clierr.Wrap(clierr.CodeNotAvailable, message, err)
		e.Status = cErr.Status
		return e
	}
	return err
}

func messageText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}
