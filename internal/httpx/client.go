package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	clierr "github.com/moonapp-tools/mooncoin-cli/internal/errors"
)

const (
	defaultUserAgent = "mooncoin-cli/0.1"
	// RandomUserAgent selects a random browser user agent once per client.
	RandomUserAgent  = "random"
	maxResponseBytes = 4 << 20
)

type Options struct {
	Timeout           time.Duration
	Retries           int
	RequestsPerSecond float64
	Proxy             string
	UserAgent         string
}

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
	limiter    *rate.Limiter
}

func New(timeout time.Duration, retries int) *Client {
	c, _ := NewWithOptions(Options{Timeout: timeout, Retries: retries})
	return c
}

func NewWithOptions(opts Options) (*Client, error) {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	transport, err := newTransport(opts.Proxy)
	if err != nil {
		return nil, err
	}
	ua := strings.TrimSpace(opts.UserAgent)
	switch {
	case ua == "":
		ua = defaultUserAgent
	case strings.EqualFold(ua, RandomUserAgent):
		ua = uarand.GetRandom()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: opts.Timeout, Transport: transport},
		retries:    opts.Retries,
		userAgent:  ua,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

func newTransport(rawProxy string) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	rawProxy = strings.TrimSpace(rawProxy)
	if rawProxy == "" {
		return base, nil
	}
	u, err := url.Parse(rawProxy)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse proxy url", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
		return base, nil
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "configure proxy dialer", err)
	}
	base.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		base.DialContext = cd.DialContext
	} else {
		base.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return base, nil
}

func (c *Client) UserAgent() string { return c.userAgent }

// DoJSON sends req and decodes a 2xx body into out. It returns the response
// status code alongside any error so callers can apply endpoint-specific
// status rules.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (int, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastStatus, clierr.Wrap(clierr.CodeTransport, "request cancelled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return lastStatus, clierr.Wrap(clierr.CodeTransport, "request cancelled", err)
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return 0, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			lastErr = mapNetError(err)
			if attempt < c.retries {
				continue
			}
			return 0, lastErr
		}

		buf, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		lastStatus = resp.StatusCode
		if readErr != nil {
			return resp.StatusCode, clierr.Wrap(clierr.CodeTransport, "read response", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return resp.StatusCode, statusError(clierr.CodeAuth, resp.StatusCode, "authentication rejected", buf)
		case resp.StatusCode == http.StatusTooManyRequests:
			// Never retried: pacing is the caller's job.
			return resp.StatusCode, statusError(clierr.CodeRateLimited, resp.StatusCode, "rate limited", buf)
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = statusError(clierr.CodeRemote, resp.StatusCode, "server error", buf)
			if attempt < c.retries {
				continue
			}
			return resp.StatusCode, lastErr
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return resp.StatusCode, statusError(clierr.CodeRemote, resp.StatusCode, "unexpected status", buf)
		}

		if out == nil {
			return resp.StatusCode, nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return resp.StatusCode, clierr.WithStatus(clierr.CodeRemote, resp.StatusCode, "empty response body")
		}
		if err := json.Unmarshal(buf, out); err != nil {
			e := clierr.Wrap(clierr.CodeRemote, "decode response JSON", err)
			e.Status = resp.StatusCode
			return resp.StatusCode, e
		}
		return resp.StatusCode, nil
	}

	if lastErr != nil {
		return lastStatus, lastErr
	}
	return lastStatus, clierr.New(clierr.CodeTransport, "request failed")
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// ServerMessage extracts the "message" field from an error body. Servers
// reply with either a string or a list of validation strings.
func ServerMessage(body []byte) string {
	var payload struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, v := range []any{payload.Message, payload.Error} {
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return t
			}
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				parts = append(parts, fmt.Sprint(item))
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
	}
	return ""
}

func statusError(code clierr.Code, status int, fallback string, body []byte) *clierr.Error {
	msg := ServerMessage(body)
	if msg == "" {
		msg = fallback
	}
	return clierr.WithStatus(code, status, msg)
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok {
		if nerr.Timeout() {
			return clierr.Wrap(clierr.CodeTransport, "request timeout", err)
		}
	}
	return clierr.Wrap(clierr.CodeTransport, "request failed", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
