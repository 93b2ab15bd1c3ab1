// Package miapi speaks the two Xiaomi community endpoints the race needs: the
// unlock-eligibility state check and the apply call.
package miapi

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production endpoint. Tests point it at httptest.
	DefaultBaseURL = "https://sgp-api.buy.mi.com/bbs/api/global"

	statePath = "/user/bl-switch/state"
	applyPath = "/apply/bl-auth"

	appVersionCode = "500411"
	appVersionName = "5.4.11"
	userAgent      = "okhttp/4.12.0"

	applyBody = `{"is_retry":true}`

	maxBodyBytes = 1 << 20
)

// Cookie builds the credential header. The service parses this exact shape;
// key order and the trailing semicolon are load-bearing.
func Cookie(token, deviceID string) string {
	return "new_bbs_serviceToken=" + token +
		";versionCode=" + appVersionCode +
		";versionName=" + appVersionName +
		";deviceId=" + deviceID + ";"
}

type Opts struct {
	BaseURL        string
	ConnectTimeout time.Duration // dial timeout, default 2s
	CallTimeout    time.Duration // whole-call timeout, default 15s
}

// Client talks to the unlock endpoints with one credential and one device
// identity baked in. Each race worker owns its own Client, so no connections
// are shared across workers.
type Client struct {
	base   string
	cookie string
	http   *http.Client
}

func NewClient(token, deviceID string, opts Opts) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 2 * time.Second
	}
	call := opts.CallTimeout
	if call <= 0 {
		call = 15 * time.Second
	}

	// Custom dialer for the short connect timeout; HTTP/1.1 only, matching
	// what the service expects from the okhttp client it knows.
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 2,
	}

	return &Client{
		base:   base,
		cookie: Cookie(token, deviceID),
		http:   &http.Client{Timeout: call, Transport: tr},
	}
}

// Apply fires the unlock request and returns the raw response body.
func (c *Client) Apply(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+applyPath, strings.NewReader(applyBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Connection", "keep-alive")
	return c.do(req)
}

// State fetches the eligibility state and returns the raw response body.
func (c *Client) State(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+statePath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", c.cookie)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The service pairs error statuses with authoritative JSON bodies, so the
	// status code is deliberately not checked here: the body verdict wins.
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}
