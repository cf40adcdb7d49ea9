// Package banking is the client for the bank backend's POST-only RPC surface.
package banking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/susu3304/netbank/internal/decode"
)

var Version = "dev"

// ErrUnauthorized is returned when the backend rejects the access token.
var ErrUnauthorized = errors.New("HTTP 401")

// Endpoint is a backend operation with the body fields it always sends.
type Endpoint struct {
	Path     string
	Defaults map[string]interface{}
}

var (
	EndpointRefreshSession    = Endpoint{Path: "/session/refresh"}
	EndpointExtendSession     = Endpoint{Path: "/session/extend", Defaults: map[string]interface{}{"action": "extend"}}
	EndpointLogout            = Endpoint{Path: "/auth/logout"}
	EndpointProfile           = Endpoint{Path: "/customer/profile"}
	EndpointTransactions      = Endpoint{Path: "/accounts/history", Defaults: map[string]interface{}{"pageNo": 1, "pageSize": 20}}
	EndpointScheduledPayments = Endpoint{Path: "/payments/scheduled", Defaults: map[string]interface{}{"status": "ALL"}}
	EndpointPayees            = Endpoint{Path: "/payees/list", Defaults: map[string]interface{}{"type": "ALL"}}
	EndpointLocations         = Endpoint{Path: "/locator/search", Defaults: map[string]interface{}{"type": "all", "radius": 10}}
	EndpointNotifications     = Endpoint{Path: "/notifications/list"}
	EndpointStatements        = Endpoint{Path: "/accounts/statements", Defaults: map[string]interface{}{"months": 12}}
	EndpointReceipt           = Endpoint{Path: "/payments/receipt"}
)

// Client is safe for concurrent use; one client serves every session.
type Client struct {
	HTTP    *http.Client
	BaseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: baseURL,
	}
}

// Body merges the endpoint defaults with fields, fields winning. Keys are written in sorted
// order so the same call always produces the same body.
func Body(defaults, fields map[string]interface{}) ([]byte, error) {
	merged := make(map[string]interface{}, len(defaults)+len(fields))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	body := []byte(`{}`)
	for _, k := range keys {
		var err error
		body, err = sjson.SetBytes(body, escapeKey(k), merged[k])
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", k, err)
		}
	}
	return body, nil
}

// escapeKey stops sjson from reading a literal key as a path.
func escapeKey(k string) string {
	var b bytes.Buffer
	for _, r := range k {
		switch r {
		case '.', '*', '?', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Call POSTs to ep with the merged body and returns the parsed reply. Returns ErrUnauthorized
// on a 401 and an error for any other non-2xx status or an invalid JSON reply.
func (c *Client) Call(ctx context.Context, accessToken string, ep Endpoint, fields map[string]interface{}) (gjson.Result, error) {
	body, err := Body(ep.Defaults, fields)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: build body: %w", ep.Path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+ep.Path, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: NewRequest failed: %w", ep.Path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "netbank-bff/"+Version)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: request failed: %w", ep.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return gjson.Result{}, ErrUnauthorized
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return gjson.Result{}, fmt.Errorf("%s: response returned %s", ep.Path, res.Status)
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read body: %w", ep.Path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return gjson.Parse(`{}`), nil
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%s: response body is not JSON", ep.Path)
	}
	return decode.Parse(raw), nil
}

func (c *Client) RefreshSession(ctx context.Context, accessToken string) error {
	_, err := c.Call(ctx, accessToken, EndpointRefreshSession, nil)
	return err
}

func (c *Client) ExtendSessionTimeout(ctx context.Context, accessToken string) error {
	_, err := c.Call(ctx, accessToken, EndpointExtendSession, nil)
	return err
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := c.Call(ctx, accessToken, EndpointLogout, nil)
	return err
}
