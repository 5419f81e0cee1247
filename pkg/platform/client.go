// Package platform talks to a tenant's API: token verification through GraphQL
// and retrieval of the tenant's webhook signing keys.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"storeapp/pkg/apperr"
)

// Headers a tenant sets on registration calls and webhook deliveries.
const (
	HeaderAPIURL    = "Saleor-Api-Url"
	HeaderDomain    = "Saleor-Domain"
	HeaderEvent     = "Saleor-Event"
	HeaderSignature = "Saleor-Signature"
)

const appIDQuery = `{ app { id } }`

// Client is safe for concurrent use.
type Client struct {
	http *http.Client
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewWithHTTPClient is used by tests that point the client at httptest servers.
func NewWithHTTPClient(hc *http.Client) *Client { return &Client{http: hc} }

// ParseTenantURL accepts absolute http(s) URLs with a host and no fragment.
func ParseTenantURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Validation("tenant api url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Fragment != "" {
		return nil, apperr.Validation("tenant api url must be an absolute http(s) url", map[string]any{"tenant": raw})
	}
	return u, nil
}

// JWKSURL is {scheme}://{host}/.well-known/jwks.json of the tenant API.
func JWKSURL(tenantAPIURL string) (string, error) {
	u, err := ParseTenantURL(tenantAPIURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host + "/.well-known/jwks.json", nil
}

type gqlResponse struct {
	Data struct {
		App *struct {
			ID string `json:"id"`
		} `json:"app"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchAppID asks the tenant which app the token belongs to. A token the tenant
// does not accept yields an authentication error; transport failures and 5xx
// answers yield an external error.
func (c *Client) FetchAppID(ctx context.Context, tenantAPIURL, token string) (string, error) {
	if _, err := ParseTenantURL(tenantAPIURL); err != nil {
		return "", err
	}
	body, _ := json.Marshal(map[string]string{"query": appIDQuery})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tenantAPIURL, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Validation("tenant api url rejected: "+err.Error(), nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	meta := map[string]any{"tenant": tenantAPIURL}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.External(err, "tenant api unreachable", meta)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.External(err, "tenant api read failed", meta)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", apperr.Auth("tenant rejected the token", meta)
	case resp.StatusCode >= 500:
		return "", apperr.External(fmt.Errorf("status %d", resp.StatusCode), "tenant api error", meta)
	case resp.StatusCode >= 300:
		return "", apperr.Auth(fmt.Sprintf("tenant api answered %d", resp.StatusCode), meta)
	}

	var out gqlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.External(err, "tenant api returned invalid json", meta)
	}
	if len(out.Errors) > 0 {
		return "", apperr.Auth("tenant rejected the token: "+out.Errors[0].Message, meta)
	}
	if out.Data.App == nil || out.Data.App.ID == "" {
		return "", apperr.Auth("token is not bound to an app", meta)
	}
	return out.Data.App.ID, nil
}

// FetchJWKS downloads the tenant's signing keys and returns them JSON encoded,
// ready to be stored in AuthData.
func (c *Client) FetchJWKS(ctx context.Context, tenantAPIURL string) (string, error) {
	set, err := c.FetchKeySet(ctx, tenantAPIURL)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(set)
	if err != nil {
		return "", apperr.Internal(err, "encode jwks")
	}
	return string(b), nil
}

func (c *Client) FetchKeySet(ctx context.Context, tenantAPIURL string) (jwk.Set, error) {
	u, err := JWKSURL(tenantAPIURL)
	if err != nil {
		return nil, err
	}
	set, err := jwk.Fetch(ctx, u, jwk.WithHTTPClient(c.http))
	if err != nil {
		return nil, apperr.External(err, "jwks fetch failed", map[string]any{"tenant": tenantAPIURL, "url": u})
	}
	return set, nil
}
