// pkg/apl/cloudflare.go
package apl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storeapp/pkg/apperr"
)

// CloudflareKVConfig addresses one Workers KV namespace through the REST API.
type CloudflareKVConfig struct {
	BaseURL     string // https://api.cloudflare.com/client/v4
	AccountID   string
	NamespaceID string
	APIToken    string
	HTTPClient  *http.Client
}

type cloudflareKV struct {
	cfg  CloudflareKVConfig
	http *http.Client
}

func NewCloudflareKV(cfg CloudflareKVConfig) APL {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &cloudflareKV{cfg: cfg, http: hc}
}

func (c *cloudflareKV) namespaceURL() string {
	return c.cfg.BaseURL + "/accounts/" + url.PathEscape(c.cfg.AccountID) +
		"/storage/kv/namespaces/" + url.PathEscape(c.cfg.NamespaceID)
}

func (c *cloudflareKV) valueURL(key string) string {
	return c.namespaceURL() + "/values/" + url.PathEscape(key)
}

func (c *cloudflareKV) do(ctx context.Context, method, u string, body []byte) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, b, err
}

func (c *cloudflareKV) Get(ctx context.Context, tenantAPIURL string) (*AuthData, error) {
	if err := checkKey(tenantAPIURL); err != nil {
		return nil, err
	}
	status, body, err := c.do(ctx, http.MethodGet, c.valueURL(tenantAPIURL), nil)
	if err != nil {
		return nil, apperr.Storage(err, "apl: cloudflare kv get", nil)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status >= 300:
		return nil, apperr.Storage(fmt.Errorf("status %d", status), "apl: cloudflare kv get", nil)
	}
	d, err := decode(body)
	if err != nil {
		return nil, apperr.Storage(err, "apl: cloudflare kv value is not auth data", nil)
	}
	return d, nil
}

func (c *cloudflareKV) Set(ctx context.Context, data AuthData) error {
	if err := checkAuthData(data); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return apperr.Internal(err, "apl: encode auth data")
	}
	status, _, err := c.do(ctx, http.MethodPut, c.valueURL(data.TenantAPIURL), raw)
	if err != nil {
		return apperr.Storage(err, "apl: cloudflare kv put", nil)
	}
	if status >= 300 {
		return apperr.Storage(fmt.Errorf("status %d", status), "apl: cloudflare kv put", nil)
	}
	return nil
}

func (c *cloudflareKV) Delete(ctx context.Context, tenantAPIURL string) error {
	if err := checkKey(tenantAPIURL); err != nil {
		return err
	}
	status, _, err := c.do(ctx, http.MethodDelete, c.valueURL(tenantAPIURL), nil)
	if err != nil {
		return apperr.Storage(err, "apl: cloudflare kv delete", nil)
	}
	if status >= 300 && status != http.StatusNotFound {
		return apperr.Storage(fmt.Errorf("status %d", status), "apl: cloudflare kv delete", nil)
	}
	return nil
}

// GetAll is not supported: listing a namespace returns keys only and would
// need one request per tenant.
func (c *cloudflareKV) GetAll(ctx context.Context) ([]AuthData, error) {
	return []AuthData{}, nil
}

func (c *cloudflareKV) IsReady(ctx context.Context) ReadyResult {
	status, _, err := c.do(ctx, http.MethodGet, c.namespaceURL(), nil)
	if err != nil {
		return ReadyResult{Reason: err}
	}
	if status >= 300 {
		return ReadyResult{Reason: fmt.Errorf("cloudflare kv namespace returned status %d", status)}
	}
	return ReadyResult{Ready: true}
}

func (c *cloudflareKV) IsConfigured(ctx context.Context) ConfiguredResult {
	var missing []string
	if c.cfg.AccountID == "" {
		missing = append(missing, "CF_ACCOUNT_ID")
	}
	if c.cfg.NamespaceID == "" {
		missing = append(missing, "CF_KV_NAMESPACE_ID")
	}
	if c.cfg.APIToken == "" {
		missing = append(missing, "CF_API_TOKEN")
	}
	if len(missing) > 0 {
		return ConfiguredResult{Reason: errors.New("missing " + strings.Join(missing, ", "))}
	}
	return ConfiguredResult{Configured: true}
}
