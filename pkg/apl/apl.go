// Package apl is the auth persistence layer: one credential record per tenant
// installation behind a single interface, with interchangeable backends.
package apl

import (
	"context"
	"encoding/json"
	"strings"

	"storeapp/pkg/apperr"
)

// AuthData is the credential record persisted per tenant. The JSON layout is
// the stored value in every backend.
type AuthData struct {
	TenantAPIURL string `json:"saleorApiUrl"`
	Token        string `json:"token"`
	AppID        string `json:"appId"`
	JWKS         string `json:"jwks,omitempty"`
	Domain       string `json:"domain,omitempty"`
}

// ReadyResult tells whether the backend can serve requests right now.
type ReadyResult struct {
	Ready  bool
	Reason error
}

// ConfiguredResult tells whether the backend has the settings it needs at all.
type ConfiguredResult struct {
	Configured bool
	Reason     error
}

// APL is implemented identically by every backend.
//
// Get returns (nil, nil) for a tenant that was never stored. Set replaces the
// record for data.TenantAPIURL in a single backend write. Delete of an absent
// key succeeds. GetAll may return an empty slice when the storage cannot
// enumerate keys.
type APL interface {
	Get(ctx context.Context, tenantAPIURL string) (*AuthData, error)
	Set(ctx context.Context, data AuthData) error
	Delete(ctx context.Context, tenantAPIURL string) error
	GetAll(ctx context.Context) ([]AuthData, error)
	IsReady(ctx context.Context) ReadyResult
	IsConfigured(ctx context.Context) ConfiguredResult
}

// KeyUpdater is implemented by backends that can replace a tenant's JWKS in
// one conditional write.
type KeyUpdater interface {
	UpdateJWKS(ctx context.Context, tenantAPIURL, token, jwks string) (bool, error)
}

// UpdateJWKS stores jwks for the tenant only while the record still exists
// and still carries token. It reports whether the record was written, so a
// concurrent uninstall or re-registration is never overwritten with stale
// credentials. Backends without KeyUpdater get a read-compare-write, which
// narrows but does not close that window.
func UpdateJWKS(ctx context.Context, store APL, tenantAPIURL, token, jwks string) (bool, error) {
	if err := checkKey(tenantAPIURL); err != nil {
		return false, err
	}
	if u, ok := store.(KeyUpdater); ok {
		return u.UpdateJWKS(ctx, tenantAPIURL, token, jwks)
	}
	cur, err := store.Get(ctx, tenantAPIURL)
	if err != nil || cur == nil || cur.Token != token {
		return false, err
	}
	cur.JWKS = jwks
	if err := store.Set(ctx, *cur); err != nil {
		return false, err
	}
	return true, nil
}

// Mode names a backend in configuration.
type Mode string

const (
	ModeMemory       Mode = "memory"
	ModeFile         Mode = "file"
	ModeRedis        Mode = "redis"
	ModeUpstash      Mode = "upstash"
	ModePostgres     Mode = "postgres"
	ModeCloudflareKV Mode = "cloudflare-kv"
	ModeS3           Mode = "s3"
)

// Modes lists every supported backend, in documentation order.
func Modes() []Mode {
	return []Mode{ModeMemory, ModeFile, ModeRedis, ModeUpstash, ModePostgres, ModeCloudflareKV, ModeS3}
}

func checkKey(tenantAPIURL string) error {
	if strings.TrimSpace(tenantAPIURL) == "" {
		return apperr.Validation("apl: tenant api url is required", nil)
	}
	return nil
}

func checkAuthData(data AuthData) error {
	if err := checkKey(data.TenantAPIURL); err != nil {
		return err
	}
	if strings.TrimSpace(data.Token) == "" {
		return apperr.Validation("apl: token is required", map[string]any{"tenant_api_url": data.TenantAPIURL})
	}
	return nil
}

func encode(data AuthData) ([]byte, error) {
	return json.Marshal(data)
}

func decode(raw []byte) (*AuthData, error) {
	var out AuthData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
