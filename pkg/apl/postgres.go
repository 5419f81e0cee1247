// pkg/apl/postgres.go
package apl

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storeapp/pkg/apperr"
)

// pgAPL implements APL backed by PostgreSQL.
type pgAPL struct {
	dbPool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed store. Call EnsureSchema first.
func NewPostgres(dbPool *pgxpool.Pool) APL {
	return &pgAPL{dbPool: dbPool}
}

// EnsureSchema creates the auth data table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS app_auth_data (
  tenant_api_url text PRIMARY KEY,
  token text NOT NULL,
  app_id text NOT NULL DEFAULT '',
  jwks text NOT NULL DEFAULT '',
  domain text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
ALTER TABLE app_auth_data ADD COLUMN IF NOT EXISTS domain text NOT NULL DEFAULT '';
`)
	return err
}

func (p *pgAPL) Get(ctx context.Context, tenantAPIURL string) (*AuthData, error) {
	if err := checkKey(tenantAPIURL); err != nil {
		return nil, err
	}
	row := p.dbPool.QueryRow(ctx, `SELECT tenant_api_url, token, app_id, jwks, domain FROM app_auth_data WHERE tenant_api_url=$1`, tenantAPIURL)
	var d AuthData
	if err := row.Scan(&d.TenantAPIURL, &d.Token, &d.AppID, &d.JWKS, &d.Domain); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Storage(err, "apl: postgres select", nil)
	}
	return &d, nil
}

func (p *pgAPL) Set(ctx context.Context, data AuthData) error {
	if err := checkAuthData(data); err != nil {
		return err
	}
	_, err := p.dbPool.Exec(ctx, `INSERT INTO app_auth_data(tenant_api_url, token, app_id, jwks, domain)
	  VALUES ($1,$2,$3,$4,$5)
	  ON CONFLICT (tenant_api_url) DO UPDATE SET token=EXCLUDED.token, app_id=EXCLUDED.app_id, jwks=EXCLUDED.jwks, domain=EXCLUDED.domain, updated_at=NOW()`,
		data.TenantAPIURL, data.Token, data.AppID, data.JWKS, data.Domain)
	if err != nil {
		return apperr.Storage(err, "apl: postgres upsert", nil)
	}
	return nil
}

func (p *pgAPL) UpdateJWKS(ctx context.Context, tenantAPIURL, token, jwks string) (bool, error) {
	tag, err := p.dbPool.Exec(ctx, `UPDATE app_auth_data SET jwks=$3, updated_at=NOW() WHERE tenant_api_url=$1 AND token=$2`,
		tenantAPIURL, token, jwks)
	if err != nil {
		return false, apperr.Storage(err, "apl: postgres update jwks", nil)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *pgAPL) Delete(ctx context.Context, tenantAPIURL string) error {
	if err := checkKey(tenantAPIURL); err != nil {
		return err
	}
	if _, err := p.dbPool.Exec(ctx, `DELETE FROM app_auth_data WHERE tenant_api_url=$1`, tenantAPIURL); err != nil {
		return apperr.Storage(err, "apl: postgres delete", nil)
	}
	return nil
}

func (p *pgAPL) GetAll(ctx context.Context) ([]AuthData, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT tenant_api_url, token, app_id, jwks, domain FROM app_auth_data ORDER BY tenant_api_url`)
	if err != nil {
		return nil, apperr.Storage(err, "apl: postgres list", nil)
	}
	defer rows.Close()
	out := []AuthData{}
	for rows.Next() {
		var d AuthData
		if err := rows.Scan(&d.TenantAPIURL, &d.Token, &d.AppID, &d.JWKS, &d.Domain); err != nil {
			return nil, apperr.Storage(err, "apl: postgres scan", nil)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "apl: postgres list", nil)
	}
	return out, nil
}

func (p *pgAPL) IsReady(ctx context.Context) ReadyResult {
	if err := p.dbPool.Ping(ctx); err != nil {
		return ReadyResult{Reason: err}
	}
	return ReadyResult{Ready: true}
}

func (p *pgAPL) IsConfigured(ctx context.Context) ConfiguredResult {
	if p.dbPool == nil {
		return ConfiguredResult{Reason: errors.New("postgres pool is not configured")}
	}
	return ConfiguredResult{Configured: true}
}
