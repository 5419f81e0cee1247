// pkg/apl/redis.go
package apl

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"storeapp/pkg/apperr"
)

// redisAPL stores one string value per tenant under keyPrefix+tenantAPIURL.
// Upstash deployments use the same backend through a rediss:// URL.
type redisAPL struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis wraps an existing client; the caller owns its lifecycle.
func NewRedis(client *redis.Client, keyPrefix string) APL {
	return &redisAPL{client: client, keyPrefix: keyPrefix}
}

func (s *redisAPL) key(tenantAPIURL string) string { return s.keyPrefix + tenantAPIURL }

func (s *redisAPL) Get(ctx context.Context, tenantAPIURL string) (*AuthData, error) {
	if err := checkKey(tenantAPIURL); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.key(tenantAPIURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err, "apl: redis get", nil)
	}
	d, err := decode(raw)
	if err != nil {
		return nil, apperr.Storage(err, "apl: redis value is not auth data", nil)
	}
	return d, nil
}

func (s *redisAPL) Set(ctx context.Context, data AuthData) error {
	if err := checkAuthData(data); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return apperr.Internal(err, "apl: encode auth data")
	}
	// SET replaces the whole value in one command, no TTL.
	if err := s.client.Set(ctx, s.key(data.TenantAPIURL), raw, 0).Err(); err != nil {
		return apperr.Storage(err, "apl: redis set", nil)
	}
	return nil
}

// UpdateJWKS runs an optimistic WATCH/MULTI transaction so a concurrent SET
// or DEL of the tenant aborts the write.
func (s *redisAPL) UpdateJWKS(ctx context.Context, tenantAPIURL, token, jwks string) (bool, error) {
	key := s.key(tenantAPIURL)
	written := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		d, err := decode(raw)
		if err != nil {
			return err
		}
		if d.Token != token {
			return nil
		}
		d.JWKS = jwks
		out, err := encode(*d)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage(err, "apl: redis update jwks", nil)
	}
	return written, nil
}

func (s *redisAPL) Delete(ctx context.Context, tenantAPIURL string) error {
	if err := checkKey(tenantAPIURL); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(tenantAPIURL)).Err(); err != nil {
		return apperr.Storage(err, "apl: redis del", nil)
	}
	return nil
}

func (s *redisAPL) GetAll(ctx context.Context) ([]AuthData, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, apperr.Storage(err, "apl: redis scan", nil)
	}
	out := []AuthData{}
	for start := 0; start < len(keys); start += 200 {
		end := start + 200
		if end > len(keys) {
			end = len(keys)
		}
		vals, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, apperr.Storage(err, "apl: redis mget", nil)
		}
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			// keys sharing the prefix but holding other data are skipped
			d, err := decode([]byte(str))
			if err != nil || d.TenantAPIURL == "" {
				continue
			}
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantAPIURL < out[j].TenantAPIURL })
	return out, nil
}

func (s *redisAPL) IsReady(ctx context.Context) ReadyResult {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return ReadyResult{Reason: err}
	}
	return ReadyResult{Ready: true}
}

func (s *redisAPL) IsConfigured(ctx context.Context) ConfiguredResult {
	if s.client == nil {
		return ConfiguredResult{Reason: errors.New("redis client is not configured")}
	}
	return ConfiguredResult{Configured: true}
}
