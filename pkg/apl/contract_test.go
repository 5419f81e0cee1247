package apl

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeapp/pkg/apperr"
)

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) APL) {
	t.Helper()
	ctx := context.Background()

	shop := AuthData{TenantAPIURL: "https://shop.example.com/graphql/", Token: "tok_abc", AppID: "QXBwOjE=", JWKS: `{"keys":[]}`}
	other := AuthData{TenantAPIURL: "https://other.example.com/graphql/", Token: "tok_xyz", AppID: "QXBwOjI="}

	t.Run("absent key returns nil without error", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get(ctx, "https://never.example.com/graphql/")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set is an idempotent upsert", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, shop))
		require.NoError(t, s.Set(ctx, shop))
		got, err := s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, shop, *got)
	})

	t.Run("set replaces the previous record", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, shop))
		rotated := shop
		rotated.Token = "tok_rotated"
		rotated.JWKS = ""
		require.NoError(t, s.Set(ctx, rotated))
		got, err := s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rotated, *got)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, shop))
		got, err := s.Get(ctx, other.TenantAPIURL)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, s.Set(ctx, other))
		require.NoError(t, s.Delete(ctx, other.TenantAPIURL))
		got, err = s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, shop.Token, got.Token)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Delete(ctx, shop.TenantAPIURL))
		require.NoError(t, s.Set(ctx, shop))
		require.NoError(t, s.Delete(ctx, shop.TenantAPIURL))
		require.NoError(t, s.Delete(ctx, shop.TenantAPIURL))
		got, err := s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("invalid input is rejected before any write", func(t *testing.T) {
		s := newStore(t)
		err := s.Set(ctx, AuthData{TenantAPIURL: "", Token: "tok"})
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.CodeValidation))

		err = s.Set(ctx, AuthData{TenantAPIURL: shop.TenantAPIURL})
		require.Error(t, err)
		got, err := s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = s.Get(ctx, " ")
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
	})

	t.Run("concurrent writers leave one complete record", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				d := shop
				d.Token = fmt.Sprintf("tok_%d", i)
				d.AppID = fmt.Sprintf("app_%d", i)
				assert.NoError(t, s.Set(ctx, d))
			}(i)
		}
		wg.Wait()
		got, err := s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		require.NotNil(t, got)
		// token and app id come from the same write
		assert.Equal(t, got.Token[len("tok_"):], got.AppID[len("app_"):])
	})

	t.Run("jwks update never resurrects or overwrites a newer record", func(t *testing.T) {
		s := newStore(t)
		ok, err := UpdateJWKS(ctx, s, shop.TenantAPIURL, shop.Token, `{"keys":[1]}`)
		require.NoError(t, err)
		assert.False(t, ok)
		got, err := s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		assert.Nil(t, got)

		reinstalled := shop
		reinstalled.Token = "tok_new"
		require.NoError(t, s.Set(ctx, reinstalled))
		ok, err = UpdateJWKS(ctx, s, shop.TenantAPIURL, shop.Token, `{"keys":[1]}`)
		require.NoError(t, err)
		assert.False(t, ok)
		got, err = s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, reinstalled, *got)

		ok, err = UpdateJWKS(ctx, s, shop.TenantAPIURL, "tok_new", `{"keys":[2]}`)
		require.NoError(t, err)
		assert.True(t, ok)
		got, err = s.Get(ctx, shop.TenantAPIURL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, `{"keys":[2]}`, got.JWKS)
		assert.Equal(t, "tok_new", got.Token)
		assert.Equal(t, shop.AppID, got.AppID)
	})

	t.Run("ready and configured", func(t *testing.T) {
		s := newStore(t)
		assert.True(t, s.IsConfigured(ctx).Configured)
		r := s.IsReady(ctx)
		assert.True(t, r.Ready, "reason: %v", r.Reason)
	})
}

// runListContract applies to backends that support enumeration.
func runListContract(t *testing.T, newStore func(t *testing.T) APL) {
	t.Helper()
	ctx := context.Background()
	s := newStore(t)
	a := AuthData{TenantAPIURL: "https://a.example.com/graphql/", Token: "a"}
	b := AuthData{TenantAPIURL: "https://b.example.com/graphql/", Token: "b"}
	require.NoError(t, s.Set(ctx, b))
	require.NoError(t, s.Set(ctx, a))
	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AuthData{a, b}, all)
}
