package webhooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"storeapp/pkg/apl"
	"storeapp/pkg/logger"
)

func noop(context.Context, Event) error { return nil }

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(
		Subscription{Name: "A", Event: "ORDER_CREATED", Path: "/order-created/", Handler: noop},
		Subscription{Name: "B", Event: "APP_DELETED", Path: "app-deleted", Handler: noop},
	)
	require.NoError(t, err)

	s, ok := reg.Lookup("order-created")
	require.True(t, ok)
	assert.Equal(t, "A", s.Name)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	decls := reg.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "order-created", decls[0].Path)
	assert.Equal(t, "APP_DELETED", decls[1].Event)
}

func TestNewRegistry_Invalid(t *testing.T) {
	cases := map[string][]Subscription{
		"duplicate": {
			{Name: "A", Event: "E", Path: "p", Handler: noop},
			{Name: "B", Event: "E", Path: "/p", Handler: noop},
		},
		"no handler":  {{Name: "A", Event: "E", Path: "p"}},
		"no event":    {{Name: "A", Path: "p", Handler: noop}},
		"nested path": {{Name: "A", Event: "E", Path: "a/b", Handler: noop}},
	}
	for name, subs := range cases {
		_, err := NewRegistry(subs...)
		assert.Error(t, err, name)
	}
}

func TestBuiltins(t *testing.T) {
	store := apl.NewMemory()
	reg, err := NewRegistry(OrderCreated(logger.Nop()), AppDeleted(store, logger.Nop()))
	require.NoError(t, err)
	assert.Len(t, reg.Declarations(), 2)
}

func TestOrderCreatedHandler(t *testing.T) {
	h := OrderCreated(logger.Nop()).Handler
	ctx := context.Background()
	assert.NoError(t, h(ctx, Event{TenantAPIURL: shop, Payload: []byte(`{"order":{"userEmail":"ada@example.com","number":"7"}}`)}))
	assert.NoError(t, h(ctx, Event{TenantAPIURL: shop, Payload: []byte(`{"order":null}`)}))
	assert.Error(t, h(ctx, Event{TenantAPIURL: shop, Payload: []byte(`not json`)}))
}

func TestAppDeletedHandlerUninstalls(t *testing.T) {
	store := apl.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, apl.AuthData{TenantAPIURL: shop, Token: "t"}))
	require.NoError(t, store.Set(ctx, apl.AuthData{TenantAPIURL: "https://other.example.com/graphql/", Token: "u"}))

	require.NoError(t, AppDeleted(store, logger.Nop()).Handler(ctx, Event{TenantAPIURL: shop}))

	got, err := store.Get(ctx, shop)
	require.NoError(t, err)
	assert.Nil(t, got)
	other, err := store.Get(ctx, "https://other.example.com/graphql/")
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestOrderCreatedHandlerExtractsOrderFacts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := OrderCreated(zap.New(core).Sugar()).Handler
	payload := []byte(`{"order":{"id":"T3JkZXI6MQ==","number":42,"userEmail":"Ada@Example.com",
		"user":{"email":"ada@example.com"},
		"lines":[{"productSku":"SKU-1","quantity":2},{"productSku":"SKU-2","quantity":3}],
		"total":{"gross":{"amount":"19.90","currency":"EUR"}}}}`)

	require.NoError(t, h(context.Background(), Event{TenantAPIURL: shop, Payload: payload}))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "ada@example.com", fields["customer"])
	assert.Equal(t, true, fields["registered"])
	assert.Equal(t, "42", fields["number"])
	assert.EqualValues(t, 2, fields["lines"])
	assert.Equal(t, 5.0, fields["quantity"])
	assert.Equal(t, "SKU-1", fields["first_sku"])
	assert.Equal(t, 19.9, fields["total"])
	assert.Equal(t, "EUR", fields["currency"])
}
