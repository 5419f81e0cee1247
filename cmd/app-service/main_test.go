package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeapp/internal/manifest"
	"storeapp/pkg/apl"
	"storeapp/pkg/config"
	"storeapp/pkg/logger"
	"storeapp/pkg/platform"
)

const (
	shopAPI  = "https://shop.example.com/graphql/"
	otherAPI = "https://other.example.com/graphql/"
)

// tenantServer stands in for shop.example.com: it accepts one token and
// publishes the key it signs deliveries with.
type tenantServer struct {
	srv  *httptest.Server
	priv jwk.Key
}

func newTenantServer(t *testing.T) *tenantServer {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "shop-1"))
	pub, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer tok_abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"app":{"id":"QXBwOjc="}}}`))
	})
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	})
	ts := &tenantServer{srv: httptest.NewServer(mux), priv: priv}
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tenantServer) sign(t *testing.T, body []byte) string {
	out, err := jws.Sign(body, jws.WithKey(jwa.RS256, ts.priv))
	require.NoError(t, err)
	parts := strings.Split(string(out), ".")
	return parts[0] + ".." + parts[2]
}

// redirect sends every outbound request to the fake tenant, whatever host it names.
type redirect struct{ target *url.URL }

func (rt redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newTestApp(t *testing.T) (chi.Router, apl.APL, *tenantServer) {
	t.Helper()
	ts := newTenantServer(t)
	target, err := url.Parse(ts.srv.URL)
	require.NoError(t, err)

	store := apl.NewInstrumented(apl.NewMemory(), apl.ModeMemory, logger.Nop())
	cfg := config.Config{AppID: "storeapp", AppName: "Store App", AppVersion: "0.1.0", AppPermissions: []string{"MANAGE_ORDERS"}}
	def, err := manifest.DefinitionFromConfig(cfg)
	require.NoError(t, err)
	router, err := newRouter(deps{
		cfg:      cfg,
		log:      logger.Nop(),
		store:    store,
		platform: platform.NewWithHTTPClient(&http.Client{Transport: redirect{target: target}}),
		def:      def,
	})
	require.NoError(t, err)
	return router, store, ts
}

func do(router http.Handler, method, path string, headers map[string]string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInstallationHandshake(t *testing.T) {
	router, store, tenant := newTestApp(t)
	ctx := context.Background()

	// manifest
	rec := do(router, http.MethodGet, "/manifest", map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "ext.example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m manifest.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "https://ext.example.com/register-callback", m.TokenTargetURL)
	require.Len(t, m.Webhooks, 2)
	assert.Equal(t, "https://ext.example.com/webhooks/order-created", m.Webhooks[0].TargetURL)

	// registration
	rec = do(router, http.MethodPost, "/register-callback", map[string]string{platform.HeaderAPIURL: shopAPI, platform.HeaderDomain: "shop.example.com"}, []byte(`{"auth_token":"tok_abc"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := store.Get(ctx, shopAPI)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, shopAPI, got.TenantAPIURL)
	assert.Equal(t, "tok_abc", got.Token)
	assert.Equal(t, "QXBwOjc=", got.AppID)

	// signed delivery for the registered tenant
	body := []byte(`{"order":{"userEmail":"ada@example.com","number":"1"}}`)
	headers := map[string]string{
		platform.HeaderAPIURL:    shopAPI,
		platform.HeaderEvent:     "order_created",
		platform.HeaderSignature: tenant.sign(t, body),
	}
	rec = do(router, http.MethodPost, "/webhooks/order-created", headers, body)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Accepted", rec.Body.String())

	// same delivery claimed for a tenant that never registered
	headers[platform.HeaderAPIURL] = otherAPI
	rec = do(router, http.MethodPost, "/webhooks/order-created", headers, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// uninstall
	deleted := []byte(`{"app":{"id":"QXBwOjc="}}`)
	rec = do(router, http.MethodPost, "/webhooks/app-deleted", map[string]string{
		platform.HeaderAPIURL:    shopAPI,
		platform.HeaderEvent:     "app_deleted",
		platform.HeaderSignature: tenant.sign(t, deleted),
	}, deleted)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err = store.Get(ctx, shopAPI)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestForgedRegistrationLeavesNoRecord(t *testing.T) {
	router, store, _ := newTestApp(t)
	rec := do(router, http.MethodPost, "/register", map[string]string{platform.HeaderAPIURL: shopAPI}, []byte(`{"auth_token":"tok_forged"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	got, err := store.Get(context.Background(), shopAPI)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOperationalEndpoints(t *testing.T) {
	router, _, _ := newTestApp(t)

	rec := do(router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = do(router, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(router, http.MethodGet, "/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type notReady struct{ apl.APL }

func (notReady) IsReady(context.Context) apl.ReadyResult {
	return apl.ReadyResult{Reason: context.DeadlineExceeded}
}

func TestReadyzReportsBackendDown(t *testing.T) {
	rec := httptest.NewRecorder()
	readiness(notReady{APL: apl.NewMemory()})(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "deadline exceeded")
}
