package platform

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeapp/pkg/apperr"
)

func gqlServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["query"] != appIDQuery || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAppID(t *testing.T) {
	ctx := context.Background()
	c := NewWithHTTPClient(http.DefaultClient)

	t.Run("valid token", func(t *testing.T) {
		srv := gqlServer(t, 200, `{"data":{"app":{"id":"QXBwOjQy"}}}`)
		id, err := c.FetchAppID(ctx, srv.URL+"/graphql/", "good")
		require.NoError(t, err)
		assert.Equal(t, "QXBwOjQy", id)
	})

	t.Run("http 401", func(t *testing.T) {
		srv := gqlServer(t, 200, `{}`)
		_, err := c.FetchAppID(ctx, srv.URL+"/graphql/", "forged")
		assert.True(t, apperr.Is(err, apperr.CodeAuth), "got %v", err)
	})

	t.Run("graphql errors", func(t *testing.T) {
		srv := gqlServer(t, 200, `{"data":{"app":null},"errors":[{"message":"permission denied"}]}`)
		_, err := c.FetchAppID(ctx, srv.URL+"/graphql/", "good")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apperr.Status(err))
		assert.Contains(t, err.Error(), "permission denied")
	})

	t.Run("no app bound", func(t *testing.T) {
		srv := gqlServer(t, 200, `{"data":{"app":null}}`)
		_, err := c.FetchAppID(ctx, srv.URL+"/graphql/", "good")
		assert.True(t, apperr.Is(err, apperr.CodeAuth))
	})

	t.Run("tenant failing", func(t *testing.T) {
		srv := gqlServer(t, 503, `oops`)
		_, err := c.FetchAppID(ctx, srv.URL+"/graphql/", "good")
		assert.True(t, apperr.Is(err, apperr.CodeExternal))
	})

	t.Run("tenant unreachable", func(t *testing.T) {
		srv := gqlServer(t, 200, `{}`)
		u := srv.URL
		srv.Close()
		_, err := c.FetchAppID(ctx, u+"/graphql/", "good")
		assert.Equal(t, http.StatusBadGateway, apperr.Status(err))
	})

	t.Run("malformed url", func(t *testing.T) {
		_, err := c.FetchAppID(ctx, "shop.example.com/graphql/", "good")
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
	})
}

func TestJWKSURL(t *testing.T) {
	u, err := JWKSURL("https://shop.example.com/graphql/")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/.well-known/jwks.json", u)

	_, err = JWKSURL("ftp://shop.example.com/")
	assert.Error(t, err)
}

func TestFetchJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := jwk.FromRaw(key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "k1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewWithHTTPClient(srv.Client())
	raw, err := c.FetchJWKS(context.Background(), srv.URL+"/graphql/")
	require.NoError(t, err)

	parsed, err := jwk.Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, 1, parsed.Len())
	k, ok := parsed.LookupKeyID("k1")
	require.True(t, ok)
	assert.Equal(t, pub.KeyType(), k.KeyType())
}

func TestFetchJWKS_Failure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := NewWithHTTPClient(srv.Client()).FetchJWKS(context.Background(), srv.URL+"/graphql/")
	assert.True(t, apperr.Is(err, apperr.CodeExternal))
}
