package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"
)

// signingKey plays the tenant side of the signature scheme.
type signingKey struct {
	priv jwk.Key
	jwks string
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, kid))
	pub, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	b, err := json.Marshal(set)
	require.NoError(t, err)
	return signingKey{priv: priv, jwks: string(b)}
}

// sign returns a detached compact JWS over body.
func (k signingKey) sign(t *testing.T, body []byte) string {
	t.Helper()
	out, err := jws.Sign(body, jws.WithKey(jwa.RS256, k.priv))
	require.NoError(t, err)
	parts := strings.Split(string(out), ".")
	require.Len(t, parts, 3)
	return parts[0] + ".." + parts[2]
}

func hmacHex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeKeys struct {
	mu    sync.Mutex
	jwks  string
	err   error
	calls int
	// onFetch runs while the fetch is in flight
	onFetch func()
}

func (f *fakeKeys) FetchJWKS(ctx context.Context, tenantAPIURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.jwks, f.err
}
