package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

var errNoKeys = errors.New("no signing keys stored for tenant")

// isDetachedJWS matches the compact form with an empty payload: header..signature
func isDetachedJWS(sig string) bool {
	parts := strings.Split(sig, ".")
	return len(parts) == 3 && parts[0] != "" && parts[1] == "" && parts[2] != ""
}

func verifyJWS(sig string, body []byte, jwksJSON string) error {
	if jwksJSON == "" {
		return errNoKeys
	}
	set, err := jwk.Parse([]byte(jwksJSON))
	if err != nil {
		return err
	}
	_, err = jws.Verify([]byte(sig),
		jws.WithKeySet(set, jws.WithInferAlgorithmFromKey(true), jws.WithRequireKid(false)),
		jws.WithDetachedPayload(body),
	)
	return err
}

// jwsKeyID returns the kid of the protected header, or "" when absent.
func jwsKeyID(sig string) string {
	msg, err := jws.ParseString(sig)
	if err != nil || len(msg.Signatures()) == 0 {
		return ""
	}
	return msg.Signatures()[0].ProtectedHeaders().KeyID()
}

func hasKeyID(jwksJSON, kid string) bool {
	if jwksJSON == "" {
		return false
	}
	set, err := jwk.Parse([]byte(jwksJSON))
	if err != nil {
		return false
	}
	_, ok := set.LookupKeyID(kid)
	return ok
}

// verifyHMAC checks the legacy scheme: hex(HMAC-SHA256(body, token)).
func verifyHMAC(sig string, body []byte, secret string) error {
	got, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return errors.New("signature is neither JWS nor hex")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errors.New("hmac mismatch")
	}
	return nil
}
