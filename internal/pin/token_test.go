package pin

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/stretchr/testify/require"
)

// encryptToken builds a JWE whose protected header carries the given binding
// config under "clevis", the way bound slots store nested metadata. The
// payload is irrelevant to decoding; only the header matters.
func encryptToken(t *testing.T, clevis map[string]any, jsonForm bool) []byte {
	t.Helper()

	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	hdrs := jwe.NewHeaders()
	require.NoError(t, hdrs.Set("clevis", clevis))

	opts := []jwe.EncryptOption{
		jwe.WithKey(jwa.ECDH_ES, &raw.PublicKey),
		jwe.WithContentEncryption(jwa.A256GCM),
		jwe.WithProtectedHeaders(hdrs),
	}
	if jsonForm {
		opts = append(opts, jwe.WithJSON())
	}
	token, err := jwe.Encrypt([]byte("opaque secret fragment"), opts...)
	require.NoError(t, err)
	return token
}

func tangClevis(url string) map[string]any {
	return map[string]any{
		"pin": "tang",
		"tang": map[string]any{
			"url": url,
			"adv": map[string]any{"keys": []any{map[string]any{"kty": "EC"}}},
		},
	}
}

func TestDecodeTokenExtractsNestedBinding(t *testing.T) {
	token := encryptToken(t, tangClevis("http://inner:8080"), false)

	cfg, err := DecodeToken(string(token))
	require.NoError(t, err)
	require.Equal(t, SchemeTang, cfg.Scheme)
	require.Equal(t, "http://inner:8080", cfg.Tang.URL)
}

func TestDecodeTokenGarbageFails(t *testing.T) {
	_, err := DecodeToken("not.a.jwe.at.all")
	require.True(t, IsDecodeFailed(err), "expected ErrDecodeFailed, got %v", err)
}

func TestDecodeTokenWithoutClevisHeaderFails(t *testing.T) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	token, err := jwe.Encrypt([]byte("x"),
		jwe.WithKey(jwa.ECDH_ES, &raw.PublicKey),
		jwe.WithContentEncryption(jwa.A256GCM),
	)
	require.NoError(t, err)

	_, derr := DecodeToken(string(token))
	require.True(t, IsDecodeFailed(derr), "expected ErrDecodeFailed, got %v", derr)
}

func TestDecodeTokenWithMalformedNestedBindingFails(t *testing.T) {
	token := encryptToken(t, map[string]any{"tang": map[string]any{}}, false) // no pin
	_, err := DecodeToken(string(token))
	require.True(t, IsDecodeFailed(err), "expected ErrDecodeFailed, got %v", err)
}

func TestFromLUKSToken(t *testing.T) {
	jweJSON := encryptToken(t, tangClevis("http://srv:8080"), true)
	tok := fmt.Sprintf(`{"type":"clevis","keyslots":["1"],"jwe":%s}`, jweJSON)

	cfg, err := FromLUKSToken([]byte(tok))
	require.NoError(t, err)
	require.Equal(t, SchemeTang, cfg.Scheme)
	require.Equal(t, "http://srv:8080", cfg.Tang.URL)
}

func TestFromLUKSTokenWrongType(t *testing.T) {
	_, err := FromLUKSToken([]byte(`{"type":"luks2-keyring","jwe":{}}`))
	require.True(t, IsMalformed(err), "expected ErrMalformed, got %v", err)
}

func TestFromLUKSTokenMissingJWE(t *testing.T) {
	_, err := FromLUKSToken([]byte(`{"type":"clevis","keyslots":["1"]}`))
	require.True(t, IsMalformed(err), "expected ErrMalformed, got %v", err)
}

func TestFromLUKSTokenGarbage(t *testing.T) {
	_, err := FromLUKSToken([]byte(`[]`))
	require.True(t, IsMalformed(err), "expected ErrMalformed, got %v", err)
}

// Sanity: the clevis header round-trips through generic JSON the way
// DecodeToken consumes it.
func TestClevisHeaderRoundTrip(t *testing.T) {
	b, err := json.Marshal(tangClevis("http://u"))
	require.NoError(t, err)
	cfg, err := Parse(b)
	require.NoError(t, err)
	require.Equal(t, SchemeTang, cfg.Scheme)
}
