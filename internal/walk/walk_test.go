package walk

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/rebind/internal/adv"
	"github.com/dropDatabas3/rebind/internal/jose"
	"github.com/dropDatabas3/rebind/internal/keyset"
	"github.com/dropDatabas3/rebind/internal/pin"
)

// keyServer is a minimal in-test advertisement server: one signing key, a
// signed /adv document, and the payload it advertises (which doubles as a
// recorded advertisement for bindings created "against" this server).
type keyServer struct {
	srv     *httptest.Server
	payload []byte
	thumbs  keyset.Set
}

func newSigKey(t *testing.T) jwk.Key {
	t.Helper()
	raw, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.ES512))
	require.NoError(t, key.Set(jwk.KeyOpsKey, jwk.KeyOperationList{jwk.KeyOpSign, jwk.KeyOpVerify}))
	return key
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	sig := newSigKey(t)

	pub, err := sig.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	payload, err := json.Marshal(set)
	require.NoError(t, err)

	signed, err := jws.Sign(payload, jws.WithJSON(), jws.WithKey(jwa.ES512, sig))
	require.NoError(t, err)

	keys, err := jose.ParseKeySet(payload)
	require.NoError(t, err)
	thumbs, err := jose.Thumbprints(keys)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/adv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(signed)
	}))
	t.Cleanup(srv.Close)

	return &keyServer{srv: srv, payload: payload, thumbs: thumbs}
}

// tangBinding builds a tang pin config bound to the server with the given
// recorded advertisement payload.
func tangBinding(url string, recordedAdv []byte) pin.Config {
	return pin.Config{
		Scheme: pin.SchemeTang,
		Name:   "tang",
		Tang:   &pin.TangPin{URL: url, Adv: recordedAdv},
	}
}

// sssToken wraps a binding config into a JWE sub-token the way secret
// sharing stores its branches.
func sssToken(t *testing.T, clevis map[string]any) string {
	t.Helper()
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	hdrs := jwe.NewHeaders()
	require.NoError(t, hdrs.Set("clevis", clevis))

	token, err := jwe.Encrypt([]byte("fragment"),
		jwe.WithKey(jwa.ECDH_ES, &raw.PublicKey),
		jwe.WithContentEncryption(jwa.A256GCM),
		jwe.WithProtectedHeaders(hdrs),
	)
	require.NoError(t, err)
	return string(token)
}

func tangClevis(url string, recordedAdv []byte) map[string]any {
	var advDoc map[string]any
	if err := json.Unmarshal(recordedAdv, &advDoc); err != nil {
		panic(err)
	}
	return map[string]any{
		"pin":  "tang",
		"tang": map[string]any{"url": url, "adv": advDoc},
	}
}

func newWalker(opts ...Option) *Walker {
	return New(adv.NewFetcher(0), opts...)
}

func TestWalkTangCleanRoundTrip(t *testing.T) {
	// Recorded set identical (by thumbprint) to the currently advertised
	// set: verified, nothing rotated.
	ks := newKeyServer(t)
	stale, err := newWalker().Walk(context.Background(), tangBinding(ks.srv.URL, ks.payload))
	require.NoError(t, err)
	require.Equal(t, 0, stale.Len())
}

func TestWalkTangRotationDetected(t *testing.T) {
	// Binding recorded against serverOld's keys, but the live endpoint now
	// advertises serverNew's keys: every recorded thumbprint is stale.
	old := newKeyServer(t)
	live := newKeyServer(t)

	stale, err := newWalker().Walk(context.Background(), tangBinding(live.srv.URL, old.payload))
	require.NoError(t, err)
	require.Equal(t, old.thumbs.Len(), stale.Len())
	for tp := range old.thumbs {
		require.True(t, stale.Contains(tp), "recorded thumbprint %s must be reported stale", tp)
	}
}

func TestWalkTangMalformedBinding(t *testing.T) {
	ks := newKeyServer(t)
	cases := []struct {
		name string
		cfg  pin.Config
	}{
		{"missing url", tangBinding("", ks.payload)},
		{"missing recorded adv", tangBinding(ks.srv.URL, nil)},
		{"empty recorded key set", tangBinding(ks.srv.URL, []byte(`{"keys":[]}`))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newWalker().Walk(context.Background(), tc.cfg)
			require.True(t, pin.IsMalformed(err), "expected ErrMalformed, got %v", err)
		})
	}
}

func TestWalkTangFetchFailurePropagates(t *testing.T) {
	ks := newKeyServer(t)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	_, err := newWalker().Walk(context.Background(), tangBinding(dead.URL, ks.payload))
	require.True(t, adv.IsUnreachable(err), "fetch failure must surface, got %v", err)
}

func TestWalkTangBadSignaturePropagates(t *testing.T) {
	// Endpoint serves an advertisement signed by a key it does not advertise.
	ks := newKeyServer(t)
	outsider := newSigKey(t)
	forged, err := jws.Sign(ks.payload, jws.WithJSON(), jws.WithKey(jwa.ES512, outsider))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(forged)
	}))
	defer srv.Close()

	_, werr := newWalker().Walk(context.Background(), tangBinding(srv.URL, ks.payload))
	require.True(t, adv.IsSignatureInvalid(werr), "expected ErrSignatureInvalid, got %v", werr)
}

func TestWalkUnknownSchemeIsClean(t *testing.T) {
	stale, err := newWalker().Walk(context.Background(), pin.Config{Scheme: pin.SchemeOther, Name: "tpm2"})
	require.NoError(t, err)
	require.Equal(t, 0, stale.Len())
}

func TestWalkSSSAggregatesUnion(t *testing.T) {
	// Two branches, each bound to a rotated server: the result is the union
	// of both branches' stale sets.
	oldA, oldB := newKeyServer(t), newKeyServer(t)
	liveA, liveB := newKeyServer(t), newKeyServer(t)

	cfg := pin.Config{
		Scheme: pin.SchemeSSS,
		Name:   "sss",
		SSS: &pin.SSSPin{
			Threshold: 1,
			JWE: []string{
				sssToken(t, tangClevis(liveA.srv.URL, oldA.payload)),
				sssToken(t, tangClevis(liveB.srv.URL, oldB.payload)),
			},
		},
	}

	stale, err := newWalker().Walk(context.Background(), cfg)
	require.NoError(t, err)

	want := keyset.New().Union(oldA.thumbs).Union(oldB.thumbs)
	require.Equal(t, want.Len(), stale.Len())
	for tp := range want {
		require.True(t, stale.Contains(tp))
	}
}

func TestWalkSSSMixedCleanAndRotated(t *testing.T) {
	clean := newKeyServer(t)
	old := newKeyServer(t)
	live := newKeyServer(t)

	cfg := pin.Config{
		Scheme: pin.SchemeSSS,
		Name:   "sss",
		SSS: &pin.SSSPin{
			Threshold: 2,
			JWE: []string{
				sssToken(t, tangClevis(clean.srv.URL, clean.payload)),
				sssToken(t, tangClevis(live.srv.URL, old.payload)),
			},
		},
	}

	stale, err := newWalker().Walk(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, old.thumbs.Len(), stale.Len())
}

func TestWalkSSSDecodeFailureFailsWholeCheck(t *testing.T) {
	// One healthy branch plus one unreadable sub-token: fail-closed, no
	// partial union comes back.
	clean := newKeyServer(t)

	cfg := pin.Config{
		Scheme: pin.SchemeSSS,
		Name:   "sss",
		SSS: &pin.SSSPin{
			Threshold: 1,
			JWE: []string{
				sssToken(t, tangClevis(clean.srv.URL, clean.payload)),
				"garbage-token",
			},
		},
	}

	stale, err := newWalker().Walk(context.Background(), cfg)
	require.True(t, pin.IsDecodeFailed(err), "expected ErrDecodeFailed, got %v", err)
	require.Nil(t, stale)
}

func TestWalkSSSEmptyTokenListIsMalformed(t *testing.T) {
	cfg := pin.Config{Scheme: pin.SchemeSSS, Name: "sss", SSS: &pin.SSSPin{Threshold: 1}}
	_, err := newWalker().Walk(context.Background(), cfg)
	require.True(t, pin.IsMalformed(err), "expected ErrMalformed, got %v", err)
}

func TestWalkNestedSSS(t *testing.T) {
	// sss inside sss, with a tang leaf two levels down.
	old := newKeyServer(t)
	live := newKeyServer(t)

	inner := map[string]any{
		"pin": "sss",
		"sss": map[string]any{
			"t":   1,
			"jwe": []any{sssToken(t, tangClevis(live.srv.URL, old.payload))},
		},
	}
	cfg := pin.Config{
		Scheme: pin.SchemeSSS,
		Name:   "sss",
		SSS:    &pin.SSSPin{Threshold: 1, JWE: []string{sssToken(t, inner)}},
	}

	stale, err := newWalker().Walk(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, old.thumbs.Len(), stale.Len())
}

func TestWalkDepthGuard(t *testing.T) {
	// The original tool recurses without bound; the explicit depth cap is a
	// deliberate defensive deviation. Nest past the cap and expect a hard
	// failure instead of a stack dive.
	ks := newKeyServer(t)

	leaf := tangClevis(ks.srv.URL, ks.payload)
	nested := leaf
	for i := 0; i < 4; i++ {
		nested = map[string]any{
			"pin": "sss",
			"sss": map[string]any{"t": 1, "jwe": []any{sssToken(t, nested)}},
		}
	}
	b, err := json.Marshal(nested)
	require.NoError(t, err)
	cfg, err := pin.Parse(b)
	require.NoError(t, err)

	_, werr := newWalker(WithMaxDepth(2)).Walk(context.Background(), cfg)
	require.True(t, IsDepthExceeded(werr), "expected ErrDepthExceeded, got %v", werr)

	// A generous cap accepts the same structure.
	stale, err := newWalker(WithMaxDepth(10)).Walk(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 0, stale.Len())
}
