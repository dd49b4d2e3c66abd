// Package tang implementa el lado server del protocolo de advertisement:
// claves de firma y de intercambio en disco, y el documento JWS firmado que
// advd publica en /adv.
package tang

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/rebind/internal/jose"
	"github.com/dropDatabas3/rebind/internal/keyset"
	"github.com/dropDatabas3/rebind/internal/metrics"
	"github.com/dropDatabas3/rebind/internal/util/atomicwrite"
)

var (
	// ErrNoSigningKey indica un keys dir sin ninguna clave de firma.
	ErrNoSigningKey = errors.New("tang: no_signing_key")
)

// algECMR es el algoritmo de las claves de intercambio (derivación ECDH-MR).
// jwa no lo registra; viaja como string en el campo alg.
const algECMR = "ECMR"

const advCacheKey = "adv"

// KeyStore mantiene las claves privadas del server y firma advertisements.
// El advertisement firmado se cachea (es el mismo documento hasta que roten
// las claves); el TTL fuerza re-firmado periódico por si el dir cambió.
type KeyStore struct {
	dir string

	mu       sync.RWMutex
	sigKeys  []jwk.Key // EC P-521, ES512, key_ops sign+verify
	excKeys  []jwk.Key // EC P-521, ECMR, key_ops deriveKey
	advCache *gocache.Cache
}

// Load lee todas las claves *.jwk del directorio y las clasifica por
// key_ops. Falla si no hay ninguna clave de firma.
func Load(dir string, cacheTTL time.Duration) (*KeyStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("tang: read keys dir %s: %w", dir, err)
	}

	sig, exc, err := classifyKeys(dir, entries)
	if err != nil {
		return nil, err
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: dir %s", ErrNoSigningKey, dir)
	}
	return &KeyStore{
		dir:      dir,
		sigKeys:  sig,
		excKeys:  exc,
		advCache: gocache.New(cacheTTL, 2*cacheTTL),
	}, nil
}

func classifyKeys(dir string, entries []os.DirEntry) (sig, exc []jwk.Key, err error) {
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jwk") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("tang: read key %s: %w", e.Name(), err)
		}
		key, err := jwk.ParseKey(b)
		if err != nil {
			return nil, nil, fmt.Errorf("tang: parse key %s: %w", e.Name(), err)
		}
		if hasOp(key, jwk.KeyOpSign) {
			sig = append(sig, key)
		} else if hasOp(key, jwk.KeyOpDeriveKey) {
			exc = append(exc, key)
		}
	}
	return sig, exc, nil
}

// Bootstrap genera un par de claves inicial (firma + intercambio) si el
// directorio está vacío, y después carga normalmente.
func Bootstrap(dir string, cacheTTL time.Duration) (*KeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("tang: create keys dir %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("tang: read keys dir %s: %w", dir, err)
	}
	empty := true
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".jwk") {
			empty = false
			break
		}
	}
	if empty {
		if err := generateKeyPair(dir); err != nil {
			return nil, err
		}
	}
	return Load(dir, cacheTTL)
}

// Rotate genera un par de claves nuevo. Las claves viejas quedan en el dir
// (siguen desencriptando bindings existentes) pero el advertisement nuevo ya
// no las publica si se las mueve fuera; acá solo se agrega.
func (ks *KeyStore) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := generateKeyPair(ks.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return fmt.Errorf("tang: read keys dir %s: %w", ks.dir, err)
	}
	sig, exc, err := classifyKeys(ks.dir, entries)
	if err != nil {
		return err
	}
	ks.sigKeys = sig
	ks.excKeys = exc
	ks.advCache.Delete(advCacheKey)
	return nil
}

// SigThumbprints retorna los thumbprints de las claves de firma publicadas.
func (ks *KeyStore) SigThumbprints() (keyset.Set, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := keyset.New()
	for _, key := range ks.sigKeys {
		pub, err := key.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("tang: public key: %w", err)
		}
		tp, err := jose.Thumbprint(pub)
		if err != nil {
			return nil, err
		}
		out.Add(tp)
	}
	return out, nil
}

// SignedAdv retorna el advertisement firmado (JWS general JSON), desde cache
// si está fresco.
func (ks *KeyStore) SignedAdv() ([]byte, error) {
	if v, ok := ks.advCache.Get(advCacheKey); ok {
		metrics.AdvCacheHits.Inc()
		return v.([]byte), nil
	}
	metrics.AdvCacheMisses.Inc()

	start := time.Now()
	signed, err := ks.signAdv()
	if err != nil {
		return nil, err
	}
	metrics.AdvSignLatency.Observe(float64(time.Since(start).Milliseconds()))

	ks.advCache.Set(advCacheKey, signed, gocache.DefaultExpiration)
	return signed, nil
}

// signAdv arma el payload {"keys":[...]} con las públicas de todas las
// claves y lo firma con cada clave de firma. Las públicas de firma se
// publican con key_ops ["verify"]: es contra ellas que el checker valida.
func (ks *KeyStore) signAdv() ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	pubSet := jwk.NewSet()
	for _, key := range ks.sigKeys {
		pub, err := publicWithOps(key, jwk.KeyOpVerify)
		if err != nil {
			return nil, err
		}
		if err := pubSet.AddKey(pub); err != nil {
			return nil, fmt.Errorf("tang: build adv: %w", err)
		}
	}
	for _, key := range ks.excKeys {
		pub, err := publicWithOps(key, jwk.KeyOpDeriveKey)
		if err != nil {
			return nil, err
		}
		if err := pubSet.AddKey(pub); err != nil {
			return nil, fmt.Errorf("tang: build adv: %w", err)
		}
	}

	payload, err := json.Marshal(pubSet)
	if err != nil {
		return nil, fmt.Errorf("tang: marshal adv payload: %w", err)
	}

	opts := []jws.SignOption{jws.WithJSON()}
	for _, key := range ks.sigKeys {
		opts = append(opts, jws.WithKey(jwa.ES512, key))
	}
	signed, err := jws.Sign(payload, opts...)
	if err != nil {
		return nil, fmt.Errorf("tang: sign adv: %w", err)
	}
	return signed, nil
}

// generateKeyPair escribe una clave de firma y una de intercambio nuevas,
// nombradas por thumbprint.
func generateKeyPair(dir string) error {
	sig, err := newKey(jwa.ES512.String(), jwk.KeyOpSign, jwk.KeyOpVerify)
	if err != nil {
		return err
	}
	exc, err := newKey(algECMR, jwk.KeyOpDeriveKey)
	if err != nil {
		return err
	}
	for _, key := range []jwk.Key{sig, exc} {
		if err := writeKey(dir, key); err != nil {
			return err
		}
	}
	return nil
}

func newKey(alg string, ops ...jwk.KeyOperation) (jwk.Key, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("tang: generate key: %w", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("tang: wrap key: %w", err)
	}
	if alg != "" {
		if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
			return nil, fmt.Errorf("tang: set alg: %w", err)
		}
	}
	if err := key.Set(jwk.KeyOpsKey, jwk.KeyOperationList(ops)); err != nil {
		return nil, fmt.Errorf("tang: set key_ops: %w", err)
	}
	return key, nil
}

func writeKey(dir string, key jwk.Key) error {
	pub, err := key.PublicKey()
	if err != nil {
		return fmt.Errorf("tang: public key: %w", err)
	}
	tp, err := jose.Thumbprint(pub)
	if err != nil {
		return err
	}
	b, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("tang: marshal key: %w", err)
	}
	path := filepath.Join(dir, string(tp)+".jwk")
	if err := atomicwrite.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("tang: write key %s: %w", path, err)
	}
	return nil
}

// publicWithOps deriva la pública de key y le fija key_ops.
func publicWithOps(key jwk.Key, ops ...jwk.KeyOperation) (jwk.Key, error) {
	pub, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("tang: public key: %w", err)
	}
	if err := pub.Set(jwk.KeyOpsKey, jwk.KeyOperationList(ops)); err != nil {
		return nil, fmt.Errorf("tang: set key_ops: %w", err)
	}
	return pub, nil
}

func hasOp(key jwk.Key, op jwk.KeyOperation) bool {
	for _, o := range key.KeyOps() {
		if o == op {
			return true
		}
	}
	return false
}
