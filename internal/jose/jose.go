// Package jose concentra las primitivas JOSE que el checker consume como
// contrato de librería (lestrrat-go/jwx): thumbprints JWK, verificación JWS y
// lectura de headers protegidos JWE. El resto del código no importa jwx para
// estas operaciones directamente; pasa por acá.
package jose

import (
	"crypto"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/dropDatabas3/rebind/internal/keyset"
)

var (
	// ErrHeaderNotFound se retorna cuando el header protegido pedido no
	// existe en el token.
	ErrHeaderNotFound = errors.New("jose: protected_header_not_found")
)

// Thumbprint computa el thumbprint RFC 7638 (SHA-256, base64url sin padding)
// de una clave.
func Thumbprint(key jwk.Key) (keyset.Thumbprint, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("jose: thumbprint: %w", err)
	}
	return keyset.Thumbprint(base64.RawURLEncoding.EncodeToString(tp)), nil
}

// Thumbprints computa el conjunto de thumbprints de todas las claves del set.
func Thumbprints(set jwk.Set) (keyset.Set, error) {
	out := make(keyset.Set, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		tp, err := Thumbprint(key)
		if err != nil {
			return nil, err
		}
		out.Add(tp)
	}
	return out, nil
}

// ParseKeySet parsea un documento JSON {"keys":[...]} como JWK set.
func ParseKeySet(raw []byte) (jwk.Set, error) {
	set, err := jwk.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("jose: parse key set: %w", err)
	}
	return set, nil
}

// CanVerify reporta si la clave declara la operación "verify" en key_ops.
func CanVerify(key jwk.Key) bool {
	for _, op := range key.KeyOps() {
		if op == jwk.KeyOpVerify {
			return true
		}
	}
	return false
}

// Verify verifica el JWS raw contra una clave. El algoritmo sale de la clave
// misma; si la clave no declara "alg" se asume ES512 (el default del
// protocolo de advertisement).
func Verify(raw []byte, key jwk.Key) error {
	alg := key.Algorithm()
	if alg == nil || alg.String() == "" {
		alg = jwa.ES512
	}
	if _, err := jws.Verify(raw, jws.WithKey(alg, key)); err != nil {
		return fmt.Errorf("jose: verify: %w", err)
	}
	return nil
}

// SignatureCount retorna cuántas firmas trae el JWS raw.
func SignatureCount(raw []byte) (int, error) {
	msg, err := jws.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("jose: parse jws: %w", err)
	}
	return len(msg.Signatures()), nil
}

// Payload extrae el payload de un JWS sin verificar firmas.
// El caller es responsable de verificar antes de confiar en el contenido.
func Payload(raw []byte) ([]byte, error) {
	msg, err := jws.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("jose: parse jws: %w", err)
	}
	return msg.Payload(), nil
}

// TokenHeader lee un miembro del header protegido de un token JWE (compact o
// JSON) y lo decodifica en into. No desencripta: el header protegido viaja en
// claro y es donde el binding guarda su configuración anidada.
func TokenHeader(token []byte, name string, into any) error {
	msg, err := jwe.Parse(token)
	if err != nil {
		return fmt.Errorf("jose: parse jwe: %w", err)
	}
	hdrs := msg.ProtectedHeaders()
	if hdrs == nil {
		return ErrHeaderNotFound
	}
	v, ok := hdrs.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrHeaderNotFound, name)
	}
	// Round-trip por JSON para mapear el valor genérico al tipo destino.
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jose: header %q: %w", name, err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("jose: header %q: %w", name, err)
	}
	return nil
}
