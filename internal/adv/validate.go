package adv

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/dropDatabas3/rebind/internal/jose"
)

// Validate parsea y verifica un advertisement crudo, y retorna el key set
// vigente completo (no solo las claves de verificación).
//
// El advertisement es auto-certificante: las claves contra las que se
// verifica la firma salen del documento mismo, no de un trust root externo.
// Es el modelo de confianza del protocolo, no un descuido. La política es
// verificar contra TODAS las claves que declaran "verify" y exigir éxito en
// todas: un advertisement multi-firma parcialmente forjado no se acepta.
func Validate(raw []byte) (jwk.Set, error) {
	payload, err := jose.Payload(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdvMalformed, err)
	}

	keys, err := jose.ParseKeySet(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdvMalformed, err)
	}
	// Key set vacío es advertisement malformado, no "cero claves".
	if keys.Len() == 0 {
		return nil, fmt.Errorf("%w: empty key set", ErrAdvMalformed)
	}

	var verifyKeys []jwk.Key
	for i := 0; i < keys.Len(); i++ {
		key, ok := keys.Key(i)
		if !ok {
			continue
		}
		if jose.CanVerify(key) {
			verifyKeys = append(verifyKeys, key)
		}
	}
	if len(verifyKeys) == 0 {
		return nil, ErrNoVerifyKey
	}

	sigs, err := jose.SignatureCount(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdvMalformed, err)
	}
	if sigs == 0 {
		return nil, fmt.Errorf("%w: unsigned advertisement", ErrSignatureInvalid)
	}

	for _, key := range verifyKeys {
		if err := jose.Verify(raw, key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
	}

	return keys, nil
}
