package pin

import (
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/rebind/internal/jose"
)

// clevisHeader es el nombre del miembro del header protegido donde el binding
// guarda su configuración.
const clevisHeader = "clevis"

// DecodeToken decodifica un sub-token JWE de un binding sss a la metadata de
// binding anidada que lleva en su header protegido. No requiere desencriptar
// el token: la configuración viaja en el header, en claro.
//
// Cualquier falla (token no parseable, header ausente, metadata inválida) es
// ErrDecodeFailed: un sub-token ilegible invalida el check completo del
// binding, no se degrada a "rama limpia".
func DecodeToken(token string) (Config, error) {
	var doc json.RawMessage
	if err := jose.TokenHeader([]byte(token), clevisHeader, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	cfg, err := Parse(doc)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return cfg, nil
}

// FromLUKSToken extrae la configuración de binding desde un token LUKS2
// exportado (objeto {"type":"clevis","keyslots":[...],"jwe":{...}}).
// El objeto jwe del token es una serialización JSON (flattened); se
// re-serializa y se lee el header protegido igual que en DecodeToken.
func FromLUKSToken(raw []byte) (Config, error) {
	var tok struct {
		Type string          `json:"type"`
		JWE  json.RawMessage `json:"jwe"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Config{}, fmt.Errorf("%w: luks token: %v", ErrMalformed, err)
	}
	if tok.Type != "clevis" {
		return Config{}, fmt.Errorf("%w: unexpected token type %q", ErrMalformed, tok.Type)
	}
	if len(tok.JWE) == 0 {
		return Config{}, fmt.Errorf("%w: luks token without jwe", ErrMalformed)
	}

	var doc json.RawMessage
	if err := jose.TokenHeader(tok.JWE, clevisHeader, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return Parse(doc)
}
