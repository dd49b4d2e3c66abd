// Package pin modela la metadata de binding de un keyslot: el esquema de
// recuperación ("pin") más su payload específico.
//
// El formato en disco es el objeto de configuración embebido en el header
// protegido del token del slot:
//
//	{"pin":"tang","tang":{"url":"http://...","adv":{"keys":[...]}}}
//	{"pin":"sss","sss":{"t":1,"jwe":["eyJ...","eyJ..."]}}
//
// En lugar de despachar por string en cada consumidor, Parse clasifica el
// documento en una variante cerrada (Scheme) que el walker matchea.
package pin

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed indica metadata de binding estructuralmente inválida:
	// sin pin, payload ausente, o payload que no matchea el esquema.
	ErrMalformed = errors.New("pin: malformed_binding_metadata")

	// ErrDecodeFailed indica que un sub-token de un binding sss no pudo
	// decodificarse a metadata anidada.
	ErrDecodeFailed = errors.New("pin: subtoken_decode_failed")
)

// IsMalformed reporta si err es o envuelve ErrMalformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// IsDecodeFailed reporta si err es o envuelve ErrDecodeFailed.
func IsDecodeFailed(err error) bool {
	return errors.Is(err, ErrDecodeFailed)
}

// Scheme es la variante cerrada de esquemas de binding que el walker conoce.
type Scheme int

const (
	// SchemeTang: clave custodiada por un key server remoto.
	SchemeTang Scheme = iota
	// SchemeSSS: secret sharing sobre sub-bindings anidados.
	SchemeSSS
	// SchemeOther: esquema desconocido, no sujeto a rotación remota.
	SchemeOther
)

func (s Scheme) String() string {
	switch s {
	case SchemeTang:
		return "tang"
	case SchemeSSS:
		return "sss"
	default:
		return "other"
	}
}

// TangPin es el payload del esquema tang: la URL del server y el
// advertisement completo registrado al momento del bind.
type TangPin struct {
	URL string          `json:"url"`
	Adv json.RawMessage `json:"adv"`
}

// SSSPin es el payload del esquema sss: el umbral y los sub-tokens JWE,
// cada uno con su propia metadata de binding en el header protegido.
type SSSPin struct {
	Threshold int      `json:"t"`
	JWE       []string `json:"jwe"`
}

// Config es la metadata de binding de un slot, ya clasificada.
type Config struct {
	// Scheme es la variante; Name conserva el nombre literal del pin
	// (relevante cuando Scheme == SchemeOther).
	Scheme Scheme
	Name   string

	// Exactamente uno de estos está poblado según Scheme.
	Tang *TangPin
	SSS  *SSSPin
}

// Parse clasifica un documento de metadata de binding.
//
// Esquemas desconocidos no son error: se clasifican como SchemeOther y el
// walker los reporta limpios (no hay claves remotas que rotar). Sí es error
// un documento sin pin o cuyo payload no matchea el esquema declarado.
func Parse(raw []byte) (Config, error) {
	var doc struct {
		Pin  string          `json:"pin"`
		Tang json.RawMessage `json:"tang"`
		SSS  json.RawMessage `json:"sss"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Pin == "" {
		return Config{}, fmt.Errorf("%w: missing pin", ErrMalformed)
	}

	switch doc.Pin {
	case "tang":
		if len(doc.Tang) == 0 {
			return Config{}, fmt.Errorf("%w: pin tang without payload", ErrMalformed)
		}
		var t TangPin
		if err := json.Unmarshal(doc.Tang, &t); err != nil {
			return Config{}, fmt.Errorf("%w: tang payload: %v", ErrMalformed, err)
		}
		return Config{Scheme: SchemeTang, Name: doc.Pin, Tang: &t}, nil

	case "sss":
		if len(doc.SSS) == 0 {
			return Config{}, fmt.Errorf("%w: pin sss without payload", ErrMalformed)
		}
		var s SSSPin
		if err := json.Unmarshal(doc.SSS, &s); err != nil {
			return Config{}, fmt.Errorf("%w: sss payload: %v", ErrMalformed, err)
		}
		return Config{Scheme: SchemeSSS, Name: doc.Pin, SSS: &s}, nil

	default:
		return Config{Scheme: SchemeOther, Name: doc.Pin}, nil
	}
}
