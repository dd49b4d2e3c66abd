package adv

import "errors"

var (
	// ErrUnreachable indica que el advertisement no pudo recuperarse:
	// falla de transporte, status no exitoso o body vacío.
	ErrUnreachable = errors.New("adv: server_unreachable")

	// ErrAdvMalformed indica que el documento recuperado no es un
	// advertisement: JWS inválido, payload sin "keys" o key set vacío.
	ErrAdvMalformed = errors.New("adv: malformed_advertisement")

	// ErrNoVerifyKey indica que ninguna clave del advertisement declara la
	// operación "verify", con lo cual no hay contra qué validar la firma.
	ErrNoVerifyKey = errors.New("adv: no_verify_key")

	// ErrSignatureInvalid indica firma ausente o que no verifica contra
	// todas las claves de verificación declaradas.
	ErrSignatureInvalid = errors.New("adv: signature_invalid")
)

// IsUnreachable reporta si err es o envuelve ErrUnreachable.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsMalformed reporta si err es o envuelve ErrAdvMalformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrAdvMalformed)
}

// IsNoVerifyKey reporta si err es o envuelve ErrNoVerifyKey.
func IsNoVerifyKey(err error) bool {
	return errors.Is(err, ErrNoVerifyKey)
}

// IsSignatureInvalid reporta si err es o envuelve ErrSignatureInvalid.
func IsSignatureInvalid(err error) bool {
	return errors.Is(err, ErrSignatureInvalid)
}
