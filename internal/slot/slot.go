// Package slot lee la metadata de binding cruda de un keyslot. Es el
// colaborador de I/O del checker: devuelve el token tal como está en el
// header del dispositivo y nada más; parsearlo es trabajo de pin.
package slot

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotBound indica que el slot pedido no tiene token de binding.
	ErrNotBound = errors.New("slot: not_bound")
)

// IsNotBound reporta si err es o envuelve ErrNotBound.
func IsNotBound(err error) bool {
	return errors.Is(err, ErrNotBound)
}

// Reader lee el token de binding (JSON LUKS2) de un slot de un dispositivo.
// Los errores que retorna ya son aptos para mostrarse al usuario.
type Reader interface {
	ReadToken(ctx context.Context, device string, slot int) ([]byte, error)
}

// errNoToken arma el error estándar para slot sin binding.
func errNoToken(device string, slot int) error {
	return fmt.Errorf("%w: %s slot %d has no clevis token", ErrNotBound, device, slot)
}
