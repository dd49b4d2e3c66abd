package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar HTTP (advd).

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// Campos estándar del dominio (checker).

// Device crea un campo para el block device bajo chequeo.
func Device(v string) zap.Field {
	return zap.String("device", v)
}

// Slot crea un campo para el keyslot.
func Slot(v int) zap.Field {
	return zap.Int("slot", v)
}

// Pin crea un campo para el nombre del esquema de binding.
func Pin(v string) zap.Field {
	return zap.String("pin", v)
}

// URL crea un campo para la URL del key server.
func URL(v string) zap.Field {
	return zap.String("url", v)
}

// Thumbprint crea un campo para un thumbprint de clave.
func Thumbprint(v string) zap.Field {
	return zap.String("thumbprint", v)
}

// Depth crea un campo para la profundidad de recursión del walker.
func Depth(v int) zap.Field {
	return zap.Int("depth", v)
}

// Campos genéricos.

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}
