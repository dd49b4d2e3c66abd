// Package walk recorre la metadata de binding de un slot y computa el
// conjunto de claves stale: thumbprints registrados al momento del bind que
// el key server ya no publica.
//
// El recorrido es un dispatch recursivo sobre la variante del pin: tang corre
// el pipeline fetch → validate → compare; sss decodifica cada sub-token y
// recurre; esquemas desconocidos reportan limpio. Toda falla intermedia corta
// el check completo (fail-closed): "no pude verificar" jamás se reporta como
// "sin rotación".
package walk

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/rebind/internal/adv"
	"github.com/dropDatabas3/rebind/internal/jose"
	"github.com/dropDatabas3/rebind/internal/keyset"
	"github.com/dropDatabas3/rebind/internal/observability/logger"
	"github.com/dropDatabas3/rebind/internal/pin"
)

var (
	// ErrDepthExceeded indica que el árbol de sub-bindings supera la
	// profundidad máxima. La herramienta original recurre sin límite; el
	// bound explícito es una defensa contra metadata adversarial.
	ErrDepthExceeded = errors.New("walk: max_depth_exceeded")
)

// IsDepthExceeded reporta si err es o envuelve ErrDepthExceeded.
func IsDepthExceeded(err error) bool {
	return errors.Is(err, ErrDepthExceeded)
}

// DefaultMaxDepth es generoso: un binding real anida uno o dos niveles.
const DefaultMaxDepth = 16

// Walker ejecuta checks de rotación sobre metadata de binding.
type Walker struct {
	fetcher  *adv.Fetcher
	maxDepth int
}

// Option configura un Walker.
type Option func(*Walker)

// WithMaxDepth fija la profundidad máxima de recursión (<=0: default).
func WithMaxDepth(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.maxDepth = n
		}
	}
}

// New crea un Walker sobre el fetcher dado.
func New(fetcher *adv.Fetcher, opts ...Option) *Walker {
	w := &Walker{
		fetcher:  fetcher,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk computa el stale key set para la metadata dada.
// Retorna set vacío + nil error solo cuando el binding verificó limpio.
func (w *Walker) Walk(ctx context.Context, cfg pin.Config) (keyset.Set, error) {
	return w.walk(ctx, cfg, 0)
}

func (w *Walker) walk(ctx context.Context, cfg pin.Config, depth int) (keyset.Set, error) {
	if depth > w.maxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrDepthExceeded, depth)
	}

	switch cfg.Scheme {
	case pin.SchemeTang:
		return w.walkTang(ctx, cfg.Tang)
	case pin.SchemeSSS:
		return w.walkSSS(ctx, cfg.SSS, depth)
	default:
		// Esquema sin claves remotas: nada que rotar, no es error.
		logger.From(ctx).Debug("pin not subject to remote rotation", logger.Pin(cfg.Name))
		return keyset.New(), nil
	}
}

// walkTang corre el pipeline completo de un binding tang:
// recorded (metadata) vs current (advertisement verificado).
func (w *Walker) walkTang(ctx context.Context, t *pin.TangPin) (keyset.Set, error) {
	if t.URL == "" {
		return nil, fmt.Errorf("%w: tang pin without url", pin.ErrMalformed)
	}
	if len(t.Adv) == 0 {
		return nil, fmt.Errorf("%w: tang pin without recorded advertisement", pin.ErrMalformed)
	}

	recordedKeys, err := jose.ParseKeySet(t.Adv)
	if err != nil {
		return nil, fmt.Errorf("%w: recorded advertisement: %v", pin.ErrMalformed, err)
	}
	recorded, err := jose.Thumbprints(recordedKeys)
	if err != nil {
		return nil, fmt.Errorf("%w: recorded advertisement: %v", pin.ErrMalformed, err)
	}
	if recorded.Len() == 0 {
		return nil, fmt.Errorf("%w: recorded advertisement without keys", pin.ErrMalformed)
	}

	raw, err := w.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		return nil, err
	}
	currentKeys, err := adv.Validate(raw)
	if err != nil {
		return nil, err
	}
	current, err := jose.Thumbprints(currentKeys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adv.ErrAdvMalformed, err)
	}

	stale, err := keyset.Compare(current, recorded)
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Debug("tang binding checked",
		logger.URL(t.URL),
		logger.Count(stale.Len()),
	)
	return stale, nil
}

// walkSSS decodifica cada sub-token y recurre por rama. Las ramas son
// independientes (ningún estado mutable compartido) y corren concurrentes
// bajo un errgroup; la unión se arma recién después de Wait, en orden de
// índice, así el resultado no depende del orden de terminación. Una rama que
// falla cancela a las demás: no se reporta unión parcial.
func (w *Walker) walkSSS(ctx context.Context, s *pin.SSSPin, depth int) (keyset.Set, error) {
	if len(s.JWE) == 0 {
		return nil, fmt.Errorf("%w: sss pin without subtokens", pin.ErrMalformed)
	}

	results := make([]keyset.Set, len(s.JWE))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range s.JWE {
		g.Go(func() error {
			sub, err := pin.DecodeToken(token)
			if err != nil {
				return fmt.Errorf("subtoken %d: %w", i, err)
			}
			stale, err := w.walk(gctx, sub, depth+1)
			if err != nil {
				return fmt.Errorf("subtoken %d: %w", i, err)
			}
			results[i] = stale
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	union := keyset.New()
	for _, r := range results {
		union.Union(r)
	}
	return union, nil
}
