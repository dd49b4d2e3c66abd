// Package adv recupera y valida advertisements de claves: el documento JWS
// firmado con el que un key server publica su key set vigente.
package adv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout es el timeout por fetch. La herramienta original delega en
// los defaults del transporte (o sea, sin límite); acá el límite es explícito.
const DefaultTimeout = 30 * time.Second

// maxAdvBytes acota el body aceptado. Un advertisement real pesa ~2 KB.
const maxAdvBytes = 1 << 20

// Fetcher recupera advertisements vía HTTP(S) GET sobre <url>/adv.
// Sigue redirects, no reintenta y no cachea: cada check hace un fetch fresco.
type Fetcher struct {
	client *http.Client
}

// NewFetcher crea un Fetcher con el timeout dado (0 = DefaultTimeout).
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch recupera el advertisement publicado en <url>/adv.
// Cualquier falla de transporte, status no-2xx o body vacío es
// ErrUnreachable; el caller decide cómo reportarla, nunca se degrada a
// "sin rotación".
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	endpoint := strings.TrimRight(url, "/") + "/adv"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, endpoint, err)
	}
	req.Header.Set("Accept", "application/jose+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnreachable, endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAdvBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrUnreachable, endpoint, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrUnreachable, endpoint)
	}
	return body, nil
}
