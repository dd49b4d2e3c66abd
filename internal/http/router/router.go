// Package router arma el mux de advd.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/rebind/internal/http/handlers"
	"github.com/dropDatabas3/rebind/internal/http/middlewares"
	"github.com/dropDatabas3/rebind/internal/tang"
)

// New construye el router con los endpoints públicos de advd:
// /adv, /adv/{thumbprint}, /healthz y /metrics.
func New(keys *tang.KeyStore) http.Handler {
	adv := &handlers.Adv{Keys: keys}

	r := chi.NewRouter()
	r.Get("/adv", adv.Get)
	r.Get("/adv/{thumbprint}", adv.GetByThumbprint)
	r.Get("/healthz", handlers.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return middlewares.Chain(r,
		middlewares.WithRequestID(),
		middlewares.WithLogging(),
	)
}
