// Package handlers implementa los endpoints HTTP de advd.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/rebind/internal/keyset"
	"github.com/dropDatabas3/rebind/internal/metrics"
	"github.com/dropDatabas3/rebind/internal/observability/logger"
	"github.com/dropDatabas3/rebind/internal/tang"
)

const advContentType = "application/jose+json"

// Adv sirve el advertisement firmado.
type Adv struct {
	Keys *tang.KeyStore
}

// Get maneja GET /adv: el advertisement completo, firmado por todas las
// claves de firma.
func (h *Adv) Get(w http.ResponseWriter, r *http.Request) {
	signed, err := h.Keys.SignedAdv()
	if err != nil {
		metrics.AdvRequests.WithLabelValues("error").Inc()
		logger.From(r.Context()).Error("sign advertisement", logger.Err(err))
		http.Error(w, "advertisement unavailable", http.StatusInternalServerError)
		return
	}
	metrics.AdvRequests.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", advContentType)
	_, _ = w.Write(signed)
}

// GetByThumbprint maneja GET /adv/{thumbprint}: igual que /adv, pero 404 si
// el thumbprint no corresponde a una clave de firma publicada. Los clientes
// lo usan para pinnear una clave de confianza conocida.
func (h *Adv) GetByThumbprint(w http.ResponseWriter, r *http.Request) {
	tp := keyset.Thumbprint(chi.URLParam(r, "thumbprint"))

	sigs, err := h.Keys.SigThumbprints()
	if err != nil {
		metrics.AdvRequests.WithLabelValues("error").Inc()
		logger.From(r.Context()).Error("list signing keys", logger.Err(err))
		http.Error(w, "advertisement unavailable", http.StatusInternalServerError)
		return
	}
	if !sigs.Contains(tp) {
		metrics.AdvRequests.WithLabelValues("not_found").Inc()
		http.Error(w, "unknown signing key", http.StatusNotFound)
		return
	}
	h.Get(w, r)
}
