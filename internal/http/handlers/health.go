package handlers

import (
	"encoding/json"
	"net/http"
)

// Healthz responde el health check básico.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
