package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics del advertisement server. Paquete standalone para no
// acoplar los handlers HTTP al keystore (mismo criterio que con cualquier
// ciclo de imports entre capas).

var (
	AdvRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "advd_adv_requests_total",
		Help: "Requests al endpoint /adv, por resultado",
	}, []string{"result"})

	AdvSignLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "advd_adv_sign_latency_ms",
		Help:    "Latencia de firmado del advertisement en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	AdvCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "advd_adv_cache_hits_total",
		Help: "Advertisements servidos desde cache",
	})

	AdvCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "advd_adv_cache_misses_total",
		Help: "Advertisements re-firmados por cache miss",
	})
)

// Register registra las métricas de advd en el registry dado (o el default
// si es nil). Tolera registros duplicados.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		AdvRequests,
		AdvSignLatency,
		AdvCacheHits,
		AdvCacheMisses,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
