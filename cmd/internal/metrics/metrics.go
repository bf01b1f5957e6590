// Package metrics exposes auth counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fumohouse"

// Auth counts session and CSRF outcomes. A nil *Auth is a valid no-op.
type Auth struct {
	reg *prometheus.Registry

	sessionResolved   *prometheus.CounterVec
	sessionRotated    prometheus.Counter
	sessionsPurged    prometheus.Counter
	sessionPurgeFails prometheus.Counter
	csrfChecked       *prometheus.CounterVec
}

// NewAuth registers the auth collectors plus Go and process collectors on a
// fresh registry.
func NewAuth() *Auth {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Auth{
		reg: reg,
		sessionResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "resolved_total",
			Help:      "Session resolutions by outcome.",
		}, []string{"outcome"}),
		sessionRotated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rotated_total",
			Help:      "Session tokens rotated after the renewal threshold.",
		}),
		sessionsPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "purged_total",
			Help:      "Expired sessions deleted by the purger.",
		}),
		sessionPurgeFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "purge_failures_total",
			Help:      "Purge sweeps that failed.",
		}),
		csrfChecked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csrf",
			Name:      "checks_total",
			Help:      "CSRF verifications by result.",
		}, []string{"result"}),
	}
}

func (a *Auth) SessionResolved(outcome string) {
	if a == nil {
		return
	}
	a.sessionResolved.WithLabelValues(outcome).Inc()
}

func (a *Auth) SessionRotated() {
	if a == nil {
		return
	}
	a.sessionRotated.Inc()
}

func (a *Auth) SessionsPurged(n int64) {
	if a == nil || n <= 0 {
		return
	}
	a.sessionsPurged.Add(float64(n))
}

func (a *Auth) SessionPurgeFailed() {
	if a == nil {
		return
	}
	a.sessionPurgeFails.Inc()
}

func (a *Auth) CSRFChecked(result string) {
	if a == nil {
		return
	}
	a.csrfChecked.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry, or nil.
func (a *Auth) Registry() *prometheus.Registry {
	if a == nil {
		return nil
	}
	return a.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (a *Auth) Handler() http.Handler {
	if a == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{Registry: a.reg})
}
