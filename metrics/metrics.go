// Package metrics exposes Prometheus metrics on a dedicated listener,
// separate from the API server.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves /metrics for one named service.
type MetricsServer struct {
	srv      *http.Server
	registry *prometheus.Registry

	// LedgerActions counts confirmed and failed mutating ledger calls.
	LedgerActions *prometheus.CounterVec

	// Resyncs counts registry reconciliations by outcome.
	Resyncs *prometheus.CounterVec
}

// New creates a metrics server listening on addr. Dashes in name are mapped
// to underscores to form a valid metric namespace.
func New(name, addr string) (*MetricsServer, error) {
	name = strings.ReplaceAll(name, "-", "_")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	m := &MetricsServer{
		registry: registry,
		LedgerActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: name,
			Name:      "ledger_actions_total",
			Help:      "Mutating ledger calls by verb and outcome.",
		}, []string{"verb", "outcome"}),
		Resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: name,
			Name:      "resyncs_total",
			Help:      "Registry resynchronizations by outcome.",
		}, []string{"outcome"}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m.srv = &http.Server{Addr: addr, Handler: mux}

	return m, nil
}

// ListenAndServe blocks serving the metrics endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
