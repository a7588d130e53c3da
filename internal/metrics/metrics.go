// Package metrics counts token grants, recovery retries and domain requests
// with Prometheus counters on a private registry. The CLI runs one command
// per process, so counts are exported in the node_exporter textfile format
// rather than served over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "velux"

// Recorder holds the counters. It satisfies velux.Metrics.
type Recorder struct {
	registry *prometheus.Registry

	grants   *prometheus.CounterVec
	retries  *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_grants_total",
			Help:      "Token grants issued against the authorization endpoint.",
		}, []string{"grant", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_retries_total",
			Help:      "Requests replayed after a recoverable token failure.",
		}, []string{"failure"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Domain requests by action and final result.",
		}, []string{"action", "result"}),
	}

	r.registry.MustRegister(r.grants, r.retries, r.requests)

	return r
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveGrant(grant, result string) {
	r.grants.WithLabelValues(grant, result).Inc()
}

func (r *Recorder) ObserveRetry(failure string) {
	r.retries.WithLabelValues(failure).Inc()
}

func (r *Recorder) ObserveRequest(action, result string) {
	r.requests.WithLabelValues(action, result).Inc()
}

// WriteTextfile writes the current counts to path atomically. The directory
// is created if needed.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: creating directory for %s: %w", path, err)
	}

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics: writing %s: %w", path, err)
	}

	return nil
}
