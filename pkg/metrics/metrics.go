// Package metrics counts deployments made by knitfleet.
package metrics

import (
	"net/http"
	"sync"

	"github.com/opst/knitfleet/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "knitfleet"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	// remote resources are left as they were.
	ResultSkipped = "skipped"
)

var (
	deployCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploy_total",
			Help:      "Count of applying manifests of components to clusters.",
		},
		[]string{"kind", "result"},
	)
	deleteCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_total",
			Help:      "Count of deleting manifests of components from clusters.",
		},
		[]string{"kind", "result"},
	)
	syncCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_components_total",
			Help:      "Count of components processed by instance sync.",
		},
		[]string{"result"},
	)
)

// Registry holds metrics of knitfleet and the process.
var Registry = prometheus.NewRegistry()

var registerMetrics sync.Once

// Register all metrics to Registry.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(deployCounter)
		Registry.MustRegister(deleteCounter)
		Registry.MustRegister(syncCounter)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves metrics in Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

func RecordDeploy(kind domain.Kind, ok bool) {
	deployCounter.WithLabelValues(string(kind), result(ok)).Inc()
}

// RecordDelete counts deletion. result is one of ResultSuccess, ResultFailure or ResultSkipped.
func RecordDelete(kind domain.Kind, result string) {
	deleteCounter.WithLabelValues(string(kind), result).Inc()
}

func RecordSync(ok bool) {
	syncCounter.WithLabelValues(result(ok)).Inc()
}
