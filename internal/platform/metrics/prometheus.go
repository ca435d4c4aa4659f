package metrics

import (
	"net/http"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager holds the custom Prometheus metrics of the cart service.
type MetricsManager struct {
	Registry             *prometheus.Registry
	CartMutationsTotal   *prometheus.CounterVec
	ReconciliationsTotal prometheus.Counter
	GatewayErrorsTotal   *prometheus.CounterVec
	OperationLatency     *prometheus.HistogramVec
}

// NewMetricsManager initializes and registers the cart service metrics on
// a dedicated registry.
func NewMetricsManager(serviceName string) *MetricsManager {
	registry := prometheus.NewRegistry()

	cartMutationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "cart_mutations_total",
		Help:      "Total number of cart mutations by operation and backend.",
	}, []string{"op", "backend"})

	reconciliationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "cart_reconciliations_total",
		Help:      "Total number of local-to-remote cart reconciliations.",
	})

	gatewayErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "gateway_errors_total",
		Help:      "Total number of remote cart gateway failures by operation.",
	}, []string{"op"})

	operationLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "operation_latency_seconds",
		Help:      "Latency of cart operations by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	registry.MustRegister(
		cartMutationsTotal,
		reconciliationsTotal,
		gatewayErrorsTotal,
		operationLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &MetricsManager{
		Registry:             registry,
		CartMutationsTotal:   cartMutationsTotal,
		ReconciliationsTotal: reconciliationsTotal,
		GatewayErrorsTotal:   gatewayErrorsTotal,
		OperationLatency:     operationLatency,
	}
}

// StartMetricsServer exposes the registry on /metrics. It blocks, so run
// it in a goroutine.
func StartMetricsServer(port string, appLogger logger.Logger, registry *prometheus.Registry) error {
	if port == "" {
		appLogger.Info("Prometheus metrics server port not configured, server will not start.")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	appLogger.Infof("Prometheus metrics server starting on port %s", port)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	return server.ListenAndServe()
}
