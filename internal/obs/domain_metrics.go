package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// NotificationTotal counts inbound payment notification verification outcomes.
	NotificationTotal *prometheus.CounterVec
	// GatewayRequestTotal counts outbound gateway API calls by endpoint and outcome.
	GatewayRequestTotal *prometheus.CounterVec
	// GatewayRequestLatency records outbound gateway call latency in milliseconds.
	GatewayRequestLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of hosted-checkout attempts by outcome.",
		}, []string{"result"})
		NotificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_notification_total",
			Help:      "Count of payment notification verification outcomes.",
		}, []string{"result"})
		GatewayRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_request_total",
			Help:      "Count of outbound payment gateway requests.",
		}, []string{"endpoint", "result"})
		GatewayRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_ms",
			Help:      "Latency of outbound payment gateway requests in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"endpoint"})

		for _, c := range []prometheus.Collector{CheckoutTotal, NotificationTotal, GatewayRequestTotal, GatewayRequestLatency} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(fmt.Errorf("register domain metric: %w", err))
				}
			}
		}
	})
}
