package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_webhook_deliveries_total",
			Help: "Webhook notifications delivered successfully.",
		},
		[]string{"url"},
	)
	webhookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_webhook_failures_total",
			Help: "Webhook notification deliveries that failed.",
		},
		[]string{"url"},
	)
)

func init() {
	prometheus.MustRegister(webhookDeliveries)
	prometheus.MustRegister(webhookFailures)
}
