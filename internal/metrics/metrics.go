package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_payments_processed_total",
		Help: "Payment orchestrations by method and terminal status.",
	}, []string{"method", "status"})

	RefundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_refunds_processed_total",
		Help: "Refund orchestrations by terminal status.",
	}, []string{"status"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_webhook_events_total",
		Help: "Inbound webhook deliveries by provider and outcome.",
	}, []string{"provider", "result"})

	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_provider_call_duration_seconds",
		Help:    "Latency of outbound provider calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op"})
)
