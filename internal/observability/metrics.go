package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ListingsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_matching", Name: "listings_created_total", Help: "Total listings created"})
	SearchesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_matching", Name: "searches_total", Help: "Total listing searches"})

	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freight_matching", Name: "booking_transitions_total", Help: "Booking lifecycle transitions by target status"},
		[]string{"to"},
	)
	InvalidTransitions = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_matching", Name: "invalid_transitions_total", Help: "Rejected booking transitions"})

	EscrowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freight_matching", Name: "escrow_transitions_total", Help: "Escrow transitions by target status"},
		[]string{"to"},
	)
	EscrowHeldAmount = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "freight_matching", Name: "escrow_held_rupees", Help: "Sum of rupees currently held in escrow"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freight_matching", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "freight_matching",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
