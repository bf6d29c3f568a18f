package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiftbus_bookings_created_total",
		Help: "The total number of bookings created with seats held",
	})
	SeatConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiftbus_seat_conflicts_total",
		Help: "The total number of booking attempts rejected by a seat conflict",
	})
	BookingsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swiftbus_bookings_cancelled_total",
		Help: "The total number of cancelled bookings by reason",
	}, []string{"reason"})
	HoldsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiftbus_holds_expired_total",
		Help: "The total number of bookings cancelled because the seat hold lapsed",
	})

	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swiftbus_payments_total",
		Help: "The total number of payment attempts by method and outcome",
	}, []string{"method", "outcome"})
	PaymentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swiftbus_payment_gateway_duration_seconds",
		Help:    "Time taken by the payment gateway to answer a charge",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
	Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swiftbus_refunds_total",
		Help: "The total number of refunds by outcome",
	}, []string{"outcome"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swiftbus_search_duration_seconds",
		Help:    "Time taken to answer a schedule search",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swiftbus_http_requests_total",
		Help: "The total number of HTTP requests by route and status",
	}, []string{"method", "route", "status"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swiftbus_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
