package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"result"},
	)

	ReservationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booking_reservation_duration_seconds",
			Help:    "Time spent holding the event lock for a reservation",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_acquisitions_total",
			Help: "Distributed lock acquisition attempts by outcome",
		},
		[]string{"result"},
	)

	Expirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_expirations_total",
			Help: "Pending bookings cancelled on expiry, by the path that cancelled them",
		},
		[]string{"source"},
	)

	ExpirationScheduling = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_expiration_schedule_total",
			Help: "Expiration task schedule and cancel operations by outcome",
		},
		[]string{"operation", "result"},
	)

	WebhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_notifications_total",
			Help: "Payment gateway notifications by type and outcome",
		},
		[]string{"type", "result"},
	)

	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets generated by booking confirmations",
		},
	)
)
