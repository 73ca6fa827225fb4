package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CycleTransitions counts state-machine transitions by kind and outcome.
var CycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rosca_cycle_transitions_total",
	Help: "Payment cycle transitions grouped by transition and result.",
}, []string{"transition", "result"})

// PaymentVerifications counts mark-paid/mark-unpaid actions.
var PaymentVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rosca_payment_verifications_total",
	Help: "Payment status mutations grouped by action.",
}, []string{"action"})

// NotificationsSent counts persisted notifications by type.
var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rosca_notifications_total",
	Help: "Notifications recorded, grouped by type.",
}, []string{"type"})
