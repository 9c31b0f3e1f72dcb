package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_checkins_total",
			Help: "Check-in attempts by outcome (accepted or rejection code)",
		},
		[]string{"outcome"},
	)

	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_checkout_cards_total",
			Help: "Cards submitted for checkout by result (released or ignored)",
		},
		[]string{"result"},
	)

	SessionsClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_sessions_closed_total",
			Help: "Visitor sessions closed after their last member checked out",
		},
	)

	ReservationConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_card_reservation_conflicts_total",
			Help: "Card reservations lost to a concurrent check-in",
		},
	)

	ReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_reconciled_total",
			Help: "Records repaired by reconciliation by kind",
		},
		[]string{"kind"}, // "session_closed", "session_reopened", "card_released", "member_checked_out"
	)

	CardPool = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gate_card_pool_cards",
			Help: "Visitor cards per status",
		},
		[]string{"status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
