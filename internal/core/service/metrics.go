package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ledgerOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flashdeal_ledger_outcomes_total",
			Help: "Ledger operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	ledgerLatency = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "flashdeal_ledger_latency_ms",
			Help:       "The latency quantiles for ledger operations",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"op"},
	)

	ledgerDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flashdeal_ledger_drift_units",
			Help: "Last observed difference between durable and ledger stock",
		},
		[]string{"product"},
	)
)

func observeLedger(op string, start time.Time, outcome string) {
	ledgerOutcomes.WithLabelValues(op, outcome).Inc()
	ledgerLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}

func init() {
	prometheus.MustRegister(ledgerOutcomes)
	prometheus.MustRegister(ledgerLatency)
	prometheus.MustRegister(ledgerDrift)
}
