package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	phaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guesswho_phase_transitions_total",
			Help: "Total number of committed phase transitions",
		},
		[]string{"event"},
	)

	storeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guesswho_store_retries_total",
			Help: "Total number of store calls retried after a transient failure",
		},
		[]string{"operation"},
	)
)
