package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsTotal counts executed actions by type and terminal outcome
	// (completed, rejected, failed).
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reward_actions_total",
		Help: "Total financial actions executed, labeled by action and outcome",
	}, []string{"action", "outcome"})

	// ReplaysTotal counts duplicate submissions answered from the
	// idempotency store without side effects.
	ReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reward_idempotent_replays_total",
		Help: "Duplicate submissions served as replays",
	}, []string{"action"})

	// ConflictsTotal counts conditional-update losses on the balance
	// ledger. A sustained rate here means hot contention, not errors.
	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reward_balance_conflicts_total",
		Help: "Conditional balance updates that lost to a concurrent writer",
	}, []string{"action"})

	// InlineFallbackTotal counts actions executed synchronously because
	// the queue or workers were unavailable.
	InlineFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reward_inline_fallback_total",
		Help: "Actions executed inline instead of through the queue",
	})

	// QueueDepth is the advisory dispatch queue depth observed at the
	// most recent enqueue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reward_queue_depth",
		Help: "Dispatch queue depth observed at enqueue time",
	})

	// ActionDuration is the end-to-end execution latency of the
	// guard/compute/apply/record sequence.
	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reward_action_duration_seconds",
		Help:    "Latency of action execution",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"action"})
)
