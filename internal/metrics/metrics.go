package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusHandlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiethours_bus_handler_failures_total",
		Help: "Total number of event bus handler failures by topic and reason",
	}, []string{"topic", "reason"})

	RuleMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiethours_rule_mutations_total",
		Help: "Total number of rule store mutations by operation and result",
	}, []string{"op", "result"})

	SyncCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiethours_sync_commands_total",
		Help: "Total number of backend commands by type and result",
	}, []string{"type", "result"})

	SyncPushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiethours_sync_pushes_total",
		Help: "Total number of backend pushes by topic and result",
	}, []string{"topic", "result"})

	SyncState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quiethours_sync_state",
		Help: "Current sync bridge state (1 for the active state)",
	}, []string{"state"})

	DuplicateDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiethours_duplicate_deliveries_total",
		Help: "Total number of backend pushes dropped as redelivered duplicates",
	})
)

func IncBusHandlerFailure(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	BusHandlerFailuresTotal.WithLabelValues(topic, reason).Inc()
}

func IncRuleMutation(op, result string) {
	RuleMutationsTotal.WithLabelValues(op, result).Inc()
}

func IncSyncCommand(typ, result string) {
	SyncCommandsTotal.WithLabelValues(typ, result).Inc()
}

func IncSyncPush(topic, result string) {
	if topic == "" {
		topic = "unknown"
	}
	SyncPushesTotal.WithLabelValues(topic, result).Inc()
}

// SetSyncState выставляет 1 для активного состояния и 0 для остальных
func SetSyncState(active string, all []string) {
	for _, state := range all {
		value := 0.0
		if state == active {
			value = 1
		}
		SyncState.WithLabelValues(state).Set(value)
	}
}
