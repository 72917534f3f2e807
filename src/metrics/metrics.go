package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkflowOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exceptions_workflow_operations_total",
		Help: "Total number of workflow operations grouped by operation and outcome kind",
	}, []string{"operation", "result"})
	HistoryWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exceptions_history_write_failures_total",
		Help: "Total number of history entries that could not be persisted after a successful mutation",
	}, []string{"action"})
	SLASweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exceptions_sla_sweeps_total",
		Help: "Total number of SLA breach sweeps grouped by outcome",
	}, []string{"result"})
	SLABreachesFlagged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exceptions_sla_breaches_flagged_total",
		Help: "Total number of exceptions flagged as SLA breached by the sweeper",
	})
	EscalationNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exceptions_escalation_notifications_total",
		Help: "Total number of escalation webhook deliveries grouped by outcome",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(WorkflowOperations)
	prometheus.MustRegister(HistoryWriteFailures)
	prometheus.MustRegister(SLASweeps)
	prometheus.MustRegister(SLABreachesFlagged)
	prometheus.MustRegister(EscalationNotifications)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
