// Package metrics provides the Prometheus collectors of the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	flowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logibot_flows_started_total",
			Help: "Flows started by flow type",
		},
		[]string{"flow"},
	)
	flowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logibot_flows_completed_total",
			Help: "Flows that reached their terminal step by flow type",
		},
		[]string{"flow"},
	)
	flowsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logibot_flows_cancelled_total",
			Help: "Flows discarded before completion by flow type and reason",
		},
		[]string{"flow", "reason"},
	)
	validationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logibot_validation_rejections_total",
			Help: "Inputs rejected by a step validator",
		},
		[]string{"flow", "step"},
	)
	collaboratorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logibot_collaborator_failures_total",
			Help: "Failed calls to external collaborators",
		},
		[]string{"collaborator"},
	)
	sinkAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logibot_sink_appends_total",
			Help: "Submission sink appends by record kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	externalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logibot_external_call_duration_seconds",
			Help:    "Duration of external collaborator calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collaborator"},
	)
	inboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logibot_inbound_messages_total",
			Help: "Inbound messages by transport and disposition",
		},
		[]string{"transport", "disposition"},
	)
)

func FlowStarted(flow string) {
	flowsStarted.WithLabelValues(flow).Inc()
}

func FlowCompleted(flow string) {
	flowsCompleted.WithLabelValues(flow).Inc()
}

func FlowCancelled(flow, reason string) {
	flowsCancelled.WithLabelValues(flow, reason).Inc()
}

func ValidationRejected(flow, step string) {
	validationRejections.WithLabelValues(flow, step).Inc()
}

func CollaboratorFailed(collaborator string) {
	collaboratorFailures.WithLabelValues(collaborator).Inc()
}

func SinkAppend(kind string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	sinkAppends.WithLabelValues(kind, outcome).Inc()
}

func InboundMessage(transport, disposition string) {
	inboundMessages.WithLabelValues(transport, disposition).Inc()
}

// ObserveCall records how long a collaborator call took since start.
func ObserveCall(collaborator string, start time.Time) {
	externalCallDuration.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
