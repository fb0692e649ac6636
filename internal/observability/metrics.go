// Package observability exposes Prometheus metrics for the workflow engine
// and the streaming layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors. A nil *Metrics is safe to call.
type Metrics struct {
	nodeTransitions *prometheus.CounterVec
	toolInvocations *prometheus.CounterVec
	stepRetries     *prometheus.CounterVec
	droppedEvents   prometheus.Counter
	activeStreams   prometheus.Gauge
	workflowRuns    *prometheus.CounterVec
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_node_transitions_total",
			Help: "Node invocations by node label.",
		}, []string{"node"}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		stepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "step_retries_total",
			Help: "Step retry attempts by tool.",
		}, []string{"tool"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_dropped_events_total",
			Help: "Events dropped due to slow subscribers.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_active_subscribers",
			Help: "Currently connected stream subscribers.",
		}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Completed workflow runs by final status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.nodeTransitions,
		m.toolInvocations,
		m.stepRetries,
		m.droppedEvents,
		m.activeStreams,
		m.workflowRuns,
	)
	return m
}

func (m *Metrics) ObserveNodeTransition(node string) {
	if m == nil {
		return
	}
	m.nodeTransitions.WithLabelValues(node).Inc()
}

func (m *Metrics) ObserveToolInvocation(tool string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.toolInvocations.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) ObserveStepRetry(tool string) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "none"
	}
	m.stepRetries.WithLabelValues(tool).Inc()
}

func (m *Metrics) ObserveDroppedEvent() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func (m *Metrics) ObserveWorkflowRun(status string) {
	if m == nil {
		return
	}
	m.workflowRuns.WithLabelValues(status).Inc()
}
