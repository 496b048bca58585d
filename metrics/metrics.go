// Package metrics declares the Prometheus collectors RAGMesh records into.
// Collectors are registered on the default registry at init; expose them
// with promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts handled queries by outcome (answered, fallback, failed, cancelled).
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_queries_total",
			Help: "Total number of handled queries",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragmesh_query_duration_seconds",
			Help:    "End-to-end query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RoutingSelections counts how often the router picked each specialist.
	RoutingSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_routing_selections_total",
			Help: "Total number of specialist selections by the router",
		},
		[]string{"agent_id"},
	)

	SpecialistResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_specialist_results_total",
			Help: "Specialist outcomes by agent and result",
		},
		[]string{"agent_id", "result"},
	)

	SpecialistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragmesh_specialist_duration_seconds",
			Help:    "Specialist retrieval + generation latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent_id"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_model_calls_total",
			Help: "Model calls by model config and result",
		},
		[]string{"model", "result"},
	)

	RetrievedPassages = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragmesh_retrieved_passages",
			Help:    "Passages returned per knowledge search",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
		[]string{"knowledge_id"},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_fallback_total",
			Help: "Queries answered by the fallback agent, by reason",
		},
		[]string{"reason"},
	)
)

// RecordSpecialist records one specialist outcome and its latency.
func RecordSpecialist(agentID, result string, seconds float64) {
	SpecialistResults.WithLabelValues(agentID, result).Inc()
	SpecialistDuration.WithLabelValues(agentID).Observe(seconds)
}
