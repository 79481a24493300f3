package analyze

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/phobologic/codegraph/internal/model"
)

var (
	// analysesTotal counts finished analyses.
	// Labels: outcome (ok, too_large, bad_archive, canceled, error)
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codegraph",
		Name:      "analyses_total",
		Help:      "Total analyses by outcome",
	}, []string{"outcome"})

	// filesSkippedTotal counts source files dropped during extraction.
	// Labels: reason (syntax, no_script, error)
	filesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codegraph",
		Name:      "files_skipped_total",
		Help:      "Source files skipped during extraction by reason",
	}, []string{"reason"})

	// filesPartialTotal counts script files whose syntax tree had errors but
	// still yielded facts.
	filesPartialTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codegraph",
		Name:      "files_partial_total",
		Help:      "Source files extracted from a syntax tree with errors",
	})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codegraph",
		Name:      "analysis_duration_seconds",
		Help:      "Wall time of a complete analysis",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// graphEdgesTotal counts emitted edges.
	// Labels: kind (decl, calls, imports)
	graphEdgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codegraph",
		Name:      "graph_edges_total",
		Help:      "Total graph edges emitted by kind",
	}, []string{"kind"})
)

// Outcome labels for analysesTotal.
const (
	outcomeOK         = "ok"
	outcomeTooLarge   = "too_large"
	outcomeBadArchive = "bad_archive"
	outcomeCanceled   = "canceled"
	outcomeError      = "error"
)

func recordEdges(res *model.Result) {
	graphEdgesTotal.WithLabelValues(string(model.DeclaresEdge)).Add(float64(res.Summary.Functions))
	graphEdgesTotal.WithLabelValues(string(model.CallsEdge)).Add(float64(res.Summary.CallEdges))
	graphEdgesTotal.WithLabelValues(string(model.ImportsEdge)).Add(float64(res.Summary.ImportEdges))
}
