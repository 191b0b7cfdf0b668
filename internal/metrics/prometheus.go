package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SynthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthesis_duration_seconds",
			Help:    "Synthesis request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	SynthesisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_requests_total",
			Help: "Total number of synthesis requests",
		},
		[]string{"strategy", "status"},
	)

	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_model_calls_total",
			Help: "Total model invocations",
		},
		[]string{"model", "role", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMCostCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_llm_cost_cents",
			Help: "Estimated LLM API cost in cents",
		},
		[]string{"model"},
	)

	QualityScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthesis_quality_score",
			Help:    "Final quality scores of synthesis results",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"strategy"},
	)

	JudgeFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_judge_fallbacks_total",
			Help: "Judge replies that failed to parse and resolved to fallback values",
		},
		[]string{"kind"},
	)

	VerificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_verification_failures_total",
			Help: "Results whose final quality fell below the requested minimum",
		},
		[]string{"strategy"},
	)

	CascadeRungs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synthesis_cascade_rungs",
			Help:    "Number of ladder rungs invoked per cascade request",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	CounterfactualSimulations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counterfactual_simulations_total",
			Help: "Counterfactual simulations by outcome",
		},
		[]string{"outcome"},
	)

	CounterfactualSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counterfactual_skipped_total",
			Help: "Counterfactual simulations skipped",
		},
		[]string{"reason"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(SynthesisDuration)
	prometheus.MustRegister(SynthesisTotal)
	prometheus.MustRegister(ModelCalls)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMCostCents)
	prometheus.MustRegister(QualityScore)
	prometheus.MustRegister(JudgeFallbacks)
	prometheus.MustRegister(VerificationFailures)
	prometheus.MustRegister(CascadeRungs)
	prometheus.MustRegister(CounterfactualSimulations)
	prometheus.MustRegister(CounterfactualSkipped)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
