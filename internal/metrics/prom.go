package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors exposes evaluation progress as Prometheus counters.
type Collectors struct {
	Evaluations *prometheus.CounterVec
	Skipped     *prometheus.CounterVec
	Calls       *prometheus.CounterVec
	Tokens      *prometheus.CounterVec
	CostUSD     *prometheus.CounterVec
}

// NewCollectors creates the counters and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqs_evaluations_total",
				Help: "Assessments evaluated, by model and quality tier",
			},
			[]string{"model", "tier"},
		),
		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqs_assessments_skipped_total",
				Help: "Assessments skipped because a checkpoint lists them as completed",
			},
			[]string{"model"},
		),
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqs_analysis_calls_total",
				Help: "Analysis service calls, by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqs_tokens_total",
				Help: "Tokens consumed, by model and kind",
			},
			[]string{"model", "kind"},
		),
		CostUSD: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqs_cost_usd_total",
				Help: "Derived analysis cost in USD",
			},
			[]string{"model"},
		),
	}
	reg.MustRegister(c.Evaluations, c.Skipped, c.Calls, c.Tokens, c.CostUSD)
	return c
}

// Observe records one finished assessment evaluation. A nil receiver is a no-op.
func (c *Collectors) Observe(tier string, m EvaluationMetrics) {
	if c == nil {
		return
	}
	c.Evaluations.WithLabelValues(m.ModelName, tier).Inc()
	c.Calls.WithLabelValues(m.ModelName, "success").Add(float64(m.LLMCalls.Successful))
	c.Calls.WithLabelValues(m.ModelName, "failure").Add(float64(m.LLMCalls.Failed))
	c.Tokens.WithLabelValues(m.ModelName, "input").Add(float64(m.TokenUsage.InputTokens))
	c.Tokens.WithLabelValues(m.ModelName, "output").Add(float64(m.TokenUsage.OutputTokens))
	c.Tokens.WithLabelValues(m.ModelName, "thinking").Add(float64(m.TokenUsage.ThinkingTokens))
	c.Tokens.WithLabelValues(m.ModelName, "cached").Add(float64(m.TokenUsage.CachedTokens))
	c.CostUSD.WithLabelValues(m.ModelName).Add(m.Cost.TotalUSD)
}

// ObserveSkip records an assessment skipped by checkpoint. A nil receiver is a no-op.
func (c *Collectors) ObserveSkip(modelName string) {
	if c == nil {
		return
	}
	c.Skipped.WithLabelValues(modelName).Inc()
}
