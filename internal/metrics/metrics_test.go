package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTokenCost(t *testing.T) {
	tests := []struct {
		name   string
		tokens int
		price  float64
		want   float64
	}{
		{"zero tokens", 0, 0.10, 0},
		{"one million", 1_000_000, 0.40, 0.40},
		{"half million", 500_000, 2.00, 1.00},
		{"negative tokens", -10, 1.0, 0},
		{"free model", 1234, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenCost(tt.tokens, tt.price)
			if got != tt.want {
				t.Errorf("TokenCost(%d, %v) = %v, want %v", tt.tokens, tt.price, got, tt.want)
			}
		})
	}
}

func TestCostOfTotalIsSum(t *testing.T) {
	p := DefaultPricing()
	usages := []TokenUsage{
		{},
		{InputTokens: 1},
		{InputTokens: 12345, OutputTokens: 678},
		{InputTokens: 3_000_000, OutputTokens: 999_999, ThinkingTokens: 42},
	}
	for _, model := range []string{"gemini-2.5-flash", "gemini-3-pro-preview", "unknown-model"} {
		for _, u := range usages {
			c := p.CostOf(model, u)
			rate := p.RateFor(model)
			if c.InputUSD != float64(u.InputTokens)/1e6*rate.Input {
				t.Errorf("%s: input cost = %v", model, c.InputUSD)
			}
			if c.OutputUSD != float64(u.OutputTokens)/1e6*rate.Output {
				t.Errorf("%s: output cost = %v", model, c.OutputUSD)
			}
			if c.TotalUSD != c.InputUSD+c.OutputUSD {
				t.Errorf("%s: total %v != %v + %v", model, c.TotalUSD, c.InputUSD, c.OutputUSD)
			}
			if c.TotalUSD < 0 {
				t.Errorf("%s: negative cost %v", model, c.TotalUSD)
			}
		}
	}
}

func TestRateForUnknownModelFallsBack(t *testing.T) {
	p := DefaultPricing()
	if got := p.RateFor("no-such-model"); got != p.Default {
		t.Errorf("RateFor(unknown) = %+v, want default %+v", got, p.Default)
	}
	if got := p.RateFor("gemini-3-pro-preview"); got.Input != 2.00 || got.Output != 12.00 {
		t.Errorf("RateFor(gemini-3-pro-preview) = %+v", got)
	}
}

func TestLoadPricingOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	data := []byte("default:\n  input: 1.0\n  output: 2.0\nmodels:\n  local-llama:\n    input: 0\n    output: 0\n  gemini-2.0-flash:\n    input: 0.2\n    output: 0.8\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPricing(path)
	if err != nil {
		t.Fatalf("LoadPricing: %v", err)
	}
	if p.Default != (Rate{Input: 1.0, Output: 2.0}) {
		t.Errorf("default = %+v", p.Default)
	}
	if got := p.RateFor("gemini-2.0-flash"); got.Input != 0.2 {
		t.Errorf("override not applied: %+v", got)
	}
	if _, ok := p.Models["gemini-2.5-flash"]; !ok {
		t.Error("built-in models should survive an override")
	}
	if got := p.RateFor("local-llama"); got != (Rate{}) {
		t.Errorf("local-llama rate = %+v, want zero", got)
	}
}

func TestLoadPricingRejectsNegative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte("models:\n  bad:\n    input: -1\n    output: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPricing(path); err == nil {
		t.Error("expected error for negative rate")
	}
}

func TestNormalizeFillsTotal(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 20, ThinkingTokens: 5}.Normalize()
	if u.TotalTokens != 125 {
		t.Errorf("TotalTokens = %d, want 125", u.TotalTokens)
	}
	u = TokenUsage{InputTokens: -3, TotalTokens: 7}.Normalize()
	if u.InputTokens != 0 || u.TotalTokens != 7 {
		t.Errorf("Normalize = %+v", u)
	}
}

func TestEvaluationMetricsFinish(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewEvaluationMetrics("Quiz 1", "gemini-2.0-flash", start)
	m.AddCall(TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000, TotalTokens: 1_500_000}, true)
	m.Finish(DefaultPricing(), start.Add(1500*time.Millisecond))

	if m.DurationSeconds != 1.5 {
		t.Errorf("DurationSeconds = %v, want 1.5", m.DurationSeconds)
	}
	if m.LLMCalls != (CallCounts{Total: 1, Successful: 1}) {
		t.Errorf("LLMCalls = %+v", m.LLMCalls)
	}
	if m.Cost.InputUSD != 0.10 || m.Cost.OutputUSD != 0.20 {
		t.Errorf("Cost = %+v", m.Cost)
	}
	if m.Cost.PricingModel != "gemini-2.0-flash" {
		t.Errorf("PricingModel = %q", m.Cost.PricingModel)
	}
}

func TestAggregate(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	p := DefaultPricing()

	var items []EvaluationMetrics
	for i, u := range []TokenUsage{
		{InputTokens: 1000, OutputTokens: 200, TotalTokens: 1200},
		{InputTokens: 3000, OutputTokens: 100, ThinkingTokens: 50, TotalTokens: 3150},
	} {
		m := NewEvaluationMetrics("a", "gemini-2.5-flash", start)
		m.AddCall(u, i == 0)
		m.Finish(p, start.Add(time.Second))
		items = append(items, m)
	}

	c := Aggregate("run", "do_1", "Course", "gemini-2.5-flash", items, start, start.Add(10*time.Second))

	var wantTokens int
	var wantCost float64
	for _, m := range items {
		wantTokens += m.TokenUsage.TotalTokens
		wantCost += m.Cost.TotalUSD
	}
	if c.TokenUsage.TotalTokens != wantTokens {
		t.Errorf("TotalTokens = %d, want %d", c.TokenUsage.TotalTokens, wantTokens)
	}
	if c.TotalCostUSD != wantCost {
		t.Errorf("TotalCostUSD = %v, want %v", c.TotalCostUSD, wantCost)
	}
	if c.LLMCalls != (CallCounts{Total: 2, Successful: 1, Failed: 1}) {
		t.Errorf("LLMCalls = %+v", c.LLMCalls)
	}
	if c.TotalDurationSeconds != 10 {
		t.Errorf("TotalDurationSeconds = %v, want wall-clock 10", c.TotalDurationSeconds)
	}
	if c.SuccessfulEvaluations != 2 {
		t.Errorf("SuccessfulEvaluations = %d", c.SuccessfulEvaluations)
	}
}

func TestAggregateEmpty(t *testing.T) {
	start := time.Now()
	c := Aggregate("run", "do_1", "", "m", nil, start, start)
	if c.TokenUsage != (TokenUsage{}) || c.TotalCostUSD != 0 || c.LLMCalls != (CallCounts{}) {
		t.Errorf("empty aggregate not zero: %+v", c)
	}
	if c.AssessmentMetrics == nil {
		t.Error("AssessmentMetrics should be an empty slice, not nil")
	}
}

func TestCollectorsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	m := EvaluationMetrics{
		ModelName:  "m1",
		TokenUsage: TokenUsage{InputTokens: 10, OutputTokens: 5},
		Cost:       Cost{TotalUSD: 0.5},
		LLMCalls:   CallCounts{Total: 1, Successful: 1},
	}
	c.Observe("Good", m)
	c.Observe("Good", m)
	c.ObserveSkip("m1")

	if got := testutil.ToFloat64(c.Evaluations.WithLabelValues("m1", "Good")); got != 2 {
		t.Errorf("evaluations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Tokens.WithLabelValues("m1", "input")); got != 20 {
		t.Errorf("input tokens = %v, want 20", got)
	}
	if got := testutil.ToFloat64(c.CostUSD.WithLabelValues("m1")); got != 1.0 {
		t.Errorf("cost = %v, want 1.0", got)
	}
	if got := testutil.ToFloat64(c.Skipped.WithLabelValues("m1")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}

	var nilCollectors *Collectors
	nilCollectors.Observe("Good", m)
	nilCollectors.ObserveSkip("m1")
}

func TestCourseMetricsFailureAndSkip(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCourseMetrics("run", "do_1", "Course", "m", 3, start)

	ok := NewEvaluationMetrics("a", "m", start)
	ok.AddCall(TokenUsage{InputTokens: 100, OutputTokens: 10}, true)
	failed := NewEvaluationMetrics("b", "m", start)
	failed.AddCall(TokenUsage{InputTokens: 50}, false)

	c.Add(ok)
	c.AddFailure(failed)
	c.AddSkipped()
	c.Finish(start.Add(3 * time.Second))

	if c.SuccessfulEvaluations != 1 || c.FailedEvaluations != 1 || c.SkippedAssessments != 1 {
		t.Errorf("counts = %d/%d/%d", c.SuccessfulEvaluations, c.FailedEvaluations, c.SkippedAssessments)
	}
	if c.TokenUsage.InputTokens != 150 {
		t.Errorf("failed call tokens should still count, got %d", c.TokenUsage.InputTokens)
	}
	if c.LLMCalls.Total != 2 || c.LLMCalls.Failed != 1 {
		t.Errorf("calls = %+v", c.LLMCalls)
	}
	if len(c.AssessmentMetrics) != 2 {
		t.Errorf("assessment metrics = %d", len(c.AssessmentMetrics))
	}
	if c.TotalDurationSeconds != 3 {
		t.Errorf("duration = %v", c.TotalDurationSeconds)
	}
}
