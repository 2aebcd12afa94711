package metrics

import (
	"math"
	"time"
)

const tokensPerUnit = 1_000_000

// TokenUsage is the token accounting reported for one or more service calls.
type TokenUsage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	ThinkingTokens int `json:"thinking_tokens"`
	CachedTokens   int `json:"cached_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// Normalize clamps negative counts to zero and fills a missing total.
func (u TokenUsage) Normalize() TokenUsage {
	u.InputTokens = max(u.InputTokens, 0)
	u.OutputTokens = max(u.OutputTokens, 0)
	u.ThinkingTokens = max(u.ThinkingTokens, 0)
	u.CachedTokens = max(u.CachedTokens, 0)
	u.TotalTokens = max(u.TotalTokens, 0)
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens + u.ThinkingTokens
	}
	return u
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:    u.InputTokens + o.InputTokens,
		OutputTokens:   u.OutputTokens + o.OutputTokens,
		ThinkingTokens: u.ThinkingTokens + o.ThinkingTokens,
		CachedTokens:   u.CachedTokens + o.CachedTokens,
		TotalTokens:    u.TotalTokens + o.TotalTokens,
	}
}

// Cost is the USD cost derived from a TokenUsage.
type Cost struct {
	InputUSD     float64 `json:"input_cost_usd"`
	OutputUSD    float64 `json:"output_cost_usd"`
	TotalUSD     float64 `json:"total_cost_usd"`
	PricingModel string  `json:"pricing_model"`
}

// TokenCost computes tokens/1e6 × price for a single token count.
func TokenCost(tokens int, pricePerMillion float64) float64 {
	if tokens <= 0 || pricePerMillion <= 0 {
		return 0
	}
	return float64(tokens) / tokensPerUnit * pricePerMillion
}

// CostOf prices a usage for the given model. Thinking and cached tokens are
// not billed separately.
func (p Pricing) CostOf(modelName string, u TokenUsage) Cost {
	rate := p.RateFor(modelName)
	in := TokenCost(u.InputTokens, rate.Input)
	out := TokenCost(u.OutputTokens, rate.Output)
	return Cost{
		InputUSD:     in,
		OutputUSD:    out,
		TotalUSD:     in + out,
		PricingModel: modelName,
	}
}

// CallCounts tracks how many service calls were made and how they ended.
type CallCounts struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Record counts one call.
func (c *CallCounts) Record(ok bool) {
	c.Total++
	if ok {
		c.Successful++
	} else {
		c.Failed++
	}
}

// EvaluationMetrics describes the service usage of a single assessment evaluation.
type EvaluationMetrics struct {
	AssessmentName  string     `json:"assessment_name"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationSeconds float64    `json:"duration_seconds"`
	ModelName       string     `json:"model_name"`
	TokenUsage      TokenUsage `json:"token_usage"`
	Cost            Cost       `json:"cost"`
	LLMCalls        CallCounts `json:"llm_calls"`
}

// NewEvaluationMetrics starts metrics for an assessment at the given time.
func NewEvaluationMetrics(assessmentName, modelName string, start time.Time) EvaluationMetrics {
	return EvaluationMetrics{
		AssessmentName: assessmentName,
		ModelName:      modelName,
		StartTime:      start,
	}
}

// AddCall folds the usage of one service call into the metrics.
func (m *EvaluationMetrics) AddCall(u TokenUsage, ok bool) {
	m.TokenUsage = m.TokenUsage.Add(u.Normalize())
	m.LLMCalls.Record(ok)
}

// Finish stamps the end time and derives duration and cost.
func (m *EvaluationMetrics) Finish(p Pricing, end time.Time) {
	m.EndTime = end
	m.DurationSeconds = roundTo(end.Sub(m.StartTime).Seconds(), 2)
	m.Cost = p.CostOf(m.ModelName, m.TokenUsage)
}

// CourseMetrics is the rollup of every assessment evaluated for one course
// in one run.
type CourseMetrics struct {
	RunID                 string              `json:"run_id"`
	CourseID              string              `json:"course_id"`
	CourseName            string              `json:"course_name"`
	ModelName             string              `json:"model_name"`
	StartTime             time.Time           `json:"start_time"`
	EndTime               time.Time           `json:"end_time"`
	TotalDurationSeconds  float64             `json:"total_duration_seconds"`
	TotalAssessments      int                 `json:"total_assessments"`
	SuccessfulEvaluations int                 `json:"successful_evaluations"`
	FailedEvaluations     int                 `json:"failed_evaluations"`
	SkippedAssessments    int                 `json:"skipped_assessments"`
	TokenUsage            TokenUsage          `json:"token_usage"`
	TotalInputCostUSD     float64             `json:"total_input_cost_usd"`
	TotalOutputCostUSD    float64             `json:"total_output_cost_usd"`
	TotalCostUSD          float64             `json:"total_cost_usd"`
	LLMCalls              CallCounts          `json:"llm_calls"`
	AssessmentMetrics     []EvaluationMetrics `json:"assessment_metrics"`
}

// NewCourseMetrics starts a course rollup.
func NewCourseMetrics(runID, courseID, courseName, modelName string, totalAssessments int, start time.Time) *CourseMetrics {
	return &CourseMetrics{
		RunID:             runID,
		CourseID:          courseID,
		CourseName:        courseName,
		ModelName:         modelName,
		StartTime:         start,
		TotalAssessments:  totalAssessments,
		AssessmentMetrics: []EvaluationMetrics{},
	}
}

// Add folds one assessment's metrics into the rollup and counts it as a
// successful evaluation.
func (c *CourseMetrics) Add(m EvaluationMetrics) {
	c.SuccessfulEvaluations++
	c.fold(m)
}

// AddFailure folds the metrics of an assessment whose analysis failed and
// counts it as a failed evaluation. Its tokens and cost still count.
func (c *CourseMetrics) AddFailure(m EvaluationMetrics) {
	c.FailedEvaluations++
	c.fold(m)
}

func (c *CourseMetrics) fold(m EvaluationMetrics) {
	c.TokenUsage = c.TokenUsage.Add(m.TokenUsage)
	c.TotalInputCostUSD += m.Cost.InputUSD
	c.TotalOutputCostUSD += m.Cost.OutputUSD
	c.TotalCostUSD += m.Cost.TotalUSD
	c.LLMCalls.Total += m.LLMCalls.Total
	c.LLMCalls.Successful += m.LLMCalls.Successful
	c.LLMCalls.Failed += m.LLMCalls.Failed
	c.AssessmentMetrics = append(c.AssessmentMetrics, m)
}

// AddSkipped counts an assessment skipped because a checkpoint lists it.
func (c *CourseMetrics) AddSkipped() { c.SkippedAssessments++ }

// Finish stamps the end of the batch. Duration is the wall-clock span of
// the whole batch, not the sum of per-assessment durations.
func (c *CourseMetrics) Finish(end time.Time) {
	c.EndTime = end
	c.TotalDurationSeconds = roundTo(end.Sub(c.StartTime).Seconds(), 2)
}

// Aggregate rolls a sequence of assessment metrics into course totals.
func Aggregate(runID, courseID, courseName, modelName string, items []EvaluationMetrics, start, end time.Time) *CourseMetrics {
	c := NewCourseMetrics(runID, courseID, courseName, modelName, len(items), start)
	for _, m := range items {
		c.Add(m)
	}
	c.Finish(end)
	return c
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
