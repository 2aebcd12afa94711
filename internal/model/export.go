package model

import "time"

// SummaryExport is the top-level JSON structure for the cross-course summary.
type SummaryExport struct {
	ModelName   string          `json:"model_name"`
	GeneratedAt time.Time       `json:"generated_at"`
	Courses     []CourseSummary `json:"courses"`
	Overall     ResultSummary   `json:"overall"`
}

// CourseSummary holds the summary of one course's evaluated assessments.
type CourseSummary struct {
	CourseID   string        `json:"course_id"`
	CourseName string        `json:"course_name"`
	RunID      string        `json:"run_id"`
	Summary    ResultSummary `json:"summary"`
}

// ResultSummary aggregates a set of results. TotalAssessments and the
// score fields cover scored results only; FailedAnalyses counts the rest.
type ResultSummary struct {
	TotalAssessments       int                `json:"total_assessments"`
	FailedAnalyses         int                `json:"failed_analyses"`
	AverageAQSScore        float64            `json:"average_aqs_score"`
	TierDistribution       map[string]int     `json:"tier_distribution"`
	DifficultyDistribution map[string]int     `json:"difficulty_distribution"`
	CourseFitDistribution  map[string]int     `json:"course_fit_distribution"`
	AverageBloomsScores    map[string]float64 `json:"average_blooms_scores"`
	TotalWarnings          int                `json:"total_warnings"`
	UniqueWarnings         []string           `json:"unique_warnings"`
	TotalCostUSD           float64            `json:"total_cost_usd"`
	TotalTokens            int                `json:"total_tokens"`
}

// RunRecord is the stored summary of one (model, course) run.
type RunRecord struct {
	RunID            string    `json:"run_id"`
	ModelName        string    `json:"model_name"`
	CourseID         string    `json:"course_id"`
	CourseName       string    `json:"course_name"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	TotalAssessments int       `json:"total_assessments"`
	Evaluated        int       `json:"evaluated"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	TotalTokens      int       `json:"total_tokens"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
}
