package model

import (
	"slices"

	"github.com/pavelanni/aqs/internal/metrics"
)

// Quality tiers, from best to worst.
const (
	TierExcellent        = "Excellent"
	TierGood             = "Good"
	TierSatisfactory     = "Satisfactory"
	TierNeedsImprovement = "Needs Improvement"
	TierPoor             = "Poor"
)

// Confidence flags attached to results.
const (
	FlagLowQuestionCount       = "Low question count"
	FlagMissingQuestionDetails = "Missing question details"
	FlagPartialQuestionSet     = "Partial question set"
	FlagStandalone             = "Standalone assessment - course fit not evaluated"
	FlagAnalysisFailed         = "Analysis service call failed - default scores used"
	FlagUnparseableResponse    = "Analysis response not parseable - default scores used"
)

// CourseFitNotApplicable is the course fit status of standalone assessments.
const CourseFitNotApplicable = "Not Applicable"

// DifficultyScores are the four 0-10 difficulty sub-scores.
type DifficultyScores struct {
	ComplexityScore             float64 `json:"complexity_score"`
	ComplexityRationale         string  `json:"complexity_rationale"`
	LanguageDifficultyScore     float64 `json:"language_difficulty_score"`
	LanguageDifficultyRationale string  `json:"language_difficulty_rationale"`
	CognitiveEffortScore        float64 `json:"cognitive_effort_score"`
	CognitiveEffortRationale    string  `json:"cognitive_effort_rationale"`
	CourseAlignmentScore        float64 `json:"course_alignment_score"`
	CourseAlignmentRationale    string  `json:"course_alignment_rationale"`
}

// BloomsScores are the six 0-100 taxonomy category scores.
type BloomsScores struct {
	Remember   float64 `json:"remember"`
	Understand float64 `json:"understand"`
	Apply      float64 `json:"apply"`
	Analyze    float64 `json:"analyze"`
	Evaluate   float64 `json:"evaluate"`
	Create     float64 `json:"create"`
}

// BloomsRationales explain each taxonomy category score.
type BloomsRationales struct {
	Remember   string `json:"remember"`
	Understand string `json:"understand"`
	Apply      string `json:"apply"`
	Analyze    string `json:"analyze"`
	Evaluate   string `json:"evaluate"`
	Create     string `json:"create"`
}

// QuestionClassification is the taxonomy level assigned to one question.
type QuestionClassification struct {
	QuestionNumber int    `json:"question_number"`
	BloomsLevel    string `json:"blooms_level"`
	Justification  string `json:"justification"`
}

// CourseFitDetails break down the course fit score.
type CourseFitDetails struct {
	ContentCoverageScore               float64  `json:"content_coverage_score"`
	ContentCoverageRationale           string   `json:"content_coverage_rationale"`
	ObjectiveAlignmentScore            float64  `json:"objective_alignment_score"`
	ObjectiveAlignmentRationale        string   `json:"objective_alignment_rationale"`
	DifficultyAppropriatenessScore     float64  `json:"difficulty_appropriateness_score"`
	DifficultyAppropriatenessRationale string   `json:"difficulty_appropriateness_rationale"`
	CompletenessScore                  float64  `json:"completeness_score"`
	CompletenessRationale              string   `json:"completeness_rationale"`
	AlignmentDetails                   string   `json:"alignment_details"`
	ImprovementSuggestions             []string `json:"improvement_suggestions"`
}

// ScoreComponents are the intermediate 0-100 values the composite is built from.
type ScoreComponents struct {
	Difficulty float64 `json:"difficulty_component"`
	Taxonomy   float64 `json:"taxonomy_component"`
	CourseFit  float64 `json:"course_fit_component"`
	Standalone bool    `json:"standalone"`
}

// Result is the evaluation output for one assessment.
type Result struct {
	AssessmentName string `json:"assessment_name"`
	AssessmentType string `json:"assessment_type"`
	ContentScope   string `json:"content_scope"`

	DifficultyLevel     string           `json:"difficulty_level"`
	DifficultyRationale string           `json:"difficulty_rationale"`
	DifficultyScores    DifficultyScores `json:"difficulty_scores"`

	BloomsScores              BloomsScores             `json:"blooms_scores"`
	BloomsRationales          BloomsRationales         `json:"blooms_rationales"`
	BloomsDistributionSummary string                   `json:"blooms_distribution_summary"`
	QuestionClassifications   []QuestionClassification `json:"question_classifications"`

	CourseFitScore   float64          `json:"course_fit_score"`
	CourseFitStatus  string           `json:"course_fit_status"`
	CourseFitDetails CourseFitDetails `json:"course_fit_details"`

	Components           ScoreComponents `json:"score_components"`
	AQSScore             float64         `json:"aqs_score"`
	QualityTier          string          `json:"aqs_quality_tier"`
	QualityTierReasoning string          `json:"quality_tier_reasoning"`

	ConfidenceFlags []string                  `json:"confidence_flags"`
	Warnings        []string                  `json:"warnings"`
	Metrics         metrics.EvaluationMetrics `json:"metrics"`
}

// CourseResults is the combined output of one course run.
type CourseResults struct {
	RunID            string                 `json:"run_id"`
	CourseID         string                 `json:"course_id"`
	CourseName       string                 `json:"course_name"`
	ModelName        string                 `json:"model_name"`
	TotalAssessments int                    `json:"total_assessments"`
	Assessments      []Result               `json:"assessments"`
	Metrics          *metrics.CourseMetrics `json:"metrics"`
}

// AnalysisSucceeded reports whether the scores come from a parsed service
// response rather than defaults.
func (r Result) AnalysisSucceeded() bool {
	return !slices.Contains(r.ConfidenceFlags, FlagAnalysisFailed) &&
		!slices.Contains(r.ConfidenceFlags, FlagUnparseableResponse)
}
