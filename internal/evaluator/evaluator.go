// Package evaluator scores assessments with one analysis call each and runs
// whole courses with checkpoint/resume.
package evaluator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/aqs/internal/i18n"
	"github.com/pavelanni/aqs/internal/llm"
	"github.com/pavelanni/aqs/internal/llm/prompts"
	"github.com/pavelanni/aqs/internal/loader"
	"github.com/pavelanni/aqs/internal/metrics"
	"github.com/pavelanni/aqs/internal/model"
)

// ScopeStandalone is the content scope label of assessments without a course.
const ScopeStandalone = "Standalone (no course content)"

// Analyzer is the analysis service. *llm.Client satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req llm.Request) (llm.Response, error)
	Model() string
}

// Config holds the evaluation thresholds and content budgets.
type Config struct {
	FewQuestionsThreshold int
	MismatchThreshold     float64
	Limits                loader.Limits
}

// DefaultConfig returns the standard thresholds and budgets.
func DefaultConfig() Config {
	return Config{
		FewQuestionsThreshold: 5,
		MismatchThreshold:     30,
		Limits:                loader.DefaultLimits(),
	}
}

// Evaluator scores assessments for one model.
type Evaluator struct {
	analyzer Analyzer
	pricing  metrics.Pricing
	cfg      Config
	now      func() time.Time
}

// New creates an Evaluator.
func New(analyzer Analyzer, pricing metrics.Pricing, cfg Config) *Evaluator {
	return &Evaluator{analyzer: analyzer, pricing: pricing, cfg: cfg, now: time.Now}
}

// Model returns the model name results are attributed to.
func (e *Evaluator) Model() string { return e.analyzer.Model() }

// Evaluate scores a against course. A nil course marks a standalone
// assessment: course fit is skipped and the two-term formula applies.
// Evaluate always returns a populated Result; analysis failures become
// warnings and confidence flags with neutral default scores.
func (e *Evaluator) Evaluate(ctx context.Context, course *model.CourseData, a model.Assessment) model.Result {
	modelName := e.analyzer.Model()
	standalone := course == nil
	m := metrics.NewEvaluationMetrics(a.Name, modelName, e.now())

	res := model.Result{
		AssessmentName:  a.Name,
		AssessmentType:  a.Type,
		ConfidenceFlags: []string{},
		Warnings:        []string{},
	}
	if !standalone {
		res.Warnings = append(res.Warnings, course.Warnings...)
	}

	e.checkEdgeCases(ctx, a, &res)

	var prompt string
	var err error
	if standalone {
		res.ContentScope = ScopeStandalone
		prompt, err = prompts.BuildStandalone(standaloneData(a))
	} else {
		scope := loader.SelectScope(a, course.Content, e.cfg.Limits)
		res.ContentScope = scope.Label
		prompt, err = prompts.BuildCombined(combinedData(course, a, scope))
	}

	var resp analysisResponse
	if err != nil {
		slog.Warn("build analysis prompt", "assessment", a.Name, "error", err)
		res.Warnings = append(res.Warnings, i18n.Td(ctx, "PromptFailed", map[string]any{"Error": err.Error()}))
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagAnalysisFailed)
	} else {
		resp = e.analyze(ctx, prompt, a.Name, &res, &m)
	}

	e.fill(ctx, &res, resp, standalone)

	m.Finish(e.pricing, e.now())
	res.Metrics = m
	slog.Info("evaluated assessment",
		"assessment", a.Name, "model", modelName, "scope", res.ContentScope,
		"aqs", res.AQSScore, "tier", res.QualityTier, "tokens", m.TokenUsage.TotalTokens)
	return res
}

// analyze makes the single service call and parses its answer.
func (e *Evaluator) analyze(ctx context.Context, prompt, name string, res *model.Result, m *metrics.EvaluationMetrics) analysisResponse {
	role, err := prompts.SystemRole()
	if err != nil {
		slog.Warn("load system role", "error", err)
	}
	out, err := e.analyzer.Analyze(ctx, llm.Request{SystemRole: role, Prompt: prompt})
	if err != nil {
		m.AddCall(out.Usage, false)
		slog.Warn("analysis call failed", "assessment", name, "model", e.analyzer.Model(), "error", err)
		res.Warnings = append(res.Warnings, i18n.Td(ctx, "AnalysisFailed", map[string]any{"Error": err.Error()}))
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagAnalysisFailed)
		return analysisResponse{}
	}
	// A reply with no usable analysis counts as a failed call; its tokens
	// are still billed.
	resp, ok := parseResponse(out.Text)
	m.AddCall(out.Usage, ok)
	if !ok {
		slog.Warn("analysis response not parseable", "assessment", name, "chars", len(out.Text))
		res.Warnings = append(res.Warnings, i18n.T(ctx, "AnalysisUnparseable"))
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagUnparseableResponse)
	}
	return resp
}

func (e *Evaluator) checkEdgeCases(ctx context.Context, a model.Assessment, res *model.Result) {
	count := a.QuestionCount()
	if count < e.cfg.FewQuestionsThreshold {
		res.Warnings = append(res.Warnings, i18n.Td(ctx, "FewQuestions", map[string]any{"Count": count}))
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagLowQuestionCount)
	}
	if len(a.Questions) == 0 {
		res.Warnings = append(res.Warnings, i18n.T(ctx, "MissingQuestionDetails"))
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagMissingQuestionDetails)
	} else if a.TotalQuestions > len(a.Questions) {
		res.Warnings = append(res.Warnings, i18n.Td(ctx, "PartialQuestionSet",
			map[string]any{"Declared": a.TotalQuestions, "Parsed": len(a.Questions)}))
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagPartialQuestionSet)
	}
}

// fill copies the parsed response into res, applying defaults, and computes
// the composite score and tier.
func (e *Evaluator) fill(ctx context.Context, res *model.Result, resp analysisResponse, standalone bool) {
	res.DifficultyLevel, res.DifficultyRationale, res.DifficultyScores = resp.Difficulty.toModel()

	blooms := resp.Blooms.scores()
	if blooms != nil {
		res.BloomsScores = *blooms
	}
	res.BloomsRationales = resp.Blooms.rationales()
	res.QuestionClassifications = resp.Blooms.classifications()
	if resp.Blooms != nil {
		res.BloomsDistributionSummary = string(resp.Blooms.DistributionSummary)
	}

	comp := model.ScoreComponents{
		Difficulty: DifficultyComponent(res.DifficultyScores),
		Taxonomy:   TaxonomyComponent(blooms),
		Standalone: standalone,
	}

	if standalone {
		res.CourseFitStatus = model.CourseFitNotApplicable
		res.CourseFitDetails = model.CourseFitDetails{ImprovementSuggestions: []string{}}
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagStandalone)
	} else {
		if resp.CourseFit != nil {
			res.CourseFitScore = resp.CourseFit.Score.Or(0)
			res.CourseFitStatus = string(resp.CourseFit.Status)
		}
		res.CourseFitDetails = resp.CourseFit.details()
		comp.CourseFit = res.CourseFitScore
		e.checkMismatch(ctx, resp.CourseFit, res)
	}

	res.AQSScore = Composite(comp)
	comp.Difficulty = round2(comp.Difficulty)
	comp.Taxonomy = round2(comp.Taxonomy)
	res.Components = comp
	res.QualityTier = Tier(res.AQSScore)

	res.QualityTierReasoning = strings.TrimSpace(string(resp.QualityTierReasoning))
	if res.QualityTierReasoning == "" {
		res.QualityTierReasoning = i18n.Td(ctx, "TierReasoningFallback",
			map[string]any{"Score": res.AQSScore, "Tier": res.QualityTier})
	}
}

func (e *Evaluator) checkMismatch(ctx context.Context, fit *courseFitSection, res *model.Result) {
	var appropriateness *float64
	if fit != nil {
		appropriateness = fit.DifficultyAppropriatenessScore.Ptr()
	}
	gap := mismatchGap(appropriateness)
	if gap > e.cfg.MismatchThreshold {
		res.Warnings = append(res.Warnings, i18n.Td(ctx, "DifficultyMismatch", map[string]any{
			"Score":     *appropriateness,
			"Gap":       round2(gap),
			"Threshold": e.cfg.MismatchThreshold,
		}))
	}
}

func combinedData(course *model.CourseData, a model.Assessment, scope loader.Scope) prompts.CombinedData {
	meta := course.Metadata
	return prompts.CombinedData{
		CourseTitle:             meta.Name,
		CourseDescription:       meta.Description,
		CourseLevel:             meta.PrimaryCategory,
		LearningObjectives:      meta.Description,
		Competencies:            strings.Join(meta.Competencies, ", "),
		ContentScope:            scope.Label,
		ContentSummary:          scope.Text,
		AssessmentName:          a.Name,
		AssessmentType:          a.Type,
		TotalQuestions:          a.QuestionCount(),
		ExpectedDurationMinutes: a.ExpectedDuration / 60,
		QuestionsText:           loader.FormatQuestions(a),
	}
}

func standaloneData(a model.Assessment) prompts.StandaloneData {
	return prompts.StandaloneData{
		AssessmentName:          a.Name,
		AssessmentType:          a.Type,
		TotalQuestions:          a.QuestionCount(),
		ExpectedDurationMinutes: a.ExpectedDuration / 60,
		QuestionsText:           loader.FormatQuestions(a),
	}
}
