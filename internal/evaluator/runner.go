package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/aqs/internal/checkpoint"
	"github.com/pavelanni/aqs/internal/loader"
	"github.com/pavelanni/aqs/internal/metrics"
	"github.com/pavelanni/aqs/internal/model"
)

// Output file names inside <output>/<model>/<course>/.
const (
	ResultSuffix    = "_aqs.json"
	CombinedFile    = "all_assessments_aqs.json"
	EvaluationLog   = "evaluation_log.json"
	StandaloneDir   = "standalone"
	outputFilePerms = 0o644
)

// RunRecorder stores a summary of every finished course run.
type RunRecorder interface {
	RecordRun(r model.RunRecord) error
}

// Runner evaluates whole courses, resuming from checkpoints.
type Runner struct {
	Loader      *loader.Loader
	Checkpoints *checkpoint.Manager
	OutputDir   string
	// Collectors and Runs are optional.
	Collectors *metrics.Collectors
	Runs       RunRecorder
}

// RunOptions control a course run.
type RunOptions struct {
	// ForceRestart deletes any checkpoint before the run starts.
	ForceRestart bool
}

// CourseDir returns the output directory for (modelName, courseID).
func CourseDir(outputDir, modelName, courseID string) string {
	return filepath.Join(outputDir, model.SanitizeFilename(modelName), courseID)
}

// RunCourse evaluates every assessment of courseID that the checkpoint does
// not list as completed. Results are written as they finish; an assessment
// is recorded in the checkpoint only when its analysis succeeded and its
// result file was written. When every assessment is done the checkpoint is
// cleared. A cancelled context stops the run after the current assessment.
func (r *Runner) RunCourse(ctx context.Context, ev *Evaluator, courseID string, opts RunOptions) (*model.CourseResults, error) {
	modelName := ev.Model()
	if opts.ForceRestart {
		r.Checkpoints.Clear(modelName, courseID)
	}

	course, err := r.Loader.Load(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course %s: %w", courseID, err)
	}
	courseName := course.Metadata.Name
	total := len(course.Assessments)

	cp := r.Checkpoints.Load(modelName, courseID)
	if cp != nil {
		slog.Info("resuming from checkpoint", "model", modelName, "course", courseID,
			"completed", cp.CompletedCount, "total", total)
	}
	done := make(map[string]bool)
	for _, name := range cp.Completed() {
		done[name] = true
	}

	runID := uuid.NewString()
	start := time.Now()
	cm := metrics.NewCourseMetrics(runID, courseID, courseName, modelName, total, start)
	outDir := CourseDir(r.OutputDir, modelName, courseID)
	results := &model.CourseResults{
		RunID:            runID,
		CourseID:         courseID,
		CourseName:       courseName,
		ModelName:        modelName,
		TotalAssessments: total,
		Assessments:      []model.Result{},
		Metrics:          cm,
	}

	for i, a := range course.Assessments {
		if ctx.Err() != nil {
			slog.Warn("run cancelled", "model", modelName, "course", courseID, "remaining", total-i)
			break
		}
		if done[a.Name] {
			slog.Info("skipping completed assessment", "model", modelName, "course", courseID, "assessment", a.Name)
			cm.AddSkipped()
			r.Collectors.ObserveSkip(modelName)
			continue
		}

		slog.Info("evaluating assessment", "model", modelName, "course", courseID,
			"assessment", a.Name, "n", i+1, "of", total)
		res := ev.Evaluate(ctx, course, a)
		results.Assessments = append(results.Assessments, res)
		r.Collectors.Observe(res.QualityTier, res.Metrics)

		written := true
		path := filepath.Join(outDir, model.SanitizeFilename(a.Name)+ResultSuffix)
		if err := writeJSON(path, res); err != nil {
			slog.Error("write result", "path", path, "error", err)
			written = false
		}

		if !res.AnalysisSucceeded() {
			cm.AddFailure(res.Metrics)
			continue
		}
		cm.Add(res.Metrics)
		if written {
			r.Checkpoints.MarkCompleted(modelName, courseID, courseName, total, a.Name)
			done[a.Name] = true
		}
	}

	cm.Finish(time.Now())

	if err := writeJSON(filepath.Join(outDir, CombinedFile), results); err != nil {
		slog.Error("write combined results", "course", courseID, "error", err)
	}
	if err := writeJSON(filepath.Join(outDir, EvaluationLog), cm); err != nil {
		slog.Error("write evaluation log", "course", courseID, "error", err)
	}

	if allDone(course.Assessments, done) {
		r.Checkpoints.Clear(modelName, courseID)
		slog.Info("course complete, checkpoint cleared", "model", modelName, "course", courseID)
	}

	r.recordRun(cm)
	slog.Info("course run finished", "model", modelName, "course", courseID, "run_id", runID,
		"evaluated", cm.SuccessfulEvaluations, "failed", cm.FailedEvaluations,
		"skipped", cm.SkippedAssessments, "cost_usd", cm.TotalCostUSD)
	return results, ctx.Err()
}

func allDone(assessments []model.Assessment, done map[string]bool) bool {
	for _, a := range assessments {
		if !done[a.Name] {
			return false
		}
	}
	return true
}

func (r *Runner) recordRun(cm *metrics.CourseMetrics) {
	if r.Runs == nil {
		return
	}
	err := r.Runs.RecordRun(model.RunRecord{
		RunID:            cm.RunID,
		ModelName:        cm.ModelName,
		CourseID:         cm.CourseID,
		CourseName:       cm.CourseName,
		StartedAt:        cm.StartTime,
		FinishedAt:       cm.EndTime,
		TotalAssessments: cm.TotalAssessments,
		Evaluated:        cm.SuccessfulEvaluations,
		Failed:           cm.FailedEvaluations,
		Skipped:          cm.SkippedAssessments,
		TotalTokens:      cm.TokenUsage.TotalTokens,
		TotalCostUSD:     cm.TotalCostUSD,
	})
	if err != nil {
		slog.Warn("record run", "run_id", cm.RunID, "error", err)
	}
}

// Outcome is the result of one (model, course) run inside a batch.
type Outcome struct {
	ModelName string
	CourseID  string
	Results   *model.CourseResults
	Err       error
}

// RunAll runs every course once per evaluator, sequentially. A failing
// course is logged and the batch moves on; only cancellation stops it.
func (r *Runner) RunAll(ctx context.Context, evs []*Evaluator, courseIDs []string, opts RunOptions) []Outcome {
	var out []Outcome
	for _, ev := range evs {
		for _, id := range courseIDs {
			if ctx.Err() != nil {
				return out
			}
			res, err := r.RunCourse(ctx, ev, id, opts)
			if err != nil {
				slog.Error("course run failed", "model", ev.Model(), "course", id, "error", err)
			}
			out = append(out, Outcome{ModelName: ev.Model(), CourseID: id, Results: res, Err: err})
		}
	}
	return out
}

// RunStandalone evaluates the single assessment in dir without a course and
// writes its result under <output>/<model>/standalone/.
func (r *Runner) RunStandalone(ctx context.Context, ev *Evaluator, dir string) (*model.Result, error) {
	a, err := loader.LoadAssessmentDir(dir)
	if err != nil {
		return nil, err
	}
	res := ev.Evaluate(ctx, nil, *a)
	r.Collectors.Observe(res.QualityTier, res.Metrics)
	path := filepath.Join(CourseDir(r.OutputDir, ev.Model(), StandaloneDir), model.SanitizeFilename(a.Name)+ResultSuffix)
	if err := writeJSON(path, res); err != nil {
		return &res, fmt.Errorf("write result: %w", err)
	}
	return &res, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, outputFilePerms)
}
