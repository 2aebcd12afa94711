// Package summary aggregates evaluated results from the output tree into the
// cross-course export.
package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pavelanni/aqs/internal/evaluator"
	"github.com/pavelanni/aqs/internal/model"
)

// ErrNoResults is returned when a course or model has no result files.
var ErrNoResults = errors.New("no results found")

// ReadResults loads every per-assessment result file in dir, ordered by
// file name.
func ReadResults(dir string) ([]model.Result, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+evaluator.ResultSuffix))
	if err != nil {
		return nil, err
	}
	var out []model.Result
	for _, p := range paths {
		if filepath.Base(p) == evaluator.CombinedFile {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(p), err)
		}
		var r model.Result
		if err := json.Unmarshal(data, &r); err != nil {
			slog.Warn("skipping unreadable result", "path", p, "error", err)
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoResults, dir)
	}
	return out, nil
}

// Course summarizes one course directory of a model's output.
func Course(outputDir, modelName, courseID string) (model.CourseSummary, []model.Result, error) {
	dir := evaluator.CourseDir(outputDir, modelName, courseID)
	results, err := ReadResults(dir)
	if err != nil {
		return model.CourseSummary{}, nil, err
	}
	cs := model.CourseSummary{CourseID: courseID, Summary: Summarize(results)}
	if data, err := os.ReadFile(filepath.Join(dir, evaluator.CombinedFile)); err == nil {
		var cr model.CourseResults
		if json.Unmarshal(data, &cr) == nil {
			cs.CourseName = cr.CourseName
			cs.RunID = cr.RunID
		}
	}
	return cs, results, nil
}

// Build summarizes every course evaluated with modelName. Standalone
// results are not part of any course and are left out.
func Build(outputDir, modelName string, now time.Time) (*model.SummaryExport, error) {
	modelDir := filepath.Join(outputDir, model.SanitizeFilename(modelName))
	entries, err := os.ReadDir(modelDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w for model %s", ErrNoResults, modelName)
	}
	if err != nil {
		return nil, err
	}

	exp := &model.SummaryExport{ModelName: modelName, GeneratedAt: now, Courses: []model.CourseSummary{}}
	var all []model.Result
	for _, e := range entries {
		if !e.IsDir() || e.Name() == evaluator.StandaloneDir {
			continue
		}
		cs, results, err := Course(outputDir, modelName, e.Name())
		if errors.Is(err, ErrNoResults) {
			continue
		}
		if err != nil {
			return nil, err
		}
		exp.Courses = append(exp.Courses, cs)
		all = append(all, results...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w for model %s", ErrNoResults, modelName)
	}
	exp.Overall = Summarize(all)
	return exp, nil
}

// Summarize aggregates a set of results. Results whose analysis failed are
// counted in FailedAnalyses and left out of the scores and distributions;
// their warnings, tokens and cost still count.
func Summarize(results []model.Result) model.ResultSummary {
	s := model.ResultSummary{
		TierDistribution:       map[string]int{},
		DifficultyDistribution: map[string]int{},
		CourseFitDistribution:  map[string]int{},
		AverageBloomsScores:    map[string]float64{},
		UniqueWarnings:         []string{},
	}
	if len(results) == 0 {
		return s
	}

	var aqs float64
	var blooms model.BloomsScores
	seen := map[string]bool{}
	for _, r := range results {
		s.TotalWarnings += len(r.Warnings)
		for _, w := range r.Warnings {
			if !seen[w] {
				seen[w] = true
				s.UniqueWarnings = append(s.UniqueWarnings, w)
			}
		}
		s.TotalCostUSD += r.Metrics.Cost.TotalUSD
		s.TotalTokens += r.Metrics.TokenUsage.TotalTokens
		if !r.AnalysisSucceeded() {
			s.FailedAnalyses++
			continue
		}

		s.TotalAssessments++
		aqs += r.AQSScore
		s.TierDistribution[r.QualityTier]++
		s.DifficultyDistribution[r.DifficultyLevel]++
		if r.CourseFitStatus != "" {
			s.CourseFitDistribution[r.CourseFitStatus]++
		}
		blooms.Remember += r.BloomsScores.Remember
		blooms.Understand += r.BloomsScores.Understand
		blooms.Apply += r.BloomsScores.Apply
		blooms.Analyze += r.BloomsScores.Analyze
		blooms.Evaluate += r.BloomsScores.Evaluate
		blooms.Create += r.BloomsScores.Create
	}
	slices.SortFunc(s.UniqueWarnings, strings.Compare)
	s.TotalCostUSD = math.Round(s.TotalCostUSD*1e6) / 1e6
	if s.TotalAssessments == 0 {
		return s
	}

	n := float64(s.TotalAssessments)
	s.AverageAQSScore = round2(aqs / n)
	s.AverageBloomsScores = map[string]float64{
		"remember":   round2(blooms.Remember / n),
		"understand": round2(blooms.Understand / n),
		"apply":      round2(blooms.Apply / n),
		"analyze":    round2(blooms.Analyze / n),
		"evaluate":   round2(blooms.Evaluate / n),
		"create":     round2(blooms.Create / n),
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Write encodes exp as indented JSON followed by a newline.
func Write(w io.Writer, exp *model.SummaryExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
