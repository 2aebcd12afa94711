package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pavelanni/aqs/internal/checkpoint"
	"github.com/pavelanni/aqs/internal/llm"
	"github.com/pavelanni/aqs/internal/loader"
	"github.com/pavelanni/aqs/internal/metrics"
	"github.com/pavelanni/aqs/internal/model"
)

const testModel = "gemini-2.0-flash"

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func assessmentJSON(name string) string {
	return `{"assessmentName": "` + name + `", "totalQuestions": 6, "questions": [
	  {"questionNumber": 1, "questionText": "Q1", "questionType": "MCQ", "options": ["a", "b"]},
	  {"questionNumber": 2, "questionText": "Q2", "questionType": "MCQ", "options": ["a", "b"]},
	  {"questionNumber": 3, "questionText": "Q3", "questionType": "MCQ", "options": ["a", "b"]},
	  {"questionNumber": 4, "questionText": "Q4", "questionType": "MCQ", "options": ["a", "b"]},
	  {"questionNumber": 5, "questionText": "Q5", "questionType": "MCQ", "options": ["a", "b"]},
	  {"questionNumber": 6, "questionText": "Q6", "questionType": "MCQ", "options": ["a", "b"]}
	]}`
}

// buildData lays out do_1 with one module, a final exam and one quiz.
func buildData(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	c := filepath.Join(dataDir, "do_1")
	writeFile(t, filepath.Join(c, "metadata.json"), `{"identifier":"do_1","name":"Go Basics"}`)
	writeFile(t, filepath.Join(c, "Course", "Module_1", "lesson.vtt"),
		"WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nChannels connect goroutines.\n")
	a := filepath.Join(c, "Assessments")
	writeFile(t, filepath.Join(a, "Final_Assessment", "assessment_parsed.json"), assessmentJSON("Final Exam"))
	writeFile(t, filepath.Join(a, "Practice_Quizzes", "Quiz_1", "assessment_parsed.json"), assessmentJSON("Quiz One"))
	return dataDir
}

type recorder struct{ runs []model.RunRecord }

func (r *recorder) RecordRun(rec model.RunRecord) error {
	r.runs = append(r.runs, rec)
	return nil
}

type fixture struct {
	runner *Runner
	cps    *checkpoint.Manager
	runs   *recorder
	reg    *prometheus.Registry
	out    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	cps := checkpoint.NewManager(checkpoint.NewFileStore(filepath.Join(t.TempDir(), ".checkpoints")))
	runs := &recorder{}
	out := t.TempDir()
	return fixture{
		runner: &Runner{
			Loader:      loader.New(buildData(t), nil),
			Checkpoints: cps,
			OutputDir:   out,
			Collectors:  metrics.NewCollectors(reg),
			Runs:        runs,
		},
		cps:  cps,
		runs: runs,
		reg:  reg,
		out:  out,
	}
}

func TestRunCourse(t *testing.T) {
	f := newFixture(t)
	fa := &fakeAnalyzer{model: testModel, text: responseWith("90", "ok")}

	res, err := f.runner.RunCourse(context.Background(), newTestEvaluator(fa), "do_1", RunOptions{})
	if err != nil {
		t.Fatalf("RunCourse: %v", err)
	}
	if len(res.Assessments) != 2 || res.Metrics.SuccessfulEvaluations != 2 {
		t.Fatalf("results = %d, metrics = %+v", len(res.Assessments), res.Metrics)
	}
	if res.RunID == "" || res.CourseName != "Go Basics" {
		t.Errorf("run = %q course = %q", res.RunID, res.CourseName)
	}

	dir := CourseDir(f.out, testModel, "do_1")
	for _, name := range []string{"Final_Exam_aqs.json", "Quiz_One_aqs.json", CombinedFile, EvaluationLog} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	var combined model.CourseResults
	data, err := os.ReadFile(filepath.Join(dir, CombinedFile))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &combined); err != nil {
		t.Fatalf("combined file: %v", err)
	}
	if combined.RunID != res.RunID || len(combined.Assessments) != 2 {
		t.Errorf("combined = %+v", combined)
	}

	if cp := f.cps.Load(testModel, "do_1"); cp != nil {
		t.Errorf("checkpoint should be cleared after a complete run: %+v", cp)
	}
	if len(f.runs.runs) != 1 || f.runs.runs[0].Evaluated != 2 || f.runs.runs[0].RunID != res.RunID {
		t.Errorf("recorded runs = %+v", f.runs.runs)
	}
	if got := testutil.ToFloat64(f.runner.Collectors.Evaluations.WithLabelValues(testModel, model.TierGood)); got != 2 {
		t.Errorf("evaluations counter = %v, want 2", got)
	}
}

func TestRunCourseResumes(t *testing.T) {
	f := newFixture(t)
	f.cps.Save(testModel, "do_1", "Go Basics", 2, []string{"Final Exam"})
	fa := &fakeAnalyzer{model: testModel, text: responseWith("90", "ok")}

	res, err := f.runner.RunCourse(context.Background(), newTestEvaluator(fa), "do_1", RunOptions{})
	if err != nil {
		t.Fatalf("RunCourse: %v", err)
	}

	calls := fa.calls()
	if len(calls) != 1 {
		t.Fatalf("analysis calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "Quiz One") {
		t.Error("the completed final exam was analyzed again")
	}
	if res.Metrics.SkippedAssessments != 1 || res.Metrics.SuccessfulEvaluations != 1 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
	if got := testutil.ToFloat64(f.runner.Collectors.Skipped.WithLabelValues(testModel)); got != 1 {
		t.Errorf("skipped counter = %v", got)
	}
	if cp := f.cps.Load(testModel, "do_1"); cp != nil {
		t.Errorf("checkpoint should be cleared: %+v", cp)
	}
}

func TestRunCourseFailedAnalysisNotCheckpointed(t *testing.T) {
	f := newFixture(t)
	fa := &fakeAnalyzer{model: testModel, reply: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "Quiz One") {
			return "", errors.New("service unavailable")
		}
		return responseWith("90", "ok"), nil
	}}

	res, err := f.runner.RunCourse(context.Background(), newTestEvaluator(fa), "do_1", RunOptions{})
	if err != nil {
		t.Fatalf("RunCourse: %v", err)
	}
	if res.Metrics.FailedEvaluations != 1 || res.Metrics.SuccessfulEvaluations != 1 {
		t.Errorf("metrics = %+v", res.Metrics)
	}

	cp := f.cps.Load(testModel, "do_1")
	if cp == nil {
		t.Fatal("checkpoint should remain while an assessment is outstanding")
	}
	if !cp.IsCompleted("Final Exam") || cp.IsCompleted("Quiz One") {
		t.Errorf("completed = %v", cp.CompletedAssessments)
	}
	// The failed result is still written for inspection.
	if _, err := os.Stat(filepath.Join(CourseDir(f.out, testModel, "do_1"), "Quiz_One_aqs.json")); err != nil {
		t.Errorf("failed result not written: %v", err)
	}

	// A second run retries only the failed assessment.
	fa.reply = nil
	fa.text = responseWith("90", "ok")
	if _, err := f.runner.RunCourse(context.Background(), newTestEvaluator(fa), "do_1", RunOptions{}); err != nil {
		t.Fatal(err)
	}
	if n := len(fa.calls()); n != 3 {
		t.Errorf("total calls = %d, want 3", n)
	}
	if cp := f.cps.Load(testModel, "do_1"); cp != nil {
		t.Error("checkpoint should be cleared once the retry succeeds")
	}
}

func TestRunCourseForceRestart(t *testing.T) {
	tests := []struct {
		name  string
		force bool
		calls int
	}{
		{"resume", false, 0},
		{"force", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cps.Save(testModel, "do_1", "Go Basics", 2, []string{"Final Exam", "Quiz One"})
			fa := &fakeAnalyzer{model: testModel, text: responseWith("90", "ok")}

			if _, err := f.runner.RunCourse(context.Background(), newTestEvaluator(fa), "do_1", RunOptions{ForceRestart: tt.force}); err != nil {
				t.Fatal(err)
			}
			if n := len(fa.calls()); n != tt.calls {
				t.Errorf("calls = %d, want %d", n, tt.calls)
			}
			if cp := f.cps.Load(testModel, "do_1"); cp != nil {
				t.Errorf("checkpoint should be cleared: %+v", cp)
			}
		})
	}
}

func TestRunCourseKeysByModel(t *testing.T) {
	f := newFixture(t)
	f.cps.Save("other-model", "do_1", "Go Basics", 2, []string{"Final Exam"})
	fa := &fakeAnalyzer{model: testModel, text: responseWith("90", "ok")}

	if _, err := f.runner.RunCourse(context.Background(), newTestEvaluator(fa), "do_1", RunOptions{}); err != nil {
		t.Fatal(err)
	}
	if n := len(fa.calls()); n != 2 {
		t.Errorf("another model's checkpoint must not skip work: calls = %d", n)
	}
	if cp := f.cps.Load("other-model", "do_1"); cp == nil {
		t.Error("another model's checkpoint must be left alone")
	}
}

func TestRunCourseMissing(t *testing.T) {
	f := newFixture(t)
	fa := &fakeAnalyzer{model: testModel}
	_, err := f.runner.RunCourse(context.Background(), newTestEvaluator(fa), "do_missing", RunOptions{})
	if !errors.Is(err, loader.ErrCourseNotFound) {
		t.Errorf("err = %v, want ErrCourseNotFound", err)
	}
}

func TestRunAllIsolatesCourses(t *testing.T) {
	f := newFixture(t)
	a := &fakeAnalyzer{model: "model-a", text: responseWith("90", "ok")}
	b := &fakeAnalyzer{model: "model-b", text: responseWith("90", "ok")}

	out := f.runner.RunAll(context.Background(),
		[]*Evaluator{newTestEvaluator(a), newTestEvaluator(b)},
		[]string{"do_missing", "do_1"}, RunOptions{})

	if len(out) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(out))
	}
	for _, o := range out {
		wantErr := o.CourseID == "do_missing"
		if (o.Err != nil) != wantErr {
			t.Errorf("%s/%s err = %v", o.ModelName, o.CourseID, o.Err)
		}
	}
	for _, m := range []string{"model-a", "model-b"} {
		if _, err := os.Stat(filepath.Join(CourseDir(f.out, m, "do_1"), CombinedFile)); err != nil {
			t.Errorf("%s results missing: %v", m, err)
		}
	}
}

func TestRunAllStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fa := &fakeAnalyzer{model: testModel, text: responseWith("90", "ok")}
	if out := f.runner.RunAll(ctx, []*Evaluator{newTestEvaluator(fa)}, []string{"do_1"}, RunOptions{}); len(out) != 0 {
		t.Errorf("cancelled batch ran %d courses", len(out))
	}
	if len(fa.calls()) != 0 {
		t.Error("cancelled batch made analysis calls")
	}
}

func TestRunStandalone(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "quiz")
	writeFile(t, filepath.Join(dir, "assessment_parsed.json"), assessmentJSON("Loose Quiz"))
	fa := &fakeAnalyzer{model: testModel, text: responseWith("90", "ok")}

	res, err := f.runner.RunStandalone(context.Background(), newTestEvaluator(fa), dir)
	if err != nil {
		t.Fatalf("RunStandalone: %v", err)
	}
	if res.ContentScope != ScopeStandalone || res.CourseFitStatus != model.CourseFitNotApplicable {
		t.Errorf("result = %q %q", res.ContentScope, res.CourseFitStatus)
	}
	path := filepath.Join(CourseDir(f.out, testModel, StandaloneDir), "Loose_Quiz_aqs.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("standalone result not written: %v", err)
	}

	if _, err := f.runner.RunStandalone(context.Background(), newTestEvaluator(fa), t.TempDir()); err == nil {
		t.Error("expected error for a directory without an assessment")
	}
}
