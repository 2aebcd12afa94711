package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pavelanni/aqs/internal/model"
)

const (
	assessmentsDir   = "Assessments"
	finalDir         = "Final_Assessment"
	quizzesDir       = "Practice_Quizzes"
	quizPrefix       = "Quiz"
	parsedFile       = "assessment_parsed.json"
	rawFile          = "assessment.json"
	practiceTypeJoin = " - "
)

// parsedAssessment is the shape of assessment_parsed.json.
type parsedAssessment struct {
	AssessmentName string           `json:"assessmentName"`
	AssessmentID   string           `json:"assessmentId"`
	TotalQuestions int              `json:"totalQuestions"`
	Questions      []model.Question `json:"questions"`
}

// rawAssessment is the shape of assessment.json.
type rawAssessment struct {
	Result struct {
		QuestionSet struct {
			Name             string  `json:"name"`
			Identifier       string  `json:"identifier"`
			TotalQuestions   float64 `json:"totalQuestions"`
			ExpectedDuration float64 `json:"expectedDuration"`
			Description      string  `json:"description"`
			Purpose          string  `json:"purpose"`
		} `json:"questionset"`
	} `json:"result"`
}

func (l *Loader) loadAssessments(st *loadState, coursePath string, modules []moduleDir, cc model.CourseContent) []model.Assessment {
	root := filepath.Join(coursePath, assessmentsDir)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		st.warn("No assessments directory found")
		return nil
	}

	var out []model.Assessment

	finalPath := filepath.Join(root, finalDir)
	if isDir(finalPath) {
		a, err := readAssessment(finalPath, model.TypeFinalAssessment)
		if err != nil {
			st.warn("Final assessment could not be loaded: %v", err)
		} else {
			a.IsFinal = true
			out = append(out, *a)
		}
	}

	for i, name := range quizDirs(filepath.Join(root, quizzesDir)) {
		a, err := readAssessment(filepath.Join(root, quizzesDir, name), model.TypePracticeAssessment+practiceTypeJoin+name)
		if err != nil {
			st.warn("Practice quiz %s could not be loaded: %v", name, err)
			continue
		}
		if i < len(modules) {
			a.AssociatedModule = modules[i].key
			a.Module = cc.Modules[modules[i].key]
		} else {
			st.warn("Practice quiz %s has no matching module - evaluated against full course content", name)
		}
		out = append(out, *a)
	}

	if len(out) == 0 {
		st.warn("No assessments found in course")
	}
	return out
}

// quizDirs returns practice quiz directory names in lexical order.
func quizDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), quizPrefix) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// LoadAssessmentDir reads a single assessment directory outside any course.
// The result has no module and is not marked final.
func LoadAssessmentDir(dir string) (*model.Assessment, error) {
	if !isDir(dir) {
		return nil, fmt.Errorf("assessment directory %s: %w", dir, fs.ErrNotExist)
	}
	return readAssessment(dir, model.TypePracticeAssessment)
}

// readAssessment prefers assessment_parsed.json and fills duration and
// descriptive fields from assessment.json when both exist.
func readAssessment(dir, kind string) (*model.Assessment, error) {
	var parsed *parsedAssessment
	var raw *rawAssessment

	if data, err := os.ReadFile(filepath.Join(dir, parsedFile)); err == nil {
		parsed = &parsedAssessment{}
		if err := json.Unmarshal(data, parsed); err != nil {
			return nil, fmt.Errorf("parse %s: %w", parsedFile, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", parsedFile, err)
	}

	if data, err := os.ReadFile(filepath.Join(dir, rawFile)); err == nil {
		raw = &rawAssessment{}
		if err := json.Unmarshal(data, raw); err != nil {
			if parsed == nil {
				return nil, fmt.Errorf("parse %s: %w", rawFile, err)
			}
			raw = nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) && parsed == nil {
		return nil, fmt.Errorf("read %s: %w", rawFile, err)
	}

	if parsed == nil && raw == nil {
		return nil, fmt.Errorf("no %s or %s in %s", parsedFile, rawFile, filepath.Base(dir))
	}

	a := &model.Assessment{Type: kind}
	if parsed != nil {
		a.Name = parsed.AssessmentName
		a.ID = parsed.AssessmentID
		a.TotalQuestions = parsed.TotalQuestions
		a.Questions = parsed.Questions
	}
	if raw != nil {
		qs := raw.Result.QuestionSet
		if a.Name == "" {
			a.Name = qs.Name
		}
		if a.ID == "" {
			a.ID = qs.Identifier
		}
		if a.TotalQuestions == 0 {
			a.TotalQuestions = int(math.Round(qs.TotalQuestions))
		}
		a.ExpectedDuration = int(math.Round(qs.ExpectedDuration))
		a.Description = qs.Description
		a.Purpose = qs.Purpose
	}
	if a.Name == "" {
		a.Name = filepath.Base(dir)
	}
	return a, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
