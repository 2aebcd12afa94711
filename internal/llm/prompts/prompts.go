package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var embedded embed.FS

const (
	systemRoleFile = "system_role.txt"
	combinedFile   = "combined.txt"
	standaloneFile = "standalone.txt"
)

// Tags used to fence inserted text in the templates. Occurrences inside
// course material or question text are stripped so the fences stay intact.
var fenceTagRegex = regexp.MustCompile(`(?i)</?\s*(course|course-content|assessment)\b[^>]*>`)

var (
	loadOnce     sync.Once
	loadErr      error
	systemRole   string
	combinedTmpl *template.Template
	standaloneTm *template.Template
)

// Default returns the built-in prompt templates.
func Default() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// CombinedData holds template data for the course-linked analysis prompt.
type CombinedData struct {
	CourseTitle             string
	CourseDescription       string
	CourseLevel             string
	LearningObjectives      string
	Competencies            string
	ContentScope            string
	ContentSummary          string
	AssessmentName          string
	AssessmentType          string
	TotalQuestions          int
	ExpectedDurationMinutes int
	QuestionsText           string
}

// StandaloneData holds template data for the standalone analysis prompt.
type StandaloneData struct {
	AssessmentName          string
	AssessmentType          string
	TotalQuestions          int
	ExpectedDurationMinutes int
	QuestionsText           string
}

// Load reads the prompt templates from fsys. Only the first call has any
// effect; later calls return the first call's error.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		role, err := fs.ReadFile(fsys, systemRoleFile)
		if err != nil {
			loadErr = fmt.Errorf("read prompt file %s: %w", systemRoleFile, err)
			return
		}
		systemRole = strings.TrimSpace(string(role))

		if combinedTmpl, loadErr = parse(fsys, combinedFile); loadErr != nil {
			return
		}
		standaloneTm, loadErr = parse(fsys, standaloneFile)
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// SystemRole returns the system message sent with every analysis request.
func SystemRole() (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	return systemRole, nil
}

// BuildCombined renders the difficulty, taxonomy and course fit prompt.
func BuildCombined(d CombinedData) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	d.CourseDescription = sanitize(d.CourseDescription, "[No description provided]")
	d.LearningObjectives = sanitize(d.LearningObjectives, "[No objectives provided]")
	d.ContentSummary = sanitize(d.ContentSummary, "[No course content available]")
	d.QuestionsText = sanitize(d.QuestionsText, "[No question details available]")
	return execute(combinedTmpl, d)
}

// BuildStandalone renders the prompt for an assessment without a course.
func BuildStandalone(d StandaloneData) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	d.QuestionsText = sanitize(d.QuestionsText, "[No question details available]")
	return execute(standaloneTm, d)
}

func ready() error {
	if combinedTmpl == nil || standaloneTm == nil {
		if loadErr != nil {
			return fmt.Errorf("templates load failed: %w", loadErr)
		}
		return errors.New("templates not initialized: call Load first")
	}
	return nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitize(text, placeholder string) string {
	text = strings.TrimSpace(fenceTagRegex.ReplaceAllString(text, ""))
	if text == "" {
		return placeholder
	}
	return text
}
