package model

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

// AssessmentKind labels how an assessment relates to the course.
const (
	TypeFinalAssessment    = "Final Assessment"
	TypePracticeAssessment = "Practice Assessment"
)

// CourseMetadata is the course description read from metadata.json.
type CourseMetadata struct {
	Identifier      string   `json:"identifier"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Keywords        []string `json:"keywords"`
	Organisation    string   `json:"organisation"`
	Competencies    []string `json:"competencies"`
	PrimaryCategory string   `json:"primaryCategory"`
	ContentType     string   `json:"contentType"`
	Creator         string   `json:"creator"`
	Status          string   `json:"status"`
	AvgRating       float64  `json:"avgRating"`
	TotalRatings    int      `json:"totalRatings"`
}

// ModuleContent holds the transcript and PDF text of one course module.
type ModuleContent struct {
	ModuleName string `json:"module_name"`
	Transcript string `json:"transcript"`
	PDFText    string `json:"pdf_text"`
}

// HasText reports whether the module carries any transcript or PDF text.
func (m *ModuleContent) HasText() bool {
	return m != nil && (m.Transcript != "" || m.PDFText != "")
}

// CourseContent aggregates all textual course material.
type CourseContent struct {
	ModuleNames []string `json:"module_names"`
	Transcripts []string `json:"transcripts"`
	PDFTexts    []string `json:"pdf_texts"`
	// Modules is keyed by module directory name.
	Modules map[string]*ModuleContent `json:"modules"`
}

// Question is a single assessment question.
type Question struct {
	Number          int      `json:"questionNumber"`
	Text            string   `json:"questionText"`
	Type            string   `json:"questionType"`
	Options         Values   `json:"options"`
	CorrectAnswers  Values   `json:"correctAnswers"`
	Explanation     string   `json:"explanation"`
	BloomsLevel     string   `json:"bloomsLevel,omitempty"`
	DifficultyLevel string   `json:"difficultyLevel,omitempty"`
	Marks           Points   `json:"marks"`
}

// Values is a list of option or answer values. Extracted question files hold
// strings, option indices or a single bare value; non-string elements keep
// their compact JSON text, so the index 1 becomes "1".
type Values []string

func (v *Values) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = nil
		return nil
	}
	if data[0] != '[' {
		if s, ok := valueText(data); ok && s != "" {
			*v = Values{s}
		} else {
			*v = nil
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(Values, 0, len(items))
	for _, it := range items {
		if s, ok := valueText(it); ok {
			out = append(out, s)
		}
	}
	*v = out
	return nil
}

// valueText returns a JSON string's value or any other value's compact
// encoding. Null yields false.
func valueText(raw []byte) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw), true
	}
	return buf.String(), true
}

// Points is a question's marks. Numeric strings are accepted; anything
// else that is not a number counts as 0.
type Points float64

func (p *Points) UnmarshalJSON(data []byte) error {
	*p = 0
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if json.Unmarshal(data, &s) != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		*p = Points(f)
	}
	return nil
}

// IsCorrect reports whether answers matches the correct answers regardless of order.
// Comparison is case-insensitive and ignores surrounding whitespace.
func (q Question) IsCorrect(answers []string) bool {
	return slices.Equal(normalizeAnswers(q.CorrectAnswers), normalizeAnswers(answers))
}

func normalizeAnswers(answers []string) []string {
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || slices.Contains(out, a) {
			continue
		}
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Assessment is a quiz or final exam with its questions.
type Assessment struct {
	Name             string     `json:"name"`
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	TotalQuestions   int        `json:"total_questions"`
	ExpectedDuration int        `json:"expected_duration"` // seconds
	Description      string     `json:"description,omitempty"`
	Purpose          string     `json:"purpose,omitempty"`
	Questions        []Question `json:"questions"`
	IsFinal          bool       `json:"is_final_assessment"`
	// AssociatedModule is the module directory key; empty for final assessments.
	AssociatedModule string `json:"associated_module"`
	// Module points into CourseContent.Modules; it is not owned by the assessment.
	Module *ModuleContent `json:"-"`
}

// QuestionCount returns the declared question count, or the parsed count
// when nothing was declared.
func (a Assessment) QuestionCount() int {
	if a.TotalQuestions > 0 {
		return a.TotalQuestions
	}
	return len(a.Questions)
}

// CourseData is everything loaded for one course.
type CourseData struct {
	Metadata    CourseMetadata `json:"metadata"`
	Content     CourseContent  `json:"content"`
	Assessments []Assessment   `json:"assessments"`
	Warnings    []string       `json:"warnings"`
}

// CheckpointStatus is the progress state stored with a checkpoint.
type CheckpointStatus string

const (
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
)

// Checkpoint records which assessments of a (model, course) run completed.
type Checkpoint struct {
	ModelName            string           `json:"model_name"`
	CourseID             string           `json:"course_id"`
	CourseName           string           `json:"course_name"`
	TotalAssessments     int              `json:"total_assessments"`
	CompletedAssessments []string         `json:"completed_assessments"`
	CompletedCount       int              `json:"completed_count"`
	Status               CheckpointStatus `json:"status"`
	LastUpdated          time.Time        `json:"last_updated"`
}

// NewCheckpoint builds a checkpoint record with derived count and status.
func NewCheckpoint(modelName, courseID, courseName string, total int, completed []string) Checkpoint {
	status := CheckpointInProgress
	if len(completed) >= total {
		status = CheckpointCompleted
	}
	return Checkpoint{
		ModelName:            modelName,
		CourseID:             courseID,
		CourseName:           courseName,
		TotalAssessments:     total,
		CompletedAssessments: slices.Clone(completed),
		CompletedCount:       len(completed),
		Status:               status,
		LastUpdated:          time.Now(),
	}
}

// IsCompleted reports whether the named assessment is recorded as done.
// A nil checkpoint has no completed assessments.
func (c *Checkpoint) IsCompleted(assessmentName string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.CompletedAssessments, assessmentName)
}

// Completed returns a copy of the completed assessment names.
func (c *Checkpoint) Completed() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.CompletedAssessments)
}

// SanitizeFilename makes name safe for use as a file name component.
func SanitizeFilename(name string) string {
	r := strings.NewReplacer(
		"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
		`"`, "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	out := r.Replace(name)
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}
