package evaluator

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/aqs/internal/model"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Number is a JSON number that also accepts numeric strings. Null, missing
// or non-numeric values leave it invalid.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = Number{Value: v, Valid: true}
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*n = Number{Value: v, Valid: true}
	}
	return nil
}

// Or returns the value, or def when it is invalid.
func (n Number) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

// Ptr returns a pointer to the value, or nil when it is invalid.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// Text is a JSON string that tolerates other JSON values by keeping their
// compact encoding.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		*t = Text(data)
		return nil
	}
	*t = Text(buf.String())
	return nil
}

// textList is a list of strings that also accepts a single value, which
// becomes a one-element list.
type textList []Text

func (l *textList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*l = nil
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] != '[' {
		var t Text
		if err := t.UnmarshalJSON(data); err == nil && t != "" {
			*l = textList{t}
		}
		return nil
	}
	var items []Text
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	*l = items
	return nil
}

// classificationList ignores anything that is not an array.
type classificationList []classification

func (l *classificationList) UnmarshalJSON(data []byte) error {
	*l = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil
	}
	var items []classification
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	*l = items
	return nil
}

// decodeObject decodes data into v when it is a JSON object. Any other
// value leaves v zero, so one mistyped section does not discard the rest
// of the response.
func decodeObject(data []byte, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return err
		}
	}
	return nil
}

// analysisResponse is the structured answer of one combined analysis call.
// Sections are nil when the service omitted them.
type analysisResponse struct {
	Difficulty           *difficultySection `json:"difficulty_analysis"`
	Blooms               *bloomsSection     `json:"blooms_taxonomy"`
	CourseFit            *courseFitSection  `json:"course_fit"`
	QualityTierReasoning Text               `json:"quality_tier_reasoning"`
}

type difficultySection struct {
	Level                       Text   `json:"difficulty_level"`
	Rationale                   Text   `json:"difficulty_rationale"`
	ComplexityScore             Number `json:"complexity_score"`
	ComplexityRationale         Text   `json:"complexity_rationale"`
	LanguageDifficultyScore     Number `json:"language_difficulty_score"`
	LanguageDifficultyRationale Text   `json:"language_difficulty_rationale"`
	CognitiveEffortScore        Number `json:"cognitive_effort_score"`
	CognitiveEffortRationale    Text   `json:"cognitive_effort_rationale"`
	CourseAlignmentScore        Number `json:"course_alignment_score"`
	CourseAlignmentRationale    Text   `json:"course_alignment_rationale"`
}

func (d *difficultySection) UnmarshalJSON(data []byte) error {
	type plain difficultySection
	return decodeObject(data, (*plain)(d))
}

type bloomsSection struct {
	Scores                  *bloomsScoreSet    `json:"blooms_scores"`
	Rationales              bloomsRationales   `json:"blooms_rationales"`
	DistributionSummary     Text               `json:"blooms_distribution_summary"`
	QuestionClassifications classificationList `json:"question_classifications"`
}

func (b *bloomsSection) UnmarshalJSON(data []byte) error {
	type plain bloomsSection
	return decodeObject(data, (*plain)(b))
}

type bloomsScoreSet struct {
	Remember   Number `json:"remember"`
	Understand Number `json:"understand"`
	Apply      Number `json:"apply"`
	Analyze    Number `json:"analyze"`
	Evaluate   Number `json:"evaluate"`
	Create     Number `json:"create"`
}

func (s *bloomsScoreSet) UnmarshalJSON(data []byte) error {
	type plain bloomsScoreSet
	return decodeObject(data, (*plain)(s))
}

type bloomsRationales struct {
	Remember   Text `json:"remember"`
	Understand Text `json:"understand"`
	Apply      Text `json:"apply"`
	Analyze    Text `json:"analyze"`
	Evaluate   Text `json:"evaluate"`
	Create     Text `json:"create"`
}

func (r *bloomsRationales) UnmarshalJSON(data []byte) error {
	type plain bloomsRationales
	return decodeObject(data, (*plain)(r))
}

type classification struct {
	QuestionNumber Number `json:"question_number"`
	BloomsLevel    Text   `json:"blooms_level"`
	Justification  Text   `json:"justification"`
}

func (c *classification) UnmarshalJSON(data []byte) error {
	type plain classification
	return decodeObject(data, (*plain)(c))
}

type courseFitSection struct {
	Score                              Number   `json:"course_fit_score"`
	Status                             Text     `json:"course_fit_status"`
	ContentCoverageScore               Number   `json:"content_coverage_score"`
	ContentCoverageRationale           Text     `json:"content_coverage_rationale"`
	ObjectiveAlignmentScore            Number   `json:"objective_alignment_score"`
	ObjectiveAlignmentRationale        Text     `json:"objective_alignment_rationale"`
	DifficultyAppropriatenessScore     Number   `json:"difficulty_appropriateness_score"`
	DifficultyAppropriatenessRationale Text     `json:"difficulty_appropriateness_rationale"`
	CompletenessScore                  Number   `json:"completeness_score"`
	CompletenessRationale              Text     `json:"completeness_rationale"`
	AlignmentDetails                   Text     `json:"alignment_details"`
	ImprovementSuggestions             textList `json:"improvement_suggestions"`
}

func (f *courseFitSection) UnmarshalJSON(data []byte) error {
	type plain courseFitSection
	return decodeObject(data, (*plain)(f))
}

// parseResponse extracts the analysis object from free-form text. It tries
// a fenced json block, then the largest brace-balanced object, then the
// whole text. ok is false when none of them decode.
func parseResponse(text string) (resp analysisResponse, ok bool) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if decode(m[1], &resp) {
			return resp, true
		}
	}
	for _, cand := range balancedObjects(text) {
		if decode(cand, &resp) {
			return resp, true
		}
	}
	if decode(strings.TrimSpace(text), &resp) {
		return resp, true
	}
	return analysisResponse{}, false
}

func decode(s string, resp *analysisResponse) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var r analysisResponse
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return false
	}
	*resp = r
	return true
}

// balancedObjects returns every top-level {...} span of text whose braces
// balance, ignoring braces inside JSON strings, longest first.
func balancedObjects(text string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, text[start:i+1])
			}
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return len(b) - len(a) })
	return out
}

// Neutral values used when the service omits a score.
const (
	defaultSubScore        = 5.0
	defaultDifficultyLevel = "Intermediate"
)

// toModel converts the section, filling missing sub-scores with the
// neutral value.
func (d *difficultySection) toModel() (level, rationale string, s model.DifficultyScores) {
	if d == nil {
		d = &difficultySection{}
	}
	level = string(d.Level)
	if level == "" {
		level = defaultDifficultyLevel
	}
	return level, string(d.Rationale), model.DifficultyScores{
		ComplexityScore:             d.ComplexityScore.Or(defaultSubScore),
		ComplexityRationale:         string(d.ComplexityRationale),
		LanguageDifficultyScore:     d.LanguageDifficultyScore.Or(defaultSubScore),
		LanguageDifficultyRationale: string(d.LanguageDifficultyRationale),
		CognitiveEffortScore:        d.CognitiveEffortScore.Or(defaultSubScore),
		CognitiveEffortRationale:    string(d.CognitiveEffortRationale),
		CourseAlignmentScore:        d.CourseAlignmentScore.Or(defaultSubScore),
		CourseAlignmentRationale:    string(d.CourseAlignmentRationale),
	}
}

// scores returns the taxonomy scores, or nil when the service sent no
// usable category score. Individual missing categories count as 0.
func (b *bloomsSection) scores() *model.BloomsScores {
	if b == nil || b.Scores == nil {
		return nil
	}
	s := b.Scores
	if !s.Remember.Valid && !s.Understand.Valid && !s.Apply.Valid &&
		!s.Analyze.Valid && !s.Evaluate.Valid && !s.Create.Valid {
		return nil
	}
	return &model.BloomsScores{
		Remember:   s.Remember.Or(0),
		Understand: s.Understand.Or(0),
		Apply:      s.Apply.Or(0),
		Analyze:    s.Analyze.Or(0),
		Evaluate:   s.Evaluate.Or(0),
		Create:     s.Create.Or(0),
	}
}

func (b *bloomsSection) rationales() model.BloomsRationales {
	if b == nil {
		return model.BloomsRationales{}
	}
	r := b.Rationales
	return model.BloomsRationales{
		Remember:   string(r.Remember),
		Understand: string(r.Understand),
		Apply:      string(r.Apply),
		Analyze:    string(r.Analyze),
		Evaluate:   string(r.Evaluate),
		Create:     string(r.Create),
	}
}

func (b *bloomsSection) classifications() []model.QuestionClassification {
	if b == nil {
		return []model.QuestionClassification{}
	}
	out := make([]model.QuestionClassification, 0, len(b.QuestionClassifications))
	for _, qc := range b.QuestionClassifications {
		if !qc.QuestionNumber.Valid && qc.BloomsLevel == "" && qc.Justification == "" {
			continue
		}
		out = append(out, model.QuestionClassification{
			QuestionNumber: int(qc.QuestionNumber.Or(0)),
			BloomsLevel:    string(qc.BloomsLevel),
			Justification:  string(qc.Justification),
		})
	}
	return out
}

func (f *courseFitSection) details() model.CourseFitDetails {
	if f == nil {
		return model.CourseFitDetails{ImprovementSuggestions: []string{}}
	}
	suggestions := make([]string, 0, len(f.ImprovementSuggestions))
	for _, s := range f.ImprovementSuggestions {
		suggestions = append(suggestions, string(s))
	}
	return model.CourseFitDetails{
		ContentCoverageScore:               f.ContentCoverageScore.Or(0),
		ContentCoverageRationale:           string(f.ContentCoverageRationale),
		ObjectiveAlignmentScore:            f.ObjectiveAlignmentScore.Or(0),
		ObjectiveAlignmentRationale:        string(f.ObjectiveAlignmentRationale),
		DifficultyAppropriatenessScore:     f.DifficultyAppropriatenessScore.Or(0),
		DifficultyAppropriatenessRationale: string(f.DifficultyAppropriatenessRationale),
		CompletenessScore:                  f.CompletenessScore.Or(0),
		CompletenessRationale:              string(f.CompletenessRationale),
		AlignmentDetails:                   string(f.AlignmentDetails),
		ImprovementSuggestions:             suggestions,
	}
}
