package loader

import (
	"fmt"
	"strings"

	"github.com/pavelanni/aqs/internal/model"
)

// TruncationMarker is appended to text cut to fit a character budget.
const TruncationMarker = "... [truncated]"

// Content scope labels.
const (
	ScopeFullCourse         = "Full Course"
	ScopeFullCourseFallback = "Full Course (module content not available)"
	scopeModulePrefix       = "Module: "
)

// Limits are the character budgets applied when formatting content.
type Limits struct {
	Module     int
	Transcript int
	PDF        int
}

// DefaultLimits returns the standard budgets.
func DefaultLimits() Limits {
	return Limits{Module: 10000, Transcript: 8000, PDF: 5000}
}

// Scope is the content an assessment is evaluated against.
type Scope struct {
	Label string
	Text  string
}

// SelectScope chooses the content for a: final assessments get the full
// course, module assessments their own module when it has any text, and
// everything else the full course with a fallback label.
func SelectScope(a model.Assessment, cc model.CourseContent, lim Limits) Scope {
	if a.IsFinal {
		return Scope{Label: ScopeFullCourse, Text: FormatContentSummary(cc, lim)}
	}
	if a.Module.HasText() {
		return Scope{
			Label: scopeModulePrefix + a.AssociatedModule,
			Text:  Truncate(formatModule(a.Module), lim.Module),
		}
	}
	return Scope{Label: ScopeFullCourseFallback, Text: FormatContentSummary(cc, lim)}
}

func formatModule(m *model.ModuleContent) string {
	parts := []string{scopeModulePrefix + m.ModuleName}
	if m.Transcript != "" {
		parts = append(parts, "\nModule Transcript:\n"+m.Transcript)
	}
	if m.PDFText != "" {
		parts = append(parts, "\nModule PDF Content:\n"+m.PDFText)
	}
	return strings.Join(parts, "\n")
}

// FormatContentSummary renders the module list, transcripts and PDF text of
// a course, each body cut to its budget.
func FormatContentSummary(cc model.CourseContent, lim Limits) string {
	var parts []string
	if len(cc.ModuleNames) > 0 {
		parts = append(parts, "Course Modules:")
		for _, name := range cc.ModuleNames {
			parts = append(parts, "  - "+name)
		}
	}
	if len(cc.Transcripts) > 0 {
		text := Truncate(strings.Join(cc.Transcripts, " "), lim.Transcript)
		parts = append(parts, "\nCourse Transcript:\n"+text)
	}
	if len(cc.PDFTexts) > 0 {
		text := Truncate(strings.Join(cc.PDFTexts, "\n\n"), lim.PDF)
		parts = append(parts, "\nPDF Course Materials:\n"+text)
	}
	return strings.Join(parts, "\n")
}

// FormatQuestions renders the questions of a with lettered options.
func FormatQuestions(a model.Assessment) string {
	var lines []string
	for _, q := range a.Questions {
		lines = append(lines, fmt.Sprintf("\nQuestion %d: %s", q.Number, q.Text))
		lines = append(lines, "Type: "+q.Type)
		if len(q.Options) > 0 {
			lines = append(lines, "Options:")
			for i, opt := range q.Options {
				lines = append(lines, fmt.Sprintf("  %s) %s", optionLabel(i), opt))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// optionLabel maps 0 to A, 25 to Z, 26 to AA.
func optionLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}

// Truncate cuts s to limit runes and appends the marker when it had to cut.
// A non-positive limit leaves s unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + TruncationMarker
}
