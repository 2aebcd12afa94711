package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "MissingQuestionDetails")
	if got != "No question details available - analysis based on metadata only" {
		t.Errorf("T(MissingQuestionDetails) = %q", got)
	}

	got = T(ctx, "CourseNotFound")
	if got != "Course not found" {
		t.Errorf("T(CourseNotFound) = %q, want 'Course not found'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "CourseNotFound")
	if got != "Курс не найден" {
		t.Errorf("T(CourseNotFound) = %q, want 'Курс не найден'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "AssessmentsEvaluated", 1)
	if got1 != "1 assessment evaluated" {
		t.Errorf("Tp(AssessmentsEvaluated, 1) = %q", got1)
	}

	got5 := Tp(ctx, "AssessmentsEvaluated", 5)
	if got5 != "5 assessments evaluated" {
		t.Errorf("Tp(AssessmentsEvaluated, 5) = %q", got5)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "AssessmentsEvaluated", 5); got != "Оценено 5 заданий" {
		t.Errorf("ru Tp(AssessmentsEvaluated, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "FewQuestions", map[string]any{"Count": 3})
	if got != "Only 3 questions found - results may have limited reliability" {
		t.Errorf("Td(FewQuestions, Count=3) = %q", got)
	}

	got = Td(ctx, "TierReasoningFallback", map[string]any{"Score": 64.25, "Tier": "Satisfactory"})
	if got != "Assessment score of 64.25 falls within the Satisfactory range." {
		t.Errorf("Td(TierReasoningFallback) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestContextWithoutLocalizer(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	if got := T(context.Background(), "CheckpointCleared"); got != "Checkpoint cleared" {
		t.Errorf("T() without localizer = %q", got)
	}
}

func TestInitRejectsBadTag(t *testing.T) {
	if err := Init("not a language!"); err == nil {
		t.Error("expected error for invalid language tag")
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		target   string
		accept   string
		fallback string
		want     string
	}{
		{"fallback", "/", "", "ru", "Внутренняя ошибка"},
		{"accept language", "/", "ru-RU,ru;q=0.9", "en", "Внутренняя ошибка"},
		{"query wins", "/?lang=en", "ru", "ru", "Internal error"},
		{"unsupported falls through", "/?lang=de", "", "ru", "Внутренняя ошибка"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware(tt.fallback)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "InternalError")
			}))
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
