// Package handler serves a read-only JSON API over courses, evaluation
// results, checkpoints and run history.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/aqs/internal/checkpoint"
	"github.com/pavelanni/aqs/internal/i18n"
	"github.com/pavelanni/aqs/internal/loader"
	"github.com/pavelanni/aqs/internal/model"
	"github.com/pavelanni/aqs/internal/summary"
)

// RunLister returns stored course runs. Empty filters match everything.
type RunLister interface {
	ListRuns(modelName, courseID string) ([]model.RunRecord, error)
}

// Deps are the dependencies of a Handler. Runs and Gatherer are optional.
type Deps struct {
	Loader      *loader.Loader
	Checkpoints *checkpoint.Manager
	OutputDir   string
	Runs        RunLister
	Gatherer    prometheus.Gatherer
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	deps Deps
	now  func() time.Time
}

// New creates a new Handler.
func New(d Deps) *Handler {
	return &Handler{deps: d, now: time.Now}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Get("/courses", h.handleListCourses)
		api.Get("/courses/{courseID}", h.handleCourse)
		api.Get("/checkpoints", h.handleListCheckpoints)
		api.Delete("/checkpoints/{model}/{courseID}", h.handleClearCheckpoint)
		api.Get("/results/{model}/{courseID}", h.handleResults)
		api.Get("/summary/{model}", h.handleSummary)
		if h.deps.Runs != nil {
			api.Get("/runs", h.handleRuns)
		}
	})
	if h.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

type courseItem struct {
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
	Error    string `json:"error,omitempty"`
}

type assessmentItem struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	TotalQuestions   int    `json:"total_questions"`
	ParsedQuestions  int    `json:"parsed_questions"`
	IsFinal          bool   `json:"is_final_assessment"`
	AssociatedModule string `json:"associated_module,omitempty"`
}

type courseView struct {
	CourseID    string               `json:"course_id"`
	Metadata    model.CourseMetadata `json:"metadata"`
	Modules     []string             `json:"modules"`
	Assessments []assessmentItem     `json:"assessments"`
	Warnings    []string             `json:"warnings"`
}

type resultsView struct {
	Course  model.CourseSummary `json:"course"`
	Results []model.Result      `json:"results"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	ids, err := h.deps.Loader.ListCourses()
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	items := make([]courseItem, 0, len(ids))
	for _, id := range ids {
		item := courseItem{CourseID: id}
		if meta, err := h.deps.Loader.Metadata(id); err != nil {
			item.Error = err.Error()
		} else {
			item.Name = meta.Name
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleCourse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "courseID")
	cd, err := h.deps.Loader.Load(r.Context(), id)
	if errors.Is(err, loader.ErrCourseNotFound) || errors.Is(err, loader.ErrMetadataMissing) {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "CourseNotFound"))
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	v := courseView{
		CourseID:    id,
		Metadata:    cd.Metadata,
		Modules:     cd.Content.ModuleNames,
		Assessments: make([]assessmentItem, 0, len(cd.Assessments)),
		Warnings:    cd.Warnings,
	}
	for _, a := range cd.Assessments {
		v.Assessments = append(v.Assessments, assessmentItem{
			Name:             a.Name,
			Type:             a.Type,
			TotalQuestions:   a.QuestionCount(),
			ParsedQuestions:  len(a.Questions),
			IsFinal:          a.IsFinal,
			AssociatedModule: a.AssociatedModule,
		})
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Checkpoints.List()
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleClearCheckpoint(w http.ResponseWriter, r *http.Request) {
	modelName := chi.URLParam(r, "model")
	courseID := chi.URLParam(r, "courseID")
	if h.deps.Checkpoints.Load(modelName, courseID) == nil {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "CheckpointNotFound"))
		return
	}
	h.deps.Checkpoints.Clear(modelName, courseID)
	slog.Info("checkpoint cleared via API", "model", modelName, "course", courseID)
	writeJSON(w, http.StatusOK, map[string]string{"message": i18n.T(r.Context(), "CheckpointCleared")})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	cs, results, err := summary.Course(h.deps.OutputDir, chi.URLParam(r, "model"), chi.URLParam(r, "courseID"))
	if errors.Is(err, summary.ErrNoResults) {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "ResultsNotFound"))
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsView{Course: cs, Results: results})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	exp, err := summary.Build(h.deps.OutputDir, chi.URLParam(r, "model"), h.now())
	if errors.Is(err, summary.ErrNoResults) {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "ResultsNotFound"))
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := h.deps.Runs.ListRuns(q.Get("model"), q.Get("course"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, i18n.T(r.Context(), "InternalError"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
