package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querygrade/querygrade/internal/archive"
	"github.com/querygrade/querygrade/internal/auth"
	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/config"
	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/observability"
	"github.com/querygrade/querygrade/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           catalog.Repository
	ObjectStore       storage.ObjectStore
	Grader            *grading.Grader
	// Generator is nil when no predictor is configured.
	Generator *grading.Generator
	// Archiver is nil when grade archiving is disabled.
	Archiver *archive.Archiver
	Now      func() time.Time
}

type server struct {
	cfg  config.Config
	deps Dependencies
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	s := &server{cfg: cfg, deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/teachers", s.handleRegisterTeacher)
	mux.HandleFunc("POST /v1/students/register", s.handleRegisterStudent)
	mux.HandleFunc("GET /v1/students/{student}", s.handleGetStudent)
	mux.HandleFunc("POST /v1/students/{student}/submit", s.handleSubmitAnswers)
	mux.HandleFunc("POST /v1/students/{student}/grade", s.handleGradeStudent)

	protectedRoutes := map[string]http.HandlerFunc{
		"GET /v1/me":                          s.handleMe,
		"POST /v1/quizzes":                    s.handleCreateQuiz,
		"GET /v1/quizzes":                     s.handleListQuizzes,
		"GET /v1/quizzes/{quiz}":              s.handleGetQuiz,
		"DELETE /v1/quizzes/{quiz}":           s.handleDeleteQuiz,
		"PATCH /v1/quizzes/{quiz}/open":       s.handleSetQuizOpen(true),
		"PATCH /v1/quizzes/{quiz}/close":      s.handleSetQuizOpen(false),
		"PUT /v1/quizzes/{quiz}/questions":    s.handleReplaceQuestions,
		"POST /v1/quizzes/{quiz}/workbook":    s.handleUploadWorkbook,
		"GET /v1/quizzes/{quiz}/dataset":      s.handleGetDataset,
		"GET /v1/quizzes/{quiz}/schema":       s.handleGetSchema,
		"GET /v1/quizzes/{quiz}/students":     s.handleListStudents,
		"POST /v1/quizzes/{quiz}/answers":     s.handleGenerateAnswers,
		"POST /v1/quizzes/{quiz}/evaluate":    s.handleEvaluate,
	}

	protected := http.NewServeMux()
	for pattern, handler := range protectedRoutes {
		protected.HandleFunc(pattern, handler)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range protectedRoutes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Backend != config.ObjectStoreS3 {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func (s *server) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *server) logger() *slog.Logger {
	if s.deps.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.deps.Logger
}

// teacherFromRequest resolves the caller's teacher id from the authenticated identity,
// falling back to X-Teacher-ID when authentication is disabled.
func teacherFromRequest(r *http.Request) (string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.TeacherID) != "" {
			return identity.TeacherID, nil
		}
	}
	teacherID := strings.TrimSpace(r.Header.Get("X-Teacher-ID"))
	if teacherID == "" {
		return "", fmt.Errorf("teacher context is required")
	}
	return teacherID, nil
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

// requireTeacher writes the error response itself and reports whether the handler
// should continue.
func requireTeacher(w http.ResponseWriter, r *http.Request) (string, bool) {
	teacherID, err := teacherFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "TEACHER_REQUIRED", err.Error(), false, nil)
		return "", false
	}
	if err := requireRole(r, auth.RoleTeacher); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return "", false
	}
	return teacherID, true
}

// decodeJSON reads a strict JSON body and runs its validation rules, writing a 400 on
// failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst validation.Validatable) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	if err := dst.Validate(); err != nil {
		var fields validation.Errors
		if errors.As(err, &fields) {
			writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_FAILED", "request validation failed", false, map[string]any{"fields": fields})
			return false
		}
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), false, nil)
		return false
	}
	return true
}

// writeCatalogError maps repository errors onto the response envelope.
func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error, notFoundCode, action string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, notFoundCode, strings.ToLower(strings.ReplaceAll(notFoundCode, "_", " ")), false, nil)
	case errors.Is(err, catalog.ErrConflict):
		writeError(ctx, w, http.StatusConflict, "CONFLICT", action+" conflicts with existing data", false, map[string]any{"details": err.Error()})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to "+action, true, map[string]any{"details": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
