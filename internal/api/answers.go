package api

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/predictor"
	"github.com/querygrade/querygrade/internal/query"
)

type evaluateRequest struct {
	StudentQuery   string `json:"student_query"`
	ReferenceQuery string `json:"reference_query"`
}

func (r evaluateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StudentQuery, validation.Required),
		validation.Field(&r.ReferenceQuery, validation.Required),
	)
}

// handleGenerateAnswers drafts a reference query for every question and stores them.
// Nothing is persisted unless every question produced one.
func (s *server) handleGenerateAnswers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Generator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PREDICTOR_NOT_CONFIGURED", "no predictor is configured", false, nil)
		return
	}
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	if len(quiz.Schema) == 0 {
		writeError(r.Context(), w, http.StatusConflict, "SCHEMA_MISSING", "upload a workbook before generating answers", false, nil)
		return
	}

	questions, err := s.deps.Generator.Generate(r.Context(), grading.GenerateInput{
		Schemas:       quiz.Schema,
		Relationships: quiz.KeyRelationships,
		Questions:     quiz.Questions,
	})
	if err != nil {
		var extractionErr *predictor.ExtractionError
		if errors.As(err, &extractionErr) {
			writeError(r.Context(), w, http.StatusBadGateway, "EXTRACTION_FAILED", err.Error(), false, map[string]any{
				"question": extractionErr.Question,
			})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "PREDICTOR_FAILED", err.Error(), true, nil)
		return
	}
	if err := s.deps.Catalog.SetQuizQuestions(r.Context(), quiz.QuizID, questions); err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "store generated answers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quiz.QuizID, "questions": questions})
}

func (s *server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Grader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GRADER_NOT_CONFIGURED", "grader dependency is not configured", false, nil)
		return
	}
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ds, ok := s.loadDataset(w, r, quiz)
	if !ok {
		return
	}

	evaluation, err := s.deps.Grader.Evaluate(r.Context(), ds, req.StudentQuery, req.ReferenceQuery)
	if err != nil {
		var (
			lifecycleErr *query.LifecycleError
			execErr      *query.ExecutionError
		)
		if !errors.As(err, &lifecycleErr) && errors.As(err, &execErr) {
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", err.Error(), false, nil)
			return
		}
		writeGradingError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluation)
}
