package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/predictor"
)

// room codes are random, so a collision only costs another draw
const roomCodeAttempts = 5

type quizCreateRequest struct {
	Name             string                   `json:"name"`
	Branch           string                   `json:"branch"`
	Year             int                      `json:"year"`
	DurationMinutes  int                      `json:"duration_minutes"`
	KeyRelationships []predictor.Relationship `json:"key_relationships"`
	Questions        []grading.Question       `json:"questions"`
}

func (r quizCreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Year, validation.Min(0)),
		validation.Field(&r.DurationMinutes, validation.Min(0)),
		validation.Field(&r.KeyRelationships, validation.By(validateRelationships)),
		validation.Field(&r.Questions, validation.By(validateQuestions)),
	)
}

type questionsRequest struct {
	Questions []grading.Question `json:"questions"`
}

func (r questionsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Questions, validation.Required, validation.By(validateQuestions)),
	)
}

func validateQuestions(value any) error {
	questions, _ := value.([]grading.Question)
	errs := validation.Errors{}
	for i, q := range questions {
		if err := validation.ValidateStruct(&q,
			validation.Field(&q.Text, validation.Required),
			validation.Field(&q.Marks, validation.Min(0.0)),
		); err != nil {
			errs[fmt.Sprint(i)] = err
		}
	}
	return errs.Filter()
}

func validateRelationships(value any) error {
	relationships, _ := value.([]predictor.Relationship)
	errs := validation.Errors{}
	for i, rel := range relationships {
		if err := validation.ValidateStruct(&rel,
			validation.Field(&rel.Column1, validation.Required),
			validation.Field(&rel.Column2, validation.Required),
		); err != nil {
			errs[fmt.Sprint(i)] = err
		}
	}
	return errs.Filter()
}

func (s *server) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := requireTeacher(w, r)
	if !ok {
		return
	}
	var req quizCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		quiz catalog.Quiz
		err  error
	)
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		var roomCode string
		roomCode, err = catalog.NewRoomCode()
		if err != nil {
			break
		}
		quiz, err = s.deps.Catalog.CreateQuiz(r.Context(), catalog.CreateQuizInput{
			TeacherID:        teacherID,
			Name:             strings.TrimSpace(req.Name),
			Branch:           strings.TrimSpace(req.Branch),
			Year:             req.Year,
			DurationMinutes:  req.DurationMinutes,
			RoomCode:         roomCode,
			KeyRelationships: req.KeyRelationships,
			Questions:        req.Questions,
		})
		if !errors.Is(err, catalog.ErrConflict) {
			break
		}
	}
	if err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "create quiz")
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (s *server) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := requireTeacher(w, r)
	if !ok {
		return
	}
	quizzes, err := s.deps.Catalog.ListQuizzes(r.Context(), teacherID)
	if err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "list quizzes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"teacher_id": teacherID,
		"quizzes":    quizzes,
	})
}

func (s *server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *server) handleDeleteQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	deleted, err := s.deps.Catalog.DeleteQuiz(r.Context(), quiz.QuizID)
	if err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "delete quiz")
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "QUIZ_NOT_FOUND", "quiz not found", false, nil)
		return
	}
	if quiz.HasWorkbook() && s.deps.ObjectStore != nil {
		if err := s.deps.ObjectStore.Delete(r.Context(), quiz.WorkbookKey); err != nil {
			s.logger().WarnContext(r.Context(), "delete quiz workbook failed",
				slog.String("quiz_id", quiz.QuizID),
				slog.String("key", quiz.WorkbookKey),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "quiz_id": quiz.QuizID})
}

func (s *server) handleSetQuizOpen(open bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quiz, ok := s.ownedQuiz(w, r)
		if !ok {
			return
		}
		if err := s.deps.Catalog.SetQuizOpen(r.Context(), quiz.QuizID, open); err != nil {
			writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "update quiz")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quiz.QuizID, "open": open, "room_code": quiz.RoomCode})
	}
}

func (s *server) handleReplaceQuestions(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	var req questionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Catalog.SetQuizQuestions(r.Context(), quiz.QuizID, req.Questions); err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "update questions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quiz.QuizID, "questions": req.Questions})
}

func (s *server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	students, err := s.deps.Catalog.ListStudents(r.Context(), quiz.QuizID)
	if err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "list students")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quiz.QuizID, "students": students})
}

// ownedQuiz loads the path quiz for the calling teacher. Quizzes owned by someone else
// are reported as missing.
func (s *server) ownedQuiz(w http.ResponseWriter, r *http.Request) (catalog.Quiz, bool) {
	teacherID, ok := requireTeacher(w, r)
	if !ok {
		return catalog.Quiz{}, false
	}
	quiz, err := s.deps.Catalog.GetQuiz(r.Context(), r.PathValue("quiz"))
	if err == nil && quiz.TeacherID != teacherID {
		err = catalog.ErrNotFound
	}
	if err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "load quiz")
		return catalog.Quiz{}, false
	}
	return quiz, true
}
