package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/querygrade/querygrade/internal/archive"
	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/query"
)

type studentRegisterRequest struct {
	RoomCode   string `json:"room_code"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	// StudentID returns an existing enrollment instead of creating one.
	StudentID string `json:"student_id,omitempty"`
}

func (r studentRegisterRequest) Validate() error {
	returning := strings.TrimSpace(r.StudentID) != ""
	return validation.ValidateStruct(&r,
		validation.Field(&r.RoomCode, validation.Required, validation.Length(6, 6), is.Hexadecimal),
		validation.Field(&r.Name, validation.When(!returning, validation.Required, validation.Length(1, 200))),
		validation.Field(&r.RollNumber, validation.When(!returning, validation.Required, validation.Length(1, 64))),
	)
}

type submitRequest struct {
	Answers []submittedAnswer `json:"answers"`
}

type submittedAnswer struct {
	Answer string `json:"answer"`
}

func (r submitRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Answers, validation.NotNil),
	)
}

// publicQuestion is what a student sees; reference queries never leave the server.
type publicQuestion struct {
	Text  string  `json:"question"`
	Marks float64 `json:"marks"`
}

type publicQuiz struct {
	QuizID          string           `json:"quiz_id"`
	Name            string           `json:"name"`
	Branch          string           `json:"branch"`
	Year            int              `json:"year"`
	DurationMinutes int              `json:"duration_minutes"`
	Open            bool             `json:"open"`
	Questions       []publicQuestion `json:"questions"`
}

func newPublicQuiz(quiz catalog.Quiz) publicQuiz {
	questions := make([]publicQuestion, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions = append(questions, publicQuestion{Text: q.Text, Marks: q.Marks})
	}
	return publicQuiz{
		QuizID:          quiz.QuizID,
		Name:            quiz.Name,
		Branch:          quiz.Branch,
		Year:            quiz.Year,
		DurationMinutes: quiz.DurationMinutes,
		Open:            quiz.Open,
		Questions:       questions,
	}
}

func (s *server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quiz, err := s.deps.Catalog.GetQuizByRoomCode(r.Context(), strings.ToLower(req.RoomCode))
	if err != nil {
		writeCatalogError(r.Context(), w, err, "ROOM_NOT_FOUND", "find room")
		return
	}

	if studentID := strings.TrimSpace(req.StudentID); studentID != "" {
		student, err := s.deps.Catalog.GetStudent(r.Context(), studentID)
		if err == nil && student.QuizID != quiz.QuizID {
			err = catalog.ErrNotFound
		}
		if err != nil {
			writeCatalogError(r.Context(), w, err, "STUDENT_NOT_FOUND", "find student")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"student": student, "quiz": newPublicQuiz(quiz)})
		return
	}

	if !quiz.Open {
		writeError(r.Context(), w, http.StatusConflict, "QUIZ_CLOSED", "quiz is not open for registration", false, nil)
		return
	}
	student, err := s.deps.Catalog.CreateStudent(r.Context(), catalog.CreateStudentInput{
		QuizID:     quiz.QuizID,
		Name:       strings.TrimSpace(req.Name),
		RollNumber: strings.TrimSpace(req.RollNumber),
	})
	if err != nil {
		if errors.Is(err, catalog.ErrConflict) {
			writeError(r.Context(), w, http.StatusConflict, "ROLL_NUMBER_TAKEN", "roll number is already registered for this quiz", false, nil)
			return
		}
		writeCatalogError(r.Context(), w, err, "ROOM_NOT_FOUND", "register student")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"student": student, "quiz": newPublicQuiz(quiz)})
}

func (s *server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := s.deps.Catalog.GetStudent(r.Context(), r.PathValue("student"))
	if err != nil {
		writeCatalogError(r.Context(), w, err, "STUDENT_NOT_FOUND", "load student")
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// handleSubmitAnswers stores answers positionally. Each answer takes its max marks from
// the question at the same position; answers past the last question carry zero.
func (s *server) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	student, quiz, ok := s.studentAndQuiz(w, r)
	if !ok {
		return
	}
	if !quiz.Open {
		writeError(r.Context(), w, http.StatusConflict, "QUIZ_CLOSED", "quiz is not accepting submissions", false, nil)
		return
	}
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	answers := make([]grading.GradedAnswer, 0, len(req.Answers))
	for i, answer := range req.Answers {
		item := grading.GradedAnswer{AnswerText: answer.Answer}
		if i < len(quiz.Questions) {
			item.MaxMarks = quiz.Questions[i].Marks
		}
		answers = append(answers, item)
	}
	if err := s.deps.Catalog.SaveAnswers(r.Context(), student.StudentID, answers); err != nil {
		writeCatalogError(r.Context(), w, err, "STUDENT_NOT_FOUND", "save answers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id": student.StudentID,
		"quiz_id":    quiz.QuizID,
		"submitted":  len(answers),
	})
}

func (s *server) handleGradeStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Grader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GRADER_NOT_CONFIGURED", "grader dependency is not configured", false, nil)
		return
	}
	student, quiz, ok := s.studentAndQuiz(w, r)
	if !ok {
		return
	}
	ds, ok := s.loadDataset(w, r, quiz)
	if !ok {
		return
	}

	report, err := s.deps.Grader.Grade(r.Context(), grading.Input{
		Dataset:   ds,
		Questions: quiz.Questions,
		Answers:   student.SubmittedAnswers(),
	})
	if err != nil {
		writeGradingError(r.Context(), w, err)
		return
	}

	gradedAt := s.now()
	if err := s.deps.Catalog.RecordGrade(r.Context(), catalog.RecordGradeInput{
		StudentID: student.StudentID,
		Answers:   report.Answers,
		Marks:     report.TotalAwarded,
		GradedAt:  gradedAt,
	}); err != nil {
		writeCatalogError(r.Context(), w, err, "STUDENT_NOT_FOUND", "record grade")
		return
	}
	s.deps.Archiver.WriteBestEffort(r.Context(), archive.Run{
		QuizID:    quiz.QuizID,
		StudentID: student.StudentID,
		GradedAt:  gradedAt,
		Report:    report,
	})

	s.logger().InfoContext(r.Context(), "student graded",
		slog.String("quiz_id", quiz.QuizID),
		slog.String("student_id", student.StudentID),
		slog.Float64("marks", report.TotalAwarded),
		slog.Float64("max_marks", report.TotalMax),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id": student.StudentID,
		"quiz_id":    quiz.QuizID,
		"graded_at":  gradedAt,
		"report":     report,
	})
}

func (s *server) studentAndQuiz(w http.ResponseWriter, r *http.Request) (catalog.Student, catalog.Quiz, bool) {
	student, err := s.deps.Catalog.GetStudent(r.Context(), r.PathValue("student"))
	if err != nil {
		writeCatalogError(r.Context(), w, err, "STUDENT_NOT_FOUND", "load student")
		return catalog.Student{}, catalog.Quiz{}, false
	}
	quiz, err := s.deps.Catalog.GetQuiz(r.Context(), student.QuizID)
	if err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "load quiz")
		return catalog.Student{}, catalog.Quiz{}, false
	}
	return student, quiz, true
}

func writeGradingError(ctx context.Context, w http.ResponseWriter, err error) {
	var lifecycleErr *query.LifecycleError
	switch {
	case errors.As(err, &lifecycleErr):
		writeError(ctx, w, http.StatusUnprocessableEntity, "DATASET_LOAD_FAILED", err.Error(), false, map[string]any{"stage": string(lifecycleErr.Stage)})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusServiceUnavailable, "GRADING_INTERRUPTED", err.Error(), true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "GRADING_FAILED", err.Error(), true, nil)
	}
}
