// Package catalog persists teachers, quizzes, and enrolled students.
package catalog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/predictor"
	"github.com/querygrade/querygrade/internal/schema"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrConflict = errors.New("catalog: conflict")
)

type Repository interface {
	HealthCheck(ctx context.Context) error

	CreateTeacher(ctx context.Context, in CreateTeacherInput) (Teacher, error)
	GetTeacher(ctx context.Context, teacherID string) (Teacher, error)
	CreateAPIKey(ctx context.Context, in CreateAPIKeyInput) (APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (APIKey, error)

	CreateQuiz(ctx context.Context, in CreateQuizInput) (Quiz, error)
	GetQuiz(ctx context.Context, quizID string) (Quiz, error)
	GetQuizByRoomCode(ctx context.Context, roomCode string) (Quiz, error)
	ListQuizzes(ctx context.Context, teacherID string) ([]Quiz, error)
	DeleteQuiz(ctx context.Context, quizID string) (bool, error)
	SetQuizOpen(ctx context.Context, quizID string, open bool) error
	SetQuizWorkbook(ctx context.Context, in SetQuizWorkbookInput) error
	SetQuizQuestions(ctx context.Context, quizID string, questions []grading.Question) error

	CreateStudent(ctx context.Context, in CreateStudentInput) (Student, error)
	GetStudent(ctx context.Context, studentID string) (Student, error)
	ListStudents(ctx context.Context, quizID string) ([]Student, error)
	SaveAnswers(ctx context.Context, studentID string, answers []grading.GradedAnswer) error
	RecordGrade(ctx context.Context, in RecordGradeInput) error
}

type Teacher struct {
	TeacherID string    `json:"teacher_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateTeacherInput struct {
	Name  string
	Email string
}

type APIKey struct {
	KeyID     string
	TeacherID string
	KeyHash   string
	Role      string
	CreatedAt time.Time
	RevokedAt *time.Time
}

type CreateAPIKeyInput struct {
	TeacherID string
	KeyHash   string
	Role      string
}

type Quiz struct {
	QuizID           string                   `json:"quiz_id"`
	TeacherID        string                   `json:"teacher_id"`
	Name             string                   `json:"name"`
	Branch           string                   `json:"branch"`
	Year             int                      `json:"year"`
	DurationMinutes  int                      `json:"duration_minutes"`
	Open             bool                     `json:"open"`
	RoomCode         string                   `json:"room_code"`
	WorkbookKey      string                   `json:"workbook_key,omitempty"`
	WorkbookFileName string                   `json:"workbook_file_name,omitempty"`
	Schema           []schema.TableSchema     `json:"schema"`
	KeyRelationships []predictor.Relationship `json:"key_relationships"`
	Questions        []grading.Question       `json:"questions"`
	CreatedAt        time.Time                `json:"created_at"`
}

// HasWorkbook reports whether a dataset has been uploaded for the quiz.
func (q Quiz) HasWorkbook() bool {
	return q.WorkbookKey != ""
}

type CreateQuizInput struct {
	TeacherID        string
	Name             string
	Branch           string
	Year             int
	DurationMinutes  int
	RoomCode         string
	KeyRelationships []predictor.Relationship
	Questions        []grading.Question
}

type SetQuizWorkbookInput struct {
	QuizID   string
	Key      string
	FileName string
	Schema   []schema.TableSchema
}

type Student struct {
	StudentID  string                 `json:"student_id"`
	QuizID     string                 `json:"quiz_id"`
	Name       string                 `json:"name"`
	RollNumber string                 `json:"roll_number"`
	Answers    []grading.GradedAnswer `json:"answers"`
	Marks      float64                `json:"marks"`
	GradedAt   *time.Time             `json:"graded_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// SubmittedAnswers converts the stored answers into grading input.
func (s Student) SubmittedAnswers() []grading.SubmittedAnswer {
	out := make([]grading.SubmittedAnswer, 0, len(s.Answers))
	for _, answer := range s.Answers {
		out = append(out, grading.SubmittedAnswer{Query: answer.AnswerText, MaxMarks: answer.MaxMarks})
	}
	return out
}

type CreateStudentInput struct {
	QuizID     string
	Name       string
	RollNumber string
}

type RecordGradeInput struct {
	StudentID string
	Answers   []grading.GradedAnswer
	Marks     float64
	GradedAt  time.Time
}

// NewRoomCode returns six lowercase hex characters.
func NewRoomCode() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
