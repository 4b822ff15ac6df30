// Package memory is an in-process catalog.Repository for local runs and tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/grading"
)

type Repository struct {
	mu       sync.RWMutex
	now      func() time.Time
	teachers map[string]catalog.Teacher
	keys     map[string]catalog.APIKey
	quizzes  map[string]catalog.Quiz
	students map[string]catalog.Student
}

func NewRepository() *Repository {
	return &Repository{
		now:      func() time.Time { return time.Now().UTC() },
		teachers: map[string]catalog.Teacher{},
		keys:     map[string]catalog.APIKey{},
		quizzes:  map[string]catalog.Quiz{},
		students: map[string]catalog.Student{},
	}
}

func (r *Repository) HealthCheck(context.Context) error {
	return nil
}

func (r *Repository) CreateTeacher(_ context.Context, in catalog.CreateTeacherInput) (catalog.Teacher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.teachers {
		if strings.EqualFold(existing.Email, in.Email) {
			return catalog.Teacher{}, catalog.ErrConflict
		}
	}
	teacher := catalog.Teacher{TeacherID: uuid.NewString(), Name: in.Name, Email: in.Email, CreatedAt: r.now()}
	r.teachers[teacher.TeacherID] = teacher
	return teacher, nil
}

func (r *Repository) GetTeacher(_ context.Context, teacherID string) (catalog.Teacher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	teacher, ok := r.teachers[teacherID]
	if !ok {
		return catalog.Teacher{}, catalog.ErrNotFound
	}
	return teacher, nil
}

func (r *Repository) CreateAPIKey(_ context.Context, in catalog.CreateAPIKeyInput) (catalog.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teachers[in.TeacherID]; !ok {
		return catalog.APIKey{}, catalog.ErrNotFound
	}
	if _, ok := r.keys[in.KeyHash]; ok {
		return catalog.APIKey{}, catalog.ErrConflict
	}
	key := catalog.APIKey{
		KeyID:     uuid.NewString(),
		TeacherID: in.TeacherID,
		KeyHash:   in.KeyHash,
		Role:      in.Role,
		CreatedAt: r.now(),
	}
	r.keys[in.KeyHash] = key
	return key, nil
}

func (r *Repository) GetAPIKeyByHash(_ context.Context, keyHash string) (catalog.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[keyHash]
	if !ok || key.RevokedAt != nil {
		return catalog.APIKey{}, catalog.ErrNotFound
	}
	return key, nil
}

func (r *Repository) CreateQuiz(_ context.Context, in catalog.CreateQuizInput) (catalog.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.quizzes {
		if existing.RoomCode == in.RoomCode {
			return catalog.Quiz{}, catalog.ErrConflict
		}
	}
	quiz := catalog.Quiz{
		QuizID:           uuid.NewString(),
		TeacherID:        in.TeacherID,
		Name:             in.Name,
		Branch:           in.Branch,
		Year:             in.Year,
		DurationMinutes:  in.DurationMinutes,
		RoomCode:         in.RoomCode,
		KeyRelationships: slices.Clone(in.KeyRelationships),
		Questions:        slices.Clone(in.Questions),
		CreatedAt:        r.now(),
	}
	r.quizzes[quiz.QuizID] = quiz
	return cloneQuiz(quiz), nil
}

func (r *Repository) GetQuiz(_ context.Context, quizID string) (catalog.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	quiz, ok := r.quizzes[quizID]
	if !ok {
		return catalog.Quiz{}, catalog.ErrNotFound
	}
	return cloneQuiz(quiz), nil
}

func (r *Repository) GetQuizByRoomCode(_ context.Context, roomCode string) (catalog.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, quiz := range r.quizzes {
		if quiz.RoomCode == roomCode {
			return cloneQuiz(quiz), nil
		}
	}
	return catalog.Quiz{}, catalog.ErrNotFound
}

func (r *Repository) ListQuizzes(_ context.Context, teacherID string) ([]catalog.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	quizzes := make([]catalog.Quiz, 0)
	for _, quiz := range r.quizzes {
		if quiz.TeacherID == teacherID {
			quizzes = append(quizzes, cloneQuiz(quiz))
		}
	}
	slices.SortFunc(quizzes, func(a, b catalog.Quiz) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.QuizID, b.QuizID)
	})
	return quizzes, nil
}

func (r *Repository) DeleteQuiz(_ context.Context, quizID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[quizID]; !ok {
		return false, nil
	}
	delete(r.quizzes, quizID)
	for id, student := range r.students {
		if student.QuizID == quizID {
			delete(r.students, id)
		}
	}
	return true, nil
}

func (r *Repository) SetQuizOpen(_ context.Context, quizID string, open bool) error {
	return r.updateQuiz(quizID, func(q *catalog.Quiz) { q.Open = open })
}

func (r *Repository) SetQuizWorkbook(_ context.Context, in catalog.SetQuizWorkbookInput) error {
	return r.updateQuiz(in.QuizID, func(q *catalog.Quiz) {
		q.WorkbookKey = in.Key
		q.WorkbookFileName = in.FileName
		q.Schema = slices.Clone(in.Schema)
	})
}

func (r *Repository) SetQuizQuestions(_ context.Context, quizID string, questions []grading.Question) error {
	return r.updateQuiz(quizID, func(q *catalog.Quiz) { q.Questions = slices.Clone(questions) })
}

func (r *Repository) CreateStudent(_ context.Context, in catalog.CreateStudentInput) (catalog.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[in.QuizID]; !ok {
		return catalog.Student{}, catalog.ErrNotFound
	}
	for _, existing := range r.students {
		if existing.QuizID == in.QuizID && existing.RollNumber == in.RollNumber {
			return catalog.Student{}, catalog.ErrConflict
		}
	}
	student := catalog.Student{
		StudentID:  uuid.NewString(),
		QuizID:     in.QuizID,
		Name:       in.Name,
		RollNumber: in.RollNumber,
		Answers:    []grading.GradedAnswer{},
		CreatedAt:  r.now(),
	}
	r.students[student.StudentID] = student
	return cloneStudent(student), nil
}

func (r *Repository) GetStudent(_ context.Context, studentID string) (catalog.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	student, ok := r.students[studentID]
	if !ok {
		return catalog.Student{}, catalog.ErrNotFound
	}
	return cloneStudent(student), nil
}

func (r *Repository) ListStudents(_ context.Context, quizID string) ([]catalog.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	students := make([]catalog.Student, 0)
	for _, student := range r.students {
		if student.QuizID == quizID {
			students = append(students, cloneStudent(student))
		}
	}
	slices.SortFunc(students, func(a, b catalog.Student) int {
		return strings.Compare(a.RollNumber, b.RollNumber)
	})
	return students, nil
}

func (r *Repository) SaveAnswers(_ context.Context, studentID string, answers []grading.GradedAnswer) error {
	return r.updateStudent(studentID, func(s *catalog.Student) {
		s.Answers = slices.Clone(answers)
		s.Marks = 0
		s.GradedAt = nil
	})
}

func (r *Repository) RecordGrade(_ context.Context, in catalog.RecordGradeInput) error {
	return r.updateStudent(in.StudentID, func(s *catalog.Student) {
		gradedAt := in.GradedAt
		s.Answers = slices.Clone(in.Answers)
		s.Marks = in.Marks
		s.GradedAt = &gradedAt
	})
}

func (r *Repository) updateQuiz(quizID string, fn func(*catalog.Quiz)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[quizID]
	if !ok {
		return catalog.ErrNotFound
	}
	fn(&quiz)
	r.quizzes[quizID] = quiz
	return nil
}

func (r *Repository) updateStudent(studentID string, fn func(*catalog.Student)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	student, ok := r.students[studentID]
	if !ok {
		return catalog.ErrNotFound
	}
	fn(&student)
	r.students[studentID] = student
	return nil
}

func cloneQuiz(q catalog.Quiz) catalog.Quiz {
	q.Schema = slices.Clone(q.Schema)
	q.KeyRelationships = slices.Clone(q.KeyRelationships)
	q.Questions = slices.Clone(q.Questions)
	return q
}

func cloneStudent(s catalog.Student) catalog.Student {
	s.Answers = slices.Clone(s.Answers)
	if s.GradedAt != nil {
		at := *s.GradedAt
		s.GradedAt = &at
	}
	return s
}

var _ catalog.Repository = (*Repository)(nil)
