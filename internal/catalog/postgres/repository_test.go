package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/predictor"
)

var quizRowColumns = []string{
	"quiz_id", "teacher_id", "name", "branch", "year", "duration_minutes", "open", "room_code",
	"workbook_key", "workbook_file_name", "schema_json", "key_relationships", "questions", "created_at",
}

var studentRowColumns = []string{
	"student_id", "quiz_id", "name", "roll_number", "answers", "marks", "graded_at", "created_at",
}

func TestCreateTeacher(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, "teacher-1")
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO teacher (teacher_id, name, email)`)).
		WithArgs("teacher-1", "Ada", "ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	teacher, err := repo.CreateTeacher(context.Background(), catalog.CreateTeacherInput{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("CreateTeacher() error = %v", err)
	}
	if teacher.TeacherID != "teacher-1" || !teacher.CreatedAt.Equal(now) {
		t.Fatalf("teacher = %+v", teacher)
	}
	assertSQLMock(t, mock)
}

func TestCreateTeacherMapsUniqueViolationToConflict(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, "teacher-1")

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO teacher`)).
		WithArgs("teacher-1", "Ada", "ada@example.com").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "teacher_email_key"})

	_, err := repo.CreateTeacher(context.Background(), catalog.CreateTeacherInput{Name: "Ada", Email: "ada@example.com"})
	if !errors.Is(err, catalog.ErrConflict) {
		t.Fatalf("CreateTeacher() error = %v, want ErrConflict", err)
	}
	assertSQLMock(t, mock)
}

func TestGetAPIKeyByHashReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM api_key
WHERE key_hash = $1 AND revoked_at IS NULL`)).
		WithArgs("hash-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAPIKeyByHash(context.Background(), "hash-1")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetAPIKeyByHash() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestCreateQuizEncodesJSONColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, "quiz-1")
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO quiz (quiz_id, teacher_id, name, branch, year, duration_minutes, room_code, key_relationships, questions)`)).
		WithArgs(
			"quiz-1", "teacher-1", "Joins", "CSE", 2, 30, "a1b2c3",
			`[{"column1":"orders.customer_id","column2":"customers.id"}]`,
			`[{"question":"Count orders","marks":5,"answer":""}]`,
		).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	quiz, err := repo.CreateQuiz(context.Background(), catalog.CreateQuizInput{
		TeacherID:        "teacher-1",
		Name:             "Joins",
		Branch:           "CSE",
		Year:             2,
		DurationMinutes:  30,
		RoomCode:         "a1b2c3",
		KeyRelationships: []predictor.Relationship{{Column1: "orders.customer_id", Column2: "customers.id"}},
		Questions:        []grading.Question{{Text: "Count orders", Marks: 5}},
	})
	if err != nil {
		t.Fatalf("CreateQuiz() error = %v", err)
	}
	if quiz.QuizID != "quiz-1" || quiz.Open {
		t.Fatalf("quiz = %+v", quiz)
	}
	assertSQLMock(t, mock)
}

func TestCreateQuizWithNilSlicesStoresEmptyArrays(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, "quiz-1")

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO quiz`)).
		WithArgs("quiz-1", "teacher-1", "Empty", "", 0, 0, "ffffff", "[]", "[]").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	if _, err := repo.CreateQuiz(context.Background(), catalog.CreateQuizInput{
		TeacherID: "teacher-1",
		Name:      "Empty",
		RoomCode:  "ffffff",
	}); err != nil {
		t.Fatalf("CreateQuiz() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestGetQuizDecodesJSONColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM quiz
WHERE quiz_id = $1`)).
		WithArgs("quiz-1").
		WillReturnRows(sqlmock.NewRows(quizRowColumns).AddRow(
			"quiz-1", "teacher-1", "Joins", "CSE", 2, 30, true, "a1b2c3",
			"quizzes/quiz-1/shop.xlsx", "shop.xlsx",
			[]byte(`[{"table_name":"orders","columns":["id","total"],"dtypes":["INTEGER","FLOAT"]}]`),
			[]byte(`[{"column1":"orders.customer_id","column2":"customers.id"}]`),
			[]byte(`[{"question":"Count orders","marks":5,"answer":"SELECT COUNT(*) FROM orders"}]`),
			now,
		))

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("GetQuiz() error = %v", err)
	}
	if !quiz.Open || !quiz.HasWorkbook() {
		t.Fatalf("quiz = %+v", quiz)
	}
	if len(quiz.Schema) != 1 || quiz.Schema[0].TableName != "orders" || len(quiz.Schema[0].DTypes) != 2 {
		t.Fatalf("Schema = %+v", quiz.Schema)
	}
	if len(quiz.KeyRelationships) != 1 || quiz.KeyRelationships[0].Column2 != "customers.id" {
		t.Fatalf("KeyRelationships = %+v", quiz.KeyRelationships)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].ReferenceQuery != "SELECT COUNT(*) FROM orders" {
		t.Fatalf("Questions = %+v", quiz.Questions)
	}
	assertSQLMock(t, mock)
}

func TestGetQuizByRoomCodeReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE room_code = $1`)).
		WithArgs("zzzzzz").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetQuizByRoomCode(context.Background(), "zzzzzz")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetQuizByRoomCode() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestListQuizzesHandlesNullWorkbook(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE teacher_id = $1
ORDER BY created_at DESC`)).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows(quizRowColumns).
			AddRow("quiz-2", "teacher-1", "Aggregates", "IT", 3, 45, false, "0f0f0f", nil, nil, []byte(`[]`), []byte(`[]`), []byte(`[]`), now).
			AddRow("quiz-1", "teacher-1", "Joins", "CSE", 2, 30, true, "a1b2c3", "quizzes/quiz-1/shop.xlsx", "shop.xlsx", []byte(`[]`), []byte(`[]`), []byte(`[]`), now))

	quizzes, err := repo.ListQuizzes(context.Background(), "teacher-1")
	if err != nil {
		t.Fatalf("ListQuizzes() error = %v", err)
	}
	if len(quizzes) != 2 {
		t.Fatalf("len(quizzes) = %d", len(quizzes))
	}
	if quizzes[0].HasWorkbook() || !quizzes[1].HasWorkbook() {
		t.Fatalf("workbook flags = %v/%v", quizzes[0].HasWorkbook(), quizzes[1].HasWorkbook())
	}
	assertSQLMock(t, mock)
}

func TestDeleteQuizRemovesStudentsInTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM student WHERE quiz_id = $1`)).
		WithArgs("quiz-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM quiz WHERE quiz_id = $1`)).
		WithArgs("quiz-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.DeleteQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("DeleteQuiz() error = %v", err)
	}
	if !deleted {
		t.Fatal("DeleteQuiz() = false, want true")
	}
	assertSQLMock(t, mock)
}

func TestDeleteQuizRollsBackOnFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM student WHERE quiz_id = $1`)).
		WithArgs("quiz-1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if _, err := repo.DeleteQuiz(context.Background(), "quiz-1"); err == nil {
		t.Fatal("DeleteQuiz() expected error")
	}
	assertSQLMock(t, mock)
}

func TestSetQuizOpenReturnsNotFoundWhenNoRows(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE quiz SET open = $2 WHERE quiz_id = $1`)).
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetQuizOpen(context.Background(), "missing", true); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("SetQuizOpen() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestCreateStudentMapsDuplicateRollNumber(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, "student-1")

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO student (student_id, quiz_id, name, roll_number)`)).
		WithArgs("student-1", "quiz-1", "Grace", "R-07").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "student_quiz_id_roll_number_key"})

	_, err := repo.CreateStudent(context.Background(), catalog.CreateStudentInput{QuizID: "quiz-1", Name: "Grace", RollNumber: "R-07"})
	if !errors.Is(err, catalog.ErrConflict) {
		t.Fatalf("CreateStudent() error = %v, want ErrConflict", err)
	}
	assertSQLMock(t, mock)
}

func TestGetStudentDecodesAnswers(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM student
WHERE student_id = $1`)).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow(
			"student-1", "quiz-1", "Grace", "R-07",
			[]byte(`[{"answer":"SELECT 1","marks_awarded":5,"max_marks":5,"outcome":"correct"}]`),
			5.0, now, now,
		))

	student, err := repo.GetStudent(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("GetStudent() error = %v", err)
	}
	if len(student.Answers) != 1 || student.Answers[0].Outcome != grading.OutcomeCorrect {
		t.Fatalf("Answers = %+v", student.Answers)
	}
	if student.GradedAt == nil || student.Marks != 5 {
		t.Fatalf("student = %+v", student)
	}
	submitted := student.SubmittedAnswers()
	if len(submitted) != 1 || submitted[0].Query != "SELECT 1" || submitted[0].MaxMarks != 5 {
		t.Fatalf("SubmittedAnswers() = %+v", submitted)
	}
	assertSQLMock(t, mock)
}

func TestRecordGrade(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	gradedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`SET answers = $2::jsonb, marks = $3, graded_at = $4`)).
		WithArgs("student-1", `[{"answer":"SELECT 1","marks_awarded":0,"max_marks":5,"outcome":"incorrect"}]`, 0.0, gradedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordGrade(context.Background(), catalog.RecordGradeInput{
		StudentID: "student-1",
		Answers:   []grading.GradedAnswer{{AnswerText: "SELECT 1", MaxMarks: 5, Outcome: grading.OutcomeIncorrect}},
		Marks:     0,
		GradedAt:  gradedAt,
	})
	if err != nil {
		t.Fatalf("RecordGrade() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func newTestRepository(db *sql.DB, id string) *Repository {
	repo := NewRepository(db)
	repo.newID = func() string { return id }
	return repo
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
