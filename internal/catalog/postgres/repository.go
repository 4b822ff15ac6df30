package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/grading"
)

const uniqueViolation = "23505"

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Repository struct {
	db    *sql.DB
	newID func() string
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, newID: uuid.NewString}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateTeacher(ctx context.Context, in catalog.CreateTeacherInput) (catalog.Teacher, error) {
	query := `
INSERT INTO teacher (teacher_id, name, email)
VALUES ($1, $2, $3)
RETURNING created_at`

	teacher := catalog.Teacher{TeacherID: r.newID(), Name: in.Name, Email: in.Email}
	if err := r.db.QueryRowContext(ctx, query, teacher.TeacherID, in.Name, in.Email).Scan(&teacher.CreatedAt); err != nil {
		return catalog.Teacher{}, wrapWriteError("create teacher", err)
	}
	return teacher, nil
}

func (r *Repository) GetTeacher(ctx context.Context, teacherID string) (catalog.Teacher, error) {
	query := `
SELECT teacher_id, name, email, created_at
FROM teacher
WHERE teacher_id = $1`

	var teacher catalog.Teacher
	if err := r.db.QueryRowContext(ctx, query, teacherID).Scan(
		&teacher.TeacherID,
		&teacher.Name,
		&teacher.Email,
		&teacher.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Teacher{}, catalog.ErrNotFound
		}
		return catalog.Teacher{}, fmt.Errorf("get teacher: %w", err)
	}
	return teacher, nil
}

func (r *Repository) CreateAPIKey(ctx context.Context, in catalog.CreateAPIKeyInput) (catalog.APIKey, error) {
	query := `
INSERT INTO api_key (key_id, teacher_id, key_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING created_at, revoked_at`

	key := catalog.APIKey{
		KeyID:     r.newID(),
		TeacherID: in.TeacherID,
		KeyHash:   in.KeyHash,
		Role:      in.Role,
	}
	if err := r.db.QueryRowContext(ctx, query, key.KeyID, in.TeacherID, in.KeyHash, in.Role).Scan(&key.CreatedAt, &key.RevokedAt); err != nil {
		return catalog.APIKey{}, wrapWriteError("create api key", err)
	}
	return key, nil
}

func (r *Repository) GetAPIKeyByHash(ctx context.Context, keyHash string) (catalog.APIKey, error) {
	query := `
SELECT key_id, teacher_id, key_hash, role, created_at, revoked_at
FROM api_key
WHERE key_hash = $1 AND revoked_at IS NULL`

	var key catalog.APIKey
	if err := r.db.QueryRowContext(ctx, query, keyHash).Scan(
		&key.KeyID,
		&key.TeacherID,
		&key.KeyHash,
		&key.Role,
		&key.CreatedAt,
		&key.RevokedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.APIKey{}, catalog.ErrNotFound
		}
		return catalog.APIKey{}, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

const quizColumns = `quiz_id, teacher_id, name, branch, year, duration_minutes, open, room_code,
       workbook_key, workbook_file_name, schema_json, key_relationships, questions, created_at`

func (r *Repository) CreateQuiz(ctx context.Context, in catalog.CreateQuizInput) (catalog.Quiz, error) {
	relationships, err := marshalJSON(in.KeyRelationships)
	if err != nil {
		return catalog.Quiz{}, fmt.Errorf("encode key relationships: %w", err)
	}
	questions, err := marshalJSON(in.Questions)
	if err != nil {
		return catalog.Quiz{}, fmt.Errorf("encode questions: %w", err)
	}

	query := `
INSERT INTO quiz (quiz_id, teacher_id, name, branch, year, duration_minutes, room_code, key_relationships, questions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb)
RETURNING created_at`

	quiz := catalog.Quiz{
		QuizID:           r.newID(),
		TeacherID:        in.TeacherID,
		Name:             in.Name,
		Branch:           in.Branch,
		Year:             in.Year,
		DurationMinutes:  in.DurationMinutes,
		RoomCode:         in.RoomCode,
		KeyRelationships: in.KeyRelationships,
		Questions:        in.Questions,
	}
	if err := r.db.QueryRowContext(ctx, query,
		quiz.QuizID,
		in.TeacherID,
		in.Name,
		in.Branch,
		in.Year,
		in.DurationMinutes,
		in.RoomCode,
		relationships,
		questions,
	).Scan(&quiz.CreatedAt); err != nil {
		return catalog.Quiz{}, wrapWriteError("create quiz", err)
	}
	return quiz, nil
}

func (r *Repository) GetQuiz(ctx context.Context, quizID string) (catalog.Quiz, error) {
	query := `
SELECT ` + quizColumns + `
FROM quiz
WHERE quiz_id = $1`
	quiz, err := scanQuiz(r.db.QueryRowContext(ctx, query, quizID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Quiz{}, catalog.ErrNotFound
		}
		return catalog.Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	return quiz, nil
}

func (r *Repository) GetQuizByRoomCode(ctx context.Context, roomCode string) (catalog.Quiz, error) {
	query := `
SELECT ` + quizColumns + `
FROM quiz
WHERE room_code = $1`
	quiz, err := scanQuiz(r.db.QueryRowContext(ctx, query, roomCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Quiz{}, catalog.ErrNotFound
		}
		return catalog.Quiz{}, fmt.Errorf("get quiz by room code: %w", err)
	}
	return quiz, nil
}

func (r *Repository) ListQuizzes(ctx context.Context, teacherID string) ([]catalog.Quiz, error) {
	query := `
SELECT ` + quizColumns + `
FROM quiz
WHERE teacher_id = $1
ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	quizzes := make([]catalog.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz row: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz rows: %w", err)
	}
	return quizzes, nil
}

// DeleteQuiz removes the quiz and its students. It reports false when no quiz matched.
func (r *Repository) DeleteQuiz(ctx context.Context, quizID string) (bool, error) {
	deleted := false
	err := r.WithTx(ctx, func(tx *TxRepository) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM student WHERE quiz_id = $1`, quizID); err != nil {
			return fmt.Errorf("delete quiz students: %w", err)
		}
		result, err := tx.q.ExecContext(ctx, `DELETE FROM quiz WHERE quiz_id = $1`, quizID)
		if err != nil {
			return fmt.Errorf("delete quiz: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete quiz rows affected: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *Repository) SetQuizOpen(ctx context.Context, quizID string, open bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE quiz SET open = $2 WHERE quiz_id = $1`, quizID, open)
	if err != nil {
		return fmt.Errorf("set quiz open: %w", err)
	}
	return requireAffected(result, "set quiz open")
}

func (r *Repository) SetQuizWorkbook(ctx context.Context, in catalog.SetQuizWorkbookInput) error {
	schemaJSON, err := marshalJSON(in.Schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	query := `
UPDATE quiz
SET workbook_key = $2, workbook_file_name = $3, schema_json = $4::jsonb
WHERE quiz_id = $1`
	result, err := r.db.ExecContext(ctx, query, in.QuizID, in.Key, in.FileName, schemaJSON)
	if err != nil {
		return fmt.Errorf("set quiz workbook: %w", err)
	}
	return requireAffected(result, "set quiz workbook")
}

func (r *Repository) SetQuizQuestions(ctx context.Context, quizID string, questions []grading.Question) error {
	questionsJSON, err := marshalJSON(questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `UPDATE quiz SET questions = $2::jsonb WHERE quiz_id = $1`, quizID, questionsJSON)
	if err != nil {
		return fmt.Errorf("set quiz questions: %w", err)
	}
	return requireAffected(result, "set quiz questions")
}

const studentColumns = `student_id, quiz_id, name, roll_number, answers, marks, graded_at, created_at`

func (r *Repository) CreateStudent(ctx context.Context, in catalog.CreateStudentInput) (catalog.Student, error) {
	query := `
INSERT INTO student (student_id, quiz_id, name, roll_number)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

	student := catalog.Student{
		StudentID:  r.newID(),
		QuizID:     in.QuizID,
		Name:       in.Name,
		RollNumber: in.RollNumber,
		Answers:    []grading.GradedAnswer{},
	}
	if err := r.db.QueryRowContext(ctx, query, student.StudentID, in.QuizID, in.Name, in.RollNumber).Scan(&student.CreatedAt); err != nil {
		return catalog.Student{}, wrapWriteError("create student", err)
	}
	return student, nil
}

func (r *Repository) GetStudent(ctx context.Context, studentID string) (catalog.Student, error) {
	query := `
SELECT ` + studentColumns + `
FROM student
WHERE student_id = $1`
	student, err := scanStudent(r.db.QueryRowContext(ctx, query, studentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Student{}, catalog.ErrNotFound
		}
		return catalog.Student{}, fmt.Errorf("get student: %w", err)
	}
	return student, nil
}

func (r *Repository) ListStudents(ctx context.Context, quizID string) ([]catalog.Student, error) {
	query := `
SELECT ` + studentColumns + `
FROM student
WHERE quiz_id = $1
ORDER BY roll_number ASC`

	rows, err := r.db.QueryContext(ctx, query, quizID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer func() { _ = rows.Close() }()

	students := make([]catalog.Student, 0)
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student row: %w", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student rows: %w", err)
	}
	return students, nil
}

// SaveAnswers replaces the student's answers and clears any earlier grade.
func (r *Repository) SaveAnswers(ctx context.Context, studentID string, answers []grading.GradedAnswer) error {
	answersJSON, err := marshalJSON(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	query := `
UPDATE student
SET answers = $2::jsonb, marks = 0, graded_at = NULL
WHERE student_id = $1`
	result, err := r.db.ExecContext(ctx, query, studentID, answersJSON)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return requireAffected(result, "save answers")
}

func (r *Repository) RecordGrade(ctx context.Context, in catalog.RecordGradeInput) error {
	answersJSON, err := marshalJSON(in.Answers)
	if err != nil {
		return fmt.Errorf("encode graded answers: %w", err)
	}
	query := `
UPDATE student
SET answers = $2::jsonb, marks = $3, graded_at = $4
WHERE student_id = $1`
	result, err := r.db.ExecContext(ctx, query, in.StudentID, answersJSON, in.Marks, in.GradedAt)
	if err != nil {
		return fmt.Errorf("record grade: %w", err)
	}
	return requireAffected(result, "record grade")
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx *TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&TxRepository{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type TxRepository struct {
	q dbTX
}

func scanQuiz(row rowScanner) (catalog.Quiz, error) {
	var (
		quiz              catalog.Quiz
		workbookKey       sql.NullString
		workbookFileName  sql.NullString
		schemaJSON        []byte
		relationshipsJSON []byte
		questionsJSON     []byte
	)
	if err := row.Scan(
		&quiz.QuizID,
		&quiz.TeacherID,
		&quiz.Name,
		&quiz.Branch,
		&quiz.Year,
		&quiz.DurationMinutes,
		&quiz.Open,
		&quiz.RoomCode,
		&workbookKey,
		&workbookFileName,
		&schemaJSON,
		&relationshipsJSON,
		&questionsJSON,
		&quiz.CreatedAt,
	); err != nil {
		return catalog.Quiz{}, err
	}
	quiz.WorkbookKey = workbookKey.String
	quiz.WorkbookFileName = workbookFileName.String
	if err := unmarshalJSON(schemaJSON, &quiz.Schema); err != nil {
		return catalog.Quiz{}, fmt.Errorf("decode quiz schema: %w", err)
	}
	if err := unmarshalJSON(relationshipsJSON, &quiz.KeyRelationships); err != nil {
		return catalog.Quiz{}, fmt.Errorf("decode key relationships: %w", err)
	}
	if err := unmarshalJSON(questionsJSON, &quiz.Questions); err != nil {
		return catalog.Quiz{}, fmt.Errorf("decode questions: %w", err)
	}
	return quiz, nil
}

func scanStudent(row rowScanner) (catalog.Student, error) {
	var (
		student     catalog.Student
		answersJSON []byte
		gradedAt    sql.NullTime
	)
	if err := row.Scan(
		&student.StudentID,
		&student.QuizID,
		&student.Name,
		&student.RollNumber,
		&answersJSON,
		&student.Marks,
		&gradedAt,
		&student.CreatedAt,
	); err != nil {
		return catalog.Student{}, err
	}
	if gradedAt.Valid {
		at := gradedAt.Time
		student.GradedAt = &at
	}
	student.Answers = []grading.GradedAnswer{}
	if err := unmarshalJSON(answersJSON, &student.Answers); err != nil {
		return catalog.Student{}, fmt.Errorf("decode answers: %w", err)
	}
	return student, nil
}

func marshalJSON(value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	if string(encoded) == "null" {
		return "[]", nil
	}
	return string(encoded), nil
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func wrapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, catalog.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ catalog.Repository = (*Repository)(nil)
