package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/storage"
	"github.com/querygrade/querygrade/internal/storage/memory"
)

func sampleRun() Run {
	return Run{
		QuizID:    "quiz-1",
		StudentID: "student-1",
		GradedAt:  time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
		Report: grading.Report{
			Answers: []grading.GradedAnswer{
				{AnswerText: "SELECT 1", MarksAwarded: 2, MaxMarks: 2, Outcome: grading.OutcomeCorrect},
				{AnswerText: "SELEC", MarksAwarded: 0, MaxMarks: 3, Outcome: grading.OutcomeStudentExecutionFailed, Error: "syntax error"},
			},
			TotalAwarded: 2,
			TotalMax:     5,
		},
	}
}

func TestEncodeRun(t *testing.T) {
	data, count, err := EncodeRun(sampleRun())
	if err != nil {
		t.Fatalf("EncodeRun() error = %v", err)
	}
	if count != 2 || len(data) == 0 {
		t.Fatalf("count=%d bytes=%d", count, len(data))
	}

	reader := parquet.NewGenericReader[parquetAnswer](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetAnswer, 2)
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("read rows = %d", n)
	}
	if rows[0].Item != 1 || rows[1].Outcome != "student_execution_failed" || rows[1].ErrorText != "syntax error" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].RunTotalMax != 5 {
		t.Fatalf("run total max = %v", rows[0].RunTotalMax)
	}
}

func TestEncodeRunRecordsEmptySubmission(t *testing.T) {
	run := sampleRun()
	run.Report = grading.Report{}
	_, count, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("EncodeRun() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d", count)
	}

	if _, _, err := EncodeRun(Run{}); err == nil {
		t.Fatal("expected missing id error")
	}
}

func TestArchiverWritesUnderGradePath(t *testing.T) {
	store := memory.New()
	key, err := NewArchiver(store, nil).Write(context.Background(), sampleRun())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := "grades/quiz-1/student-1/1772442000.parquet"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
	info, err := store.Stat(context.Background(), key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size == 0 {
		t.Fatal("expected archived bytes")
	}
}

func TestWriteBestEffortSwallowsFailures(t *testing.T) {
	archiver := NewArchiver(failingStore{}, nil)
	archiver.WriteBestEffort(context.Background(), sampleRun())

	var nilArchiver *Archiver
	nilArchiver.WriteBestEffort(context.Background(), sampleRun())
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, errors.New("bucket unavailable")
}

func (failingStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (failingStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func (failingStore) Delete(context.Context, string) error {
	return nil
}
