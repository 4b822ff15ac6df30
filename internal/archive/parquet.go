// Package archive keeps an append-only parquet record of every grading run.
package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querygrade/querygrade/internal/grading"
)

type Run struct {
	QuizID    string
	StudentID string
	GradedAt  time.Time
	Report    grading.Report
}

type parquetAnswer struct {
	QuizID          string  `parquet:"quiz_id"`
	StudentID       string  `parquet:"student_id"`
	GradedAtUnixMs  int64   `parquet:"graded_at_unix_ms"`
	Item            int32   `parquet:"item"`
	AnswerText      string  `parquet:"answer"`
	MarksAwarded    float64 `parquet:"marks_awarded"`
	MaxMarks        float64 `parquet:"max_marks"`
	Outcome         string  `parquet:"outcome"`
	ErrorText       string  `parquet:"error"`
	RunTotalAwarded float64 `parquet:"run_total_awarded"`
	RunTotalMax     float64 `parquet:"run_total_max"`
}

// EncodeRun writes one row per graded answer. A run with no items is still recorded
// so empty submissions leave a trace.
func EncodeRun(run Run) ([]byte, int, error) {
	if run.QuizID == "" || run.StudentID == "" {
		return nil, 0, fmt.Errorf("quiz id and student id are required")
	}
	gradedAt := run.GradedAt.UTC().UnixMilli()

	rows := make([]parquetAnswer, 0, max(len(run.Report.Answers), 1))
	for i, answer := range run.Report.Answers {
		rows = append(rows, parquetAnswer{
			QuizID:          run.QuizID,
			StudentID:       run.StudentID,
			GradedAtUnixMs:  gradedAt,
			Item:            int32(i + 1),
			AnswerText:      answer.AnswerText,
			MarksAwarded:    answer.MarksAwarded,
			MaxMarks:        answer.MaxMarks,
			Outcome:         string(answer.Outcome),
			ErrorText:       answer.Error,
			RunTotalAwarded: run.Report.TotalAwarded,
			RunTotalMax:     run.Report.TotalMax,
		})
	}
	if len(rows) == 0 {
		rows = append(rows, parquetAnswer{
			QuizID:         run.QuizID,
			StudentID:      run.StudentID,
			GradedAtUnixMs: gradedAt,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetAnswer](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, 0, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), len(rows), nil
}
