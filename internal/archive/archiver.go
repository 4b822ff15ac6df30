package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/querygrade/querygrade/internal/observability"
	"github.com/querygrade/querygrade/internal/storage"
)

type Archiver struct {
	Store  storage.ObjectStore
	Logger *slog.Logger
}

func NewArchiver(store storage.ObjectStore, logger *slog.Logger) *Archiver {
	return &Archiver{Store: store, Logger: logger}
}

// Write stores the run and returns its object key.
func (a *Archiver) Write(ctx context.Context, run Run) (string, error) {
	if a == nil || a.Store == nil {
		return "", fmt.Errorf("archive store is not configured")
	}
	key, err := storage.BuildGradeArchivePath(run.QuizID, run.StudentID, run.GradedAt)
	if err != nil {
		return "", err
	}
	data, rows, err := EncodeRun(run)
	if err != nil {
		return "", err
	}
	if _, err := storage.PutBytes(ctx, a.Store, key, data, storage.ContentTypeParquet); err != nil {
		return "", fmt.Errorf("put grade archive: %w", err)
	}
	if a.Logger != nil {
		a.Logger.DebugContext(ctx, "grade archive written",
			slog.String("key", key),
			slog.Int("rows", rows),
		)
	}
	return key, nil
}

// WriteBestEffort archives the run and only logs failures; grading results never
// depend on the archive.
func (a *Archiver) WriteBestEffort(ctx context.Context, run Run) {
	if a == nil || a.Store == nil {
		return
	}
	if _, err := a.Write(ctx, run); err != nil {
		observability.IncrementArchiveFailure()
		if a.Logger != nil {
			a.Logger.WarnContext(ctx, "grade archive failed",
				slog.String("quiz_id", run.QuizID),
				slog.String("student_id", run.StudentID),
				slog.String("error", err.Error()),
			)
		}
	}
}
