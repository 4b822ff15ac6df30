package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/dataset"
	"github.com/querygrade/querygrade/internal/schema"
	"github.com/querygrade/querygrade/internal/storage"
)

const workbookFormField = "workbook"

func (s *server) handleUploadWorkbook(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	if s.deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED", "object store dependency is not configured", false, nil)
		return
	}

	limit := s.cfg.HTTP.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, header, err := r.FormFile(workbookFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "WORKBOOK_TOO_LARGE", fmt.Sprintf("workbook exceeds %d bytes", limit), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "WORKBOOK_REQUIRED", "multipart field \"workbook\" is required", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "WORKBOOK_UNREADABLE", "failed to read uploaded workbook", false, map[string]any{"details": err.Error()})
		return
	}
	ds, err := dataset.ReadWorkbook(bytes.NewReader(data))
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "INVALID_WORKBOOK", err.Error(), false, nil)
		return
	}
	schemas := schema.Infer(ds)

	key, err := storage.BuildWorkbookPath(quiz.QuizID, header.Filename)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_WORKBOOK_NAME", err.Error(), false, nil)
		return
	}
	if _, err := storage.PutBytes(r.Context(), s.deps.ObjectStore, key, data, storage.ContentTypeWorkbook); err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", "failed to store workbook", true, map[string]any{"details": err.Error()})
		return
	}
	if err := s.deps.Catalog.SetQuizWorkbook(r.Context(), catalog.SetQuizWorkbookInput{
		QuizID:   quiz.QuizID,
		Key:      key,
		FileName: header.Filename,
		Schema:   schemas,
	}); err != nil {
		writeCatalogError(r.Context(), w, err, "QUIZ_NOT_FOUND", "record workbook")
		return
	}
	if quiz.HasWorkbook() && quiz.WorkbookKey != key {
		if err := s.deps.ObjectStore.Delete(r.Context(), quiz.WorkbookKey); err != nil {
			s.logger().WarnContext(r.Context(), "delete replaced workbook failed",
				slog.String("quiz_id", quiz.QuizID),
				slog.String("key", quiz.WorkbookKey),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger().InfoContext(r.Context(), "workbook uploaded",
		slog.String("quiz_id", quiz.QuizID),
		slog.String("key", key),
		slog.Int("tables", len(ds.Tables)),
		slog.Int("bytes", len(data)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"quiz_id":      quiz.QuizID,
		"workbook_key": key,
		"schema":       schemas,
	})
}

func (s *server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	ds, ok := s.loadDataset(w, r, quiz)
	if !ok {
		return
	}
	tables := make([]map[string]any, 0, len(ds.Tables))
	for _, table := range ds.Tables {
		tables = append(tables, map[string]any{
			"name":    table.Name,
			"columns": table.Columns,
			"rows":    table.Records(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quiz.QuizID, "tables": tables})
}

func (s *server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownedQuiz(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quiz_id":           quiz.QuizID,
		"schema":            quiz.Schema,
		"key_relationships": quiz.KeyRelationships,
	})
}

// loadDataset fetches and parses the quiz workbook, writing the error response when it
// cannot.
func (s *server) loadDataset(w http.ResponseWriter, r *http.Request, quiz catalog.Quiz) (dataset.Dataset, bool) {
	if !quiz.HasWorkbook() {
		writeError(r.Context(), w, http.StatusConflict, "DATASET_MISSING", "no workbook has been uploaded for this quiz", false, nil)
		return dataset.Dataset{}, false
	}
	if s.deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED", "object store dependency is not configured", false, nil)
		return dataset.Dataset{}, false
	}
	ds, err := readQuizDataset(r.Context(), s.deps.ObjectStore, quiz, s.cfg.HTTP.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusConflict, "DATASET_MISSING", "stored workbook is missing", false, map[string]any{"key": quiz.WorkbookKey})
			return dataset.Dataset{}, false
		}
		var parseErr *workbookParseError
		if errors.As(err, &parseErr) {
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "DATASET_LOAD_FAILED", err.Error(), false, nil)
			return dataset.Dataset{}, false
		}
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", "failed to read workbook", true, map[string]any{"details": err.Error()})
		return dataset.Dataset{}, false
	}
	return ds, true
}

type workbookParseError struct {
	err error
}

func (e *workbookParseError) Error() string { return e.err.Error() }
func (e *workbookParseError) Unwrap() error { return e.err }

// readQuizDataset checks the stored workbook with Stat before fetching it, so a
// missing or oversized object is rejected without reading its body.
func readQuizDataset(ctx context.Context, store storage.ObjectStore, quiz catalog.Quiz, limit int64) (dataset.Dataset, error) {
	info, err := store.Stat(ctx, quiz.WorkbookKey)
	if err != nil {
		return dataset.Dataset{}, err
	}
	if limit > 0 && info.Size > limit {
		return dataset.Dataset{}, &workbookParseError{err: fmt.Errorf("stored workbook is %d bytes, over the %d byte limit", info.Size, limit)}
	}
	data, err := storage.ReadAll(ctx, store, quiz.WorkbookKey, limit)
	if err != nil {
		return dataset.Dataset{}, err
	}
	ds, err := dataset.ReadWorkbook(bytes.NewReader(data))
	if err != nil {
		return dataset.Dataset{}, &workbookParseError{err: err}
	}
	return ds, nil
}
