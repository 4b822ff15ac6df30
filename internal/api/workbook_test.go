package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/querygrade/querygrade/internal/catalog"
	"github.com/querygrade/querygrade/internal/storage"
	storagememory "github.com/querygrade/querygrade/internal/storage/memory"
)

func TestDatasetWithDeletedObjectIsMissing(t *testing.T) {
	env := newTestEnv(t, nil)
	quizID, _ := createQuiz(t, env)
	if rr := env.upload("/v1/quizzes/"+quizID+"/workbook", shopWorkbook(t), teacherHeaders); rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rr.Code)
	}
	for _, key := range env.objects.Keys() {
		if err := env.objects.Delete(context.Background(), key); err != nil {
			t.Fatalf("Delete(%s) error = %v", key, err)
		}
	}

	rr := env.do(http.MethodGet, "/v1/quizzes/"+quizID+"/dataset", nil, teacherHeaders)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "DATASET_MISSING" {
		t.Fatalf("body = %#v", body)
	}
}

type countingStore struct {
	*storagememory.Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	c.gets++
	return c.Store.Get(ctx, key)
}

func TestReadQuizDatasetRejectsOversizedObjectBeforeReading(t *testing.T) {
	store := &countingStore{Store: storagememory.New()}
	key := "quizzes/q1/shop.xlsx"
	if _, err := storage.PutBytes(context.Background(), store, key, shopWorkbook(t), storage.ContentTypeWorkbook); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	_, err := readQuizDataset(context.Background(), store, catalog.Quiz{QuizID: "q1", WorkbookKey: key}, 16)
	var parseErr *workbookParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("readQuizDataset() error = %v, want size rejection", err)
	}
	if store.gets != 0 {
		t.Fatalf("Get called %d times for an oversized object", store.gets)
	}

	if _, err := readQuizDataset(context.Background(), store, catalog.Quiz{QuizID: "q1", WorkbookKey: key}, 0); err != nil {
		t.Fatalf("readQuizDataset() without limit error = %v", err)
	}
	if store.gets != 1 {
		t.Fatalf("Get calls = %d, want 1", store.gets)
	}
}
