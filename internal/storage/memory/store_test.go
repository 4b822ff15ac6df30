package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/querygrade/querygrade/internal/storage"
)

func TestRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	info, err := storage.PutBytes(ctx, store, "quizzes/q1/db.xlsx", []byte("abc"), storage.ContentTypeWorkbook)
	if err != nil {
		t.Fatalf("PutBytes() error = %v", err)
	}
	if info.Size != 3 || info.ETag == "" {
		t.Fatalf("info = %+v", info)
	}

	data, err := storage.ReadAll(ctx, store, "quizzes/q1/db.xlsx", 0)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(data, []byte("abc")) {
		t.Fatalf("data = %q", data)
	}

	if _, err := storage.ReadAll(ctx, store, "quizzes/q1/db.xlsx", 2); err == nil {
		t.Fatal("expected size limit error")
	}

	if err := store.Delete(ctx, "quizzes/q1/db.xlsx"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, "quizzes/q1/db.xlsx"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() missing error = %v", err)
	}
}
