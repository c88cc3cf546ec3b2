package styleref

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSQLStoreInsertPersistsReference(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)
	createdAt := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO threadauto\\.style_references").WithArgs(
		sqlmock.AnyArg(),
		"sample content",
		"topic",
		sqlmock.AnyArg(),
		"manual",
	).WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	ref, err := store.Insert(context.Background(), Reference{
		Content:   "sample content",
		Topic:     "topic",
		Embedding: []float32{0.1, 0.2},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ref.ID == "" {
		t.Fatalf("expected generated id")
	}
	if ref.Source != SourceManual {
		t.Fatalf("expected manual source default, got %s", ref.Source)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreDeleteUnknownReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)

	mock.ExpectExec("DELETE FROM threadauto\\.style_references WHERE id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreListInsertionOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	early := time.Now().Add(-time.Minute)
	if _, err := store.Insert(ctx, Reference{ID: "first", Content: "a", CreatedAt: early}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Insert(ctx, Reference{ID: "second", Content: "b"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	refs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 2 || refs[0].ID != "first" {
		t.Fatalf("expected oldest first, got %+v", refs)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	refs, _ = store.List(ctx)
	if len(refs) != 0 {
		t.Fatalf("clear left %d references", len(refs))
	}
}
