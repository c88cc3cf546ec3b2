package posts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSQLStoreSavePersistsPost(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)
	createdAt := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO threadauto\\.posts").WithArgs(
		sqlmock.AnyArg(),
		"aggro",
		"hot take",
		"go generics",
		sqlmock.AnyArg(),
		"draft",
		nil,
		nil,
		"",
		"",
	).WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	post, err := store.Save(context.Background(), Post{
		Type:    TypeAggro,
		Content: "hot take",
		Topic:   "go generics",
	})
	if err != nil {
		t.Fatalf("save post: %v", err)
	}
	if post.ID == "" {
		t.Fatalf("expected generated id")
	}
	if post.Status != StatusDraft {
		t.Fatalf("expected draft status, got %s", post.Status)
	}
	if post.CreatedAt.IsZero() {
		t.Fatalf("expected created_at set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)

	mock.ExpectQuery("SELECT .+ FROM threadauto\\.posts WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStoreScheduleSetsPending(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)
	at := time.Now().Add(time.Hour)

	mock.ExpectExec("UPDATE threadauto\\.posts").
		WithArgs("post-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Schedule(context.Background(), "post-1", at); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreScheduleUnknownIDReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)

	mock.ExpectExec("UPDATE threadauto\\.posts").
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Schedule(context.Background(), "missing", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStoreListByStatusScansRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)
	scheduled := time.Now().Add(30 * time.Minute)

	rows := sqlmock.NewRows([]string{
		"id", "post_type", "content", "topic", "thread", "status",
		"scheduled_at", "published_at", "external_post_id", "error_message", "created_at",
	}).AddRow(
		"post-1", "insight", "body", "topic", []byte(`["part two"]`), "pending",
		scheduled, nil, "", "", time.Now(),
	)

	mock.ExpectQuery("SELECT .+ FROM threadauto\\.posts WHERE status").
		WithArgs("pending").
		WillReturnRows(rows)

	got, err := store.ListByStatus(context.Background(), StatusPending)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if got[0].ScheduledAt == nil {
		t.Fatalf("expected scheduled_at set for pending post")
	}
	if len(got[0].Thread) != 1 || got[0].Thread[0] != "part two" {
		t.Fatalf("unexpected thread %v", got[0].Thread)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	post, err := store.Save(ctx, Post{Type: TypeBrand, Content: "who we are"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	at := time.Now().Add(time.Hour)
	if err := store.Schedule(ctx, post.ID, at); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	got, err := store.Get(ctx, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending || got.ScheduledAt == nil {
		t.Fatalf("expected pending with scheduled_at, got %s %v", got.Status, got.ScheduledAt)
	}

	if err := store.ClearSchedule(ctx, post.ID); err != nil {
		t.Fatalf("clear schedule: %v", err)
	}
	got, _ = store.Get(ctx, post.ID)
	if got.Status != StatusDraft || got.ScheduledAt != nil {
		t.Fatalf("expected draft without scheduled_at, got %s %v", got.Status, got.ScheduledAt)
	}

	now := time.Now().UTC()
	if err := store.MarkPublished(ctx, post.ID, "ext-1", now); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	got, _ = store.Get(ctx, post.ID)
	if got.Status != StatusPublished || got.ExternalPostID != "ext-1" || got.PublishedAt == nil {
		t.Fatalf("unexpected published state %+v", got)
	}
	if got.ScheduledAt != nil {
		t.Fatalf("published post should not carry scheduled_at")
	}

	if err := store.Delete(ctx, post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	if _, err := store.Save(ctx, Post{ID: "old", Type: TypeProof, Content: "old", CreatedAt: old}); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if _, err := store.Save(ctx, Post{ID: "new", Type: TypeProof, Content: "new", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("save new: %v", err)
	}

	got, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" {
		t.Fatalf("expected newest first, got %+v", got)
	}
}
