package posts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a post id has no matching row.
var ErrNotFound = errors.New("post not found")

type Store interface {
	Save(ctx context.Context, post Post) (Post, error)
	Get(ctx context.Context, id string) (Post, error)
	List(ctx context.Context, limit int) ([]Post, error)
	ListByStatus(ctx context.Context, status PostStatus) ([]Post, error)
	Delete(ctx context.Context, id string) error
	Schedule(ctx context.Context, id string, at time.Time) error
	ClearSchedule(ctx context.Context, id string) error
	MarkPublished(ctx context.Context, id, externalID string, at time.Time) error
	MarkFailed(ctx context.Context, id, message string) error
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the posts table when it does not exist yet.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS threadauto`,
		`CREATE TABLE IF NOT EXISTS threadauto.posts (
			id UUID PRIMARY KEY,
			post_type TEXT NOT NULL,
			content TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			thread JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'draft',
			scheduled_at TIMESTAMPTZ,
			published_at TIMESTAMPTZ,
			external_post_id TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS posts_status_idx ON threadauto.posts (status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure posts schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, post Post) (Post, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Status == "" {
		post.Status = StatusDraft
	}
	threadJSON, err := json.Marshal(post.Thread)
	if err != nil {
		return Post{}, fmt.Errorf("encode thread: %w", err)
	}

	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO threadauto.posts (
			id, post_type, content, topic, thread, status,
			scheduled_at, published_at, external_post_id, error_message, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			topic = EXCLUDED.topic,
			thread = EXCLUDED.thread,
			status = EXCLUDED.status,
			scheduled_at = EXCLUDED.scheduled_at,
			published_at = EXCLUDED.published_at,
			external_post_id = EXCLUDED.external_post_id,
			error_message = EXCLUDED.error_message
		RETURNING created_at
	`,
		post.ID,
		string(post.Type),
		post.Content,
		post.Topic,
		threadJSON,
		string(post.Status),
		post.ScheduledAt,
		post.PublishedAt,
		post.ExternalPostID,
		post.ErrorMessage,
	).Scan(&createdAt)
	if err != nil {
		return Post{}, fmt.Errorf("save post: %w", err)
	}
	post.CreatedAt = createdAt
	return post, nil
}

const postColumns = `id, post_type, content, topic, thread, status,
	scheduled_at, published_at, external_post_id, error_message, created_at`

func (s *SQLStore) Get(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM threadauto.posts WHERE id = $1`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM threadauto.posts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return collectPosts(rows)
}

func (s *SQLStore) ListByStatus(ctx context.Context, status PostStatus) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM threadauto.posts WHERE status = $1 ORDER BY created_at DESC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list posts by status: %w", err)
	}
	return collectPosts(rows)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threadauto.posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLStore) Schedule(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threadauto.posts
		SET status = 'pending', scheduled_at = $2, error_message = ''
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("schedule post: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLStore) ClearSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threadauto.posts
		SET status = 'draft', scheduled_at = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear post schedule: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLStore) MarkPublished(ctx context.Context, id, externalID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threadauto.posts
		SET status = 'published', scheduled_at = NULL, published_at = $2,
			external_post_id = $3, error_message = ''
		WHERE id = $1
	`, id, at, externalID)
	if err != nil {
		return fmt.Errorf("mark post published: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLStore) MarkFailed(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threadauto.posts
		SET status = 'failed', scheduled_at = NULL, error_message = $2
		WHERE id = $1
	`, id, message)
	if err != nil {
		return fmt.Errorf("mark post failed: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var (
		post        Post
		postType    string
		status      string
		threadJSON  []byte
		scheduledAt sql.NullTime
		publishedAt sql.NullTime
	)
	err := row.Scan(
		&post.ID,
		&postType,
		&post.Content,
		&post.Topic,
		&threadJSON,
		&status,
		&scheduledAt,
		&publishedAt,
		&post.ExternalPostID,
		&post.ErrorMessage,
		&post.CreatedAt,
	)
	if err != nil {
		return Post{}, err
	}
	post.Type = PostType(postType)
	post.Status = PostStatus(status)
	if scheduledAt.Valid {
		t := scheduledAt.Time
		post.ScheduledAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	if len(threadJSON) > 0 {
		if err := json.Unmarshal(threadJSON, &post.Thread); err != nil {
			return Post{}, fmt.Errorf("decode thread: %w", err)
		}
	}
	return post, nil
}

func collectPosts(rows *sql.Rows) ([]Post, error) {
	defer rows.Close()
	var out []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}
