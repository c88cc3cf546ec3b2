package styleref

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type Store interface {
	Insert(ctx context.Context, ref Reference) (Reference, error)
	List(ctx context.Context) ([]Reference, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the references table sized for dims-wide vectors.
// When the stored column width differs the old embeddings came from another
// model and cannot be searched, so the table is truncated and re-typed.
func (s *SQLStore) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", dims)
	}
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS threadauto`,
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS threadauto.style_references (
			id UUID PRIMARY KEY,
			content TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			source TEXT NOT NULL DEFAULT 'manual',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dims),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure style reference schema: %w", err)
		}
	}

	// pgvector stores the dimension count in atttypmod for vector(N) columns.
	var current int
	err := s.db.QueryRowContext(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'threadauto.style_references'::regclass
		  AND attname = 'embedding'
	`).Scan(&current)
	if err != nil {
		return fmt.Errorf("query embedding dimensions: %w", err)
	}
	if current == dims {
		return nil
	}
	migrate := []string{
		`TRUNCATE threadauto.style_references`,
		fmt.Sprintf(`ALTER TABLE threadauto.style_references ALTER COLUMN embedding TYPE vector(%d)`, dims),
	}
	for _, stmt := range migrate {
		if _, execErr := s.db.ExecContext(ctx, stmt); execErr != nil {
			return fmt.Errorf("migrate embedding dimensions (%d to %d): %w", current, dims, execErr)
		}
	}
	return nil
}

func (s *SQLStore) Insert(ctx context.Context, ref Reference) (Reference, error) {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.Source == "" {
		ref.Source = SourceManual
	}

	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO threadauto.style_references (id, content, topic, embedding, source, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`,
		ref.ID,
		ref.Content,
		ref.Topic,
		pgvector.NewVector(ref.Embedding),
		string(ref.Source),
	).Scan(&createdAt)
	if err != nil {
		return Reference{}, fmt.Errorf("insert style reference: %w", err)
	}
	ref.CreatedAt = createdAt
	return ref, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, topic, embedding, source, created_at
		FROM threadauto.style_references
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list style references: %w", err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var (
			ref       Reference
			embedding pgvector.Vector
			source    string
		)
		if err := rows.Scan(&ref.ID, &ref.Content, &ref.Topic, &embedding, &source, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan style reference: %w", err)
		}
		ref.Embedding = embedding.Slice()
		ref.Source = Source(source)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate style references: %w", err)
	}
	return refs, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM threadauto.style_references WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete style reference: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM threadauto.style_references`); err != nil {
		return fmt.Errorf("clear style references: %w", err)
	}
	return nil
}

// MemoryStore keeps references in process memory for desktop mode.
type MemoryStore struct {
	mu   sync.RWMutex
	refs map[string]Reference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{refs: make(map[string]Reference)}
}

func (s *MemoryStore) Insert(_ context.Context, ref Reference) (Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.Source == "" {
		ref.Source = SourceManual
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	s.refs[ref.ID] = ref
	return ref, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Reference, 0, len(s.refs))
	for _, ref := range s.refs {
		out = append(out, ref)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[id]; !ok {
		return ErrNotFound
	}
	delete(s.refs, id)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = make(map[string]Reference)
	return nil
}
