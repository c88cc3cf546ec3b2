package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// SQLStore persists settings as a single JSONB row, read-modify-write under
// a transaction with a row lock.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the settings table when it does not exist yet.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS threadauto`,
		`CREATE TABLE IF NOT EXISTS threadauto.settings (
			id INT PRIMARY KEY CHECK (id = 1),
			data JSONB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure settings schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context) (Settings, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM threadauto.settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return decodeSettings(raw)
}

func (s *SQLStore) Set(ctx context.Context, update Update) (Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Settings{}, fmt.Errorf("begin settings tx: %w", err)
	}
	defer tx.Rollback()

	current := Defaults()
	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM threadauto.settings WHERE id = 1 FOR UPDATE`).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Settings{}, fmt.Errorf("lock settings row: %w", err)
	}
	if err == nil {
		current, err = decodeSettings(raw)
		if err != nil {
			return Settings{}, err
		}
	}

	merged := merge(current, update)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO threadauto.settings (id, data)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, encoded); err != nil {
		return Settings{}, fmt.Errorf("write settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Settings{}, fmt.Errorf("commit settings: %w", err)
	}
	return merged, nil
}

func decodeSettings(raw []byte) (Settings, error) {
	// Fields absent in the stored document fall back to defaults so new
	// knobs pick up sane values without a migration.
	out := Defaults()
	if err := json.Unmarshal(raw, &out); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// MemoryStore keeps settings in process memory, starting from Defaults.
type MemoryStore struct {
	mu      sync.RWMutex
	current Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{current: Defaults()}
}

func (s *MemoryStore) Get(_ context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.current), nil
}

func (s *MemoryStore) Set(_ context.Context, update Update) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = merge(s.current, update)
	return cloneSettings(s.current), nil
}
