package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"slotgate/pkg/platform/sentinel"
)

// PostgresStore persists slots in a single table keyed by (instance, slot).
// Apply runs the whole batch in one transaction.
type PostgresStore struct {
	db       *sql.DB
	instance string
}

func NewPostgres(db *sql.DB, instance string) *PostgresStore {
	return &PostgresStore{db: db, instance: instance}
}

// EnsureSchema creates the slots table if it does not exist. Called once at
// startup; deployments with managed migrations can run the same DDL there.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS slots (
			instance TEXT  NOT NULL,
			slot     BYTEA NOT NULL,
			value    BYTEA NOT NULL,
			PRIMARY KEY (instance, slot)
		)`)
	if err != nil {
		return fmt.Errorf("ensure slots schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, slot Slot) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM slots WHERE instance = $1 AND slot = $2`,
		s.instance, slot[:],
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", slot.Hex(), err)
	}
	return value, nil
}

func (s *PostgresStore) Apply(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range writes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO slots (instance, slot, value) VALUES ($1, $2, $3)
			ON CONFLICT (instance, slot) DO UPDATE SET value = EXCLUDED.value`,
			s.instance, w.Slot[:], w.Value,
		)
		if err != nil {
			return fmt.Errorf("write slot %s: %w", w.Slot.Hex(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot batch: %w", err)
	}
	return nil
}

// PostgresFactory scopes stores to instances by table key.
type PostgresFactory struct {
	db *sql.DB
}

func NewPostgresFactory(db *sql.DB) *PostgresFactory {
	return &PostgresFactory{db: db}
}

func (f *PostgresFactory) ForInstance(id string) Store {
	return NewPostgres(f.db, id)
}
