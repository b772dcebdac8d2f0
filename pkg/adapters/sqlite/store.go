// Package sqlite persists the audit ledger and checkpoints in a SQLite file.
// The schema is managed by golang-migrate from embedded migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/authgate/pkg/domain"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements ports.LedgerStore and ports.CheckpointStore.
type Store struct {
	db *sql.DB
}

// Open migrates the database at path to the latest schema and opens it.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := Migrate(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Migrate applies all up migrations to the database at path.
func Migrate(path string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+path)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts the entry at its chain index.
func (s *Store) Append(ctx context.Context, entry domain.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.ActionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (chain_index, action_id, own_hash, body) VALUES (?, ?, ?, ?)`,
		entry.ChainIndex, entry.ActionID, entry.OwnHash, string(body))
	if err != nil {
		return fmt.Errorf("append entry %s: %w", entry.ActionID, err)
	}
	return nil
}

// Entries returns every entry ordered by chain index.
func (s *Store) Entries(ctx context.Context) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM ledger_entries ORDER BY chain_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e domain.AuditEntry
		if err := domain.DecodeJSON([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", len(out), err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Seal records the seal flag.
func (s *Store) Seal(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO ledger_meta (key, value) VALUES ('sealed', 'true')`)
	return err
}

// Sealed reports the seal flag.
func (s *Store) Sealed(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = 'sealed'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// Put stores a checkpoint. A second checkpoint for the same action fails.
func (s *Store) Put(ctx context.Context, cp domain.Checkpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", cp.ActionID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO checkpoints (action_id, created_at, body) VALUES (?, ?, ?)`,
		cp.ActionID, cp.CreatedAt.UTC().Format(time.RFC3339Nano), string(body))
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", cp.ActionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("checkpoint for action %s already exists", cp.ActionID)
	}
	return nil
}

// Get loads a checkpoint.
func (s *Store) Get(ctx context.Context, actionID string) (domain.Checkpoint, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM checkpoints WHERE action_id = ?`, actionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, fmt.Errorf("%w: %s", domain.ErrCheckpointNotFound, actionID)
	}
	if err != nil {
		return domain.Checkpoint{}, err
	}
	var cp domain.Checkpoint
	if err := domain.DecodeJSON([]byte(body), &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", actionID, err)
	}
	return cp, nil
}

// Delete purges a checkpoint.
func (s *Store) Delete(ctx context.Context, actionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE action_id = ?`, actionID)
	return err
}

// List returns the ids of stored checkpoints in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action_id FROM checkpoints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}
