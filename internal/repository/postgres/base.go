package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/patientflow/internal/repository"
)

const uniqueViolation = "23505"

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// exists reports whether a row with id exists in table. Used to tell a lost
// conditional update apart from a missing row.
func (r *BaseRepository) exists(ctx context.Context, table string, id interface{}) (bool, error) {
	var found bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := r.db.GetContext(ctx, &found, query, id); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return found, nil
}

// missOrConflict resolves a conditional update that matched no row.
func (r *BaseRepository) missOrConflict(ctx context.Context, table string, id interface{}) error {
	found, err := r.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !found {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// wrap maps driver errors onto the repository sentinels.
func wrap(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return repository.ErrNotFound
	case isUniqueViolation(err):
		return repository.ErrDuplicate
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// nullJSON keeps empty documents NULL instead of sending an empty string to jsonb.
func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
