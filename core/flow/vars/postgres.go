package vars

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	pgSelectVariable = `SELECT value FROM user_variables WHERE user_id = $1 AND name = $2`
	pgUpsertVariable = `
		INSERT INTO user_variables (user_id, name, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	pgDeleteVariables = `DELETE FROM user_variables WHERE user_id = $1`
)

// Postgres stores variables in the user_variables table as JSONB.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open sqlx connection.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Get reads and unwraps a variable value.
func (p *Postgres) Get(ctx context.Context, userID int64, name string) (string, bool, error) {
	var raw []byte
	err := p.db.GetContext(ctx, &raw, pgSelectVariable, userID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("vars: select %s: %w", name, err)
	}
	return Unwrap(raw), true, nil
}

// Set upserts the variable as a JSON value.
func (p *Postgres) Set(ctx context.Context, userID int64, name, value string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("vars: marshal %s: %w", name, err)
	}
	if _, err := p.db.ExecContext(ctx, pgUpsertVariable, userID, name, data); err != nil {
		return fmt.Errorf("vars: upsert %s: %w", name, err)
	}
	return nil
}

// HasValue reports whether a non-blank value exists.
func (p *Postgres) HasValue(ctx context.Context, userID int64, name string) (bool, error) {
	v, ok, err := p.Get(ctx, userID, name)
	if err != nil || !ok {
		return false, err
	}
	return nonBlank(v), nil
}

// Clear removes all variables of a user.
func (p *Postgres) Clear(ctx context.Context, userID int64) error {
	if _, err := p.db.ExecContext(ctx, pgDeleteVariables, userID); err != nil {
		return fmt.Errorf("vars: clear user %d: %w", userID, err)
	}
	return nil
}
