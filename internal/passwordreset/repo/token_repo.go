package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/entity"
)

// NOTE: expected table schema (Postgres), created by EnsureTable:
// CREATE TABLE password_reset_tokens (
//   id TEXT PRIMARY KEY,
//   token TEXT NOT NULL UNIQUE,
//   user_id TEXT NOT NULL UNIQUE,
//   expiry_date TIMESTAMPTZ NOT NULL,
//   created_at TIMESTAMPTZ NOT NULL
// );

type TokenRepo struct {
	db *sqlx.DB
}

func NewTokenRepo(db *sqlx.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

func (r *TokenRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS password_reset_tokens (
  id TEXT PRIMARY KEY,
  token TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL UNIQUE,
  expiry_date TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_password_reset_tokens_expiry ON password_reset_tokens(expiry_date);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *TokenRepo) Save(ctx context.Context, t *entity.ResetToken) error {
	const q = `INSERT INTO password_reset_tokens (id, token, user_id, expiry_date, created_at)
		VALUES (:id, :token, :user_id, :expiry_date, :created_at)
		ON CONFLICT (user_id) DO UPDATE
		SET token = EXCLUDED.token, expiry_date = EXCLUDED.expiry_date, created_at = EXCLUDED.created_at`
	_, err := r.db.NamedExecContext(ctx, q, t)
	return err
}

func (r *TokenRepo) Consume(ctx context.Context, token string) (*entity.ResetToken, error) {
	var t entity.ResetToken
	const q = `DELETE FROM password_reset_tokens WHERE token = $1
		RETURNING id, token, user_id, expiry_date, created_at`
	if err := r.db.GetContext(ctx, &t, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID)
	return err
}
