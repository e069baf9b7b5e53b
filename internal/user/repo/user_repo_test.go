package repo

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mock
}

var userRowColumns = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name", "phone_number", "role",
	"enabled", "account_non_expired", "account_non_locked", "credentials_non_expired", "created_at", "updated_at",
}

func TestUserRepoCreateMapsUniqueViolations(t *testing.T) {
	r, mock := newMockRepo(t)
	insert := regexp.QuoteMeta(`INSERT INTO users`)

	mock.ExpectExec(insert).WillReturnError(&pq.Error{Code: "23505", Constraint: "uniq_email"})
	mock.ExpectExec(insert).WillReturnError(&pq.Error{Code: "23505", Constraint: "uniq_username"})
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	assert.ErrorIs(t, r.Create(ctx, sampleUser()), ErrDuplicateEmail)
	assert.ErrorIs(t, r.Create(ctx, sampleUser()), ErrDuplicateUsername)
	assert.NoError(t, r.Create(ctx, sampleUser()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoCreateBindsEveryColumn(t *testing.T) {
	r, mock := newMockRepo(t)
	u := sampleUser()

	args := make([]driver.Value, len(userRowColumns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0], args[1], args[2], args[3] = u.ID, u.Username, u.Email, u.PasswordHash
	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1,$2,$3,$4,$5,$6,$7,$8, $9,$10,$11,$12,$13,$14)`)).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoGet(t *testing.T) {
	r, mock := newMockRepo(t)
	u := sampleUser()
	byUsername := regexp.QuoteMeta(`FROM users WHERE username=$1`)

	mock.ExpectQuery(byUsername).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			u.ID, u.Username, u.Email, u.PasswordHash, "", "", "", string(u.Role),
			true, true, false, true, u.CreatedAt, u.UpdatedAt,
		))
	mock.ExpectQuery(byUsername).WithArgs("bob").WillReturnRows(sqlmock.NewRows(userRowColumns))

	got, err := r.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Role, got.Role)
	assert.False(t, got.AccountNonLocked)

	_, err = r.GetByUsername(context.Background(), "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoExists(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`)).
		WithArgs("alice@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := r.ExistsByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoUpdatePassword(t *testing.T) {
	r, mock := newMockRepo(t)
	update := regexp.QuoteMeta(`UPDATE users SET password_hash=$2, updated_at=$3 WHERE id=$1`)
	at := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)

	mock.ExpectExec(update).WithArgs("u1", "newhash", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WithArgs("nope", "newhash", at).WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, r.UpdatePassword(ctx, "u1", "newhash", at))
	assert.ErrorIs(t, r.UpdatePassword(ctx, "nope", "newhash", at), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
