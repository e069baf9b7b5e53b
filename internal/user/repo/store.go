package repo

import (
	"context"
	"errors"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateEmail    = errors.New("duplicate email")
)

// Store persists identity records. Implementations enforce username and
// email uniqueness themselves (unique indexes) and report violations as
// ErrDuplicateUsername / ErrDuplicateEmail from Create.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UpdatePassword(ctx context.Context, id, hash string, updatedAt time.Time) error
}
