package repo

import (
	"context"
	"errors"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/entity"
)

var ErrNotFound = errors.New("reset token not found")

// Store persists reset tokens. Save replaces whatever token the same user
// already holds, so concurrent requests still leave a single live token.
// Consume removes and returns the matching token in one step; of several
// concurrent callers with the same token only one gets it, the rest see
// ErrNotFound.
type Store interface {
	Save(ctx context.Context, t *entity.ResetToken) error
	Consume(ctx context.Context, token string) (*entity.ResetToken, error)
	DeleteByUserID(ctx context.Context, userID string) error
}
