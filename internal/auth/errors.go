package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateUsername  = user.ErrDuplicateUsername
	ErrDuplicateEmail     = user.ErrDuplicateEmail
	ErrUserNotFound       = user.ErrUserNotFound
	ErrInvalidCredentials = user.ErrBadCredentials
	ErrAccountDisabled    = user.ErrDisabled
	ErrAccountLocked      = user.ErrLocked
	ErrAccountExpired     = user.ErrAccountExpired
	ErrCredentialsExpired = user.ErrCredentialsExpired
	ErrInvalidToken       = token.ErrInvalidToken
	ErrExpiredToken       = token.ErrExpiredToken
	ErrMalformedToken     = token.ErrMalformedToken
	// ErrRemoteService is surfaced only when a remote step is authoritative,
	// i.e. the reset mail.
	ErrRemoteService = errors.New("remote service unavailable")
)

// ValidationError lists every request field that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// resetTokenError marks failures of the password-reset token, which are
// client errors (400) unlike JWT failures (401). It unwraps to the base kind.
type resetTokenError struct {
	kind error
}

func (e *resetTokenError) Error() string {
	if errors.Is(e.kind, ErrExpiredToken) {
		return "reset token has expired"
	}
	return "invalid or expired reset token"
}

func (e *resetTokenError) Unwrap() error { return e.kind }

func remoteError(step string, err error) error {
	return fmt.Errorf("%s: %w", step, errors.Join(ErrRemoteService, err))
}
