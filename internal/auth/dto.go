package auth

import (
	"errors"
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// bcrypt ignores input past 72 bytes.
const maxPasswordLen = 72

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

func (r RegisterRequest) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Match(usernamePattern).Error("must be 3-20 letters, digits or underscores")),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(strongPassword)),
		validation.Field(&r.FirstName, validation.Length(0, 50)),
		validation.Field(&r.LastName, validation.Length(0, 50)),
		validation.Field(&r.PhoneNumber, validation.Match(phonePattern).Error("must be 10-15 digits, optionally prefixed with +")),
	))
}

type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.UsernameOrEmail, validation.Required),
		validation.Field(&r.Password, validation.Required),
	))
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	))
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r ResetPasswordRequest) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.By(strongPassword)),
	))
}

// AuthResponse is the token envelope returned by register, login and refresh.
// ExpiresIn is the access token lifetime in seconds.
type AuthResponse struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	FirstName    string      `json:"firstName,omitempty"`
	LastName     string      `json:"lastName,omitempty"`
	Role         entity.Role `json:"role"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
}

// strongPassword requires 8 or more characters with an upper-case letter, a
// lower-case letter and a digit.
func strongPassword(value any) error {
	s, _ := value.(string)
	if len(s) < 8 {
		return errors.New("must be at least 8 characters")
	}
	if len(s) > maxPasswordLen {
		return errors.New("must be at most 72 bytes")
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return errors.New("must contain an upper-case letter, a lower-case letter and a digit")
	}
	return nil
}

func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for k, fe := range errs {
		fields[k] = fe.Error()
	}
	return &ValidationError{Fields: fields}
}
