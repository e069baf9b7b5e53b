package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUsername  = errors.New("username is already taken")
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrBadCredentials     = errors.New("invalid credentials")
	ErrLocked             = errors.New("account is locked")
	ErrDisabled           = errors.New("account is disabled")
	ErrAccountExpired     = errors.New("account has expired")
	ErrCredentialsExpired = errors.New("credentials have expired")
)

// NewUser carries the fields accepted at registration.
type NewUser struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// UserService owns the local identity records: creation, lookup, password
// checks and password changes.
type UserService struct {
	repo   userrepo.Store
	hasher PasswordHasher
	now    func() time.Time
}

func NewUserService(r userrepo.Store, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher, now: time.Now}
}

// WithClock returns a copy of s that stamps records with now.
func (s *UserService) WithClock(now func() time.Time) *UserService {
	cp := *s
	cp.now = now
	return &cp
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignupUser creates a USER account with all status flags set. The
// existence checks give friendly errors; the store's unique indexes decide
// concurrent races.
func (s *UserService) SignupUser(ctx context.Context, in NewUser) (*entity.User, error) {
	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)

	taken, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateUsername
	}
	taken, err = s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &entity.User{
		ID:                    utilities.NewKSUID(),
		Username:              username,
		Email:                 email,
		PasswordHash:          hash,
		FirstName:             strings.TrimSpace(in.FirstName),
		LastName:              strings.TrimSpace(in.LastName),
		PhoneNumber:           strings.TrimSpace(in.PhoneNumber),
		Role:                  entity.RoleUser,
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, mapRepoErr(err)
	}
	return u, nil
}

// Lookup resolves an identifier: anything containing "@" is an email,
// everything else a username.
func (s *UserService) Lookup(ctx context.Context, identifier string) (*entity.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrUserNotFound
	}
	var (
		u   *entity.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.repo.GetByEmail(ctx, NormalizeEmail(identifier))
	} else {
		u, err = s.repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return u, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return u, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return u, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return u, nil
}

// AuthenticatePassword looks the identifier up and checks the account flags.
// Only expired credentials are reported after the password comparison; the
// other flags are checked before it.
func (s *UserService) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.User, error) {
	u, err := s.Lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	switch {
	case !u.AccountNonLocked:
		return nil, ErrLocked
	case !u.Enabled:
		return nil, ErrDisabled
	case !u.AccountNonExpired:
		return nil, ErrAccountExpired
	}
	if u.PasswordHash == "" || !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !u.CredentialsNonExpired {
		return nil, ErrCredentialsExpired
	}
	return u, nil
}

// ChangePassword rehashes and stores a new password for the user.
func (s *UserService) ChangePassword(ctx context.Context, u *entity.User, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	if err := s.repo.UpdatePassword(ctx, u.ID, hash, now); err != nil {
		return mapRepoErr(err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = now
	return nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, userrepo.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, userrepo.ErrDuplicateUsername):
		return ErrDuplicateUsername
	case errors.Is(err, userrepo.ErrDuplicateEmail):
		return ErrDuplicateEmail
	default:
		return err
	}
}
