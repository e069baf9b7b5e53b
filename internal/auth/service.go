// Package auth implements the account flows of the savings-group auth
// service: registration, login, token refresh and validation, password reset
// and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/entity"
	resetrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/remote"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/resilience"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// DefaultResetTokenTTL is how long a password-reset token stays usable.
const DefaultResetTokenTTL = time.Hour

const (
	welcomeTitle   = "Welcome to Savings Group"
	welcomeMessage = "Thank you for registering with us. Your account has been created successfully."

	resetRequestedTitle   = "Password Reset Requested"
	resetRequestedMessage = "A password reset was requested for your account. If this wasn't you, please secure your account."

	passwordChangedTitle   = "Password Changed Successfully"
	passwordChangedMessage = "Your password has been changed successfully. If you didn't make this change, please contact us immediately."

	resetMailSubject = "Password Reset Request"
)

// Deps are the collaborators of the Service. Users, ResetTokens and Codec are
// required; the rest fall back to inert implementations.
type Deps struct {
	Users         *user.UserService
	ResetTokens   resetrepo.Store
	Codec         *token.Codec
	Revocations   token.RevocationStore
	Profiles      remote.ProfileClient
	Notifications remote.NotificationClient
	Mailer        mail.Sender
	Logger        *zap.SugaredLogger
}

type Options struct {
	// NotificationToken is the service credential for the notification
	// service. Empty means a scope=internal token is minted per call.
	NotificationToken string
	// MailFailureIsFatal makes forgot-password fail when the reset mail
	// cannot be sent.
	MailFailureIsFatal bool
	ResetTokenTTL      time.Duration
	Now                func() time.Time
}

type Service struct {
	users         *user.UserService
	resetTokens   resetrepo.Store
	codec         *token.Codec
	revocations   token.RevocationStore
	profiles      remote.ProfileClient
	notifications remote.NotificationClient
	mailer        mail.Sender
	logger        *zap.SugaredLogger

	notificationToken string
	mailFatal         bool
	resetTTL          time.Duration
	now               func() time.Time
}

func NewService(d Deps, opts Options) (*Service, error) {
	if d.Users == nil || d.ResetTokens == nil || d.Codec == nil {
		return nil, errors.New("auth: users, reset tokens and codec are required")
	}
	s := &Service{
		users:             d.Users,
		resetTokens:       d.ResetTokens,
		codec:             d.Codec,
		revocations:       d.Revocations,
		profiles:          d.Profiles,
		notifications:     d.Notifications,
		mailer:            d.Mailer,
		logger:            d.Logger,
		notificationToken: opts.NotificationToken,
		mailFatal:         opts.MailFailureIsFatal,
		resetTTL:          opts.ResetTokenTTL,
		now:               opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.revocations == nil {
		s.revocations = token.NoopRevocationStore{}
	}
	if s.profiles == nil {
		s.profiles = remote.DisabledProfileClient{}
	}
	if s.notifications == nil {
		s.notifications = remote.DisabledNotificationClient{}
	}
	if s.mailer == nil {
		s.mailer = mail.NewLogSender(s.logger)
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Register creates the local identity, issues its tokens and then tries to
// propagate the profile and a welcome notification. Only the local write can
// fail the call.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	u, err := s.users.SignupUser(ctx, user.NewUser{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("user registered", "user_id", u.ID, "username", u.Username)

	resp, err := s.issue(u, "")
	if err != nil {
		return nil, err
	}
	s.propagateRegistration(ctx, u, resp.AccessToken)
	return resp, nil
}

func (s *Service) propagateRegistration(ctx context.Context, u *userentity.User, bearer string) {
	if _, err := s.profiles.CreateUser(ctx, u.Profile(), bearer); err != nil {
		switch {
		case errors.Is(err, remote.ErrRemoteDisabled):
			s.logger.Debugw("user service not configured, user created locally only", "user_id", u.ID)
		case errors.Is(err, resilience.ErrCircuitOpen):
			s.logger.Warnw("user service unavailable, user created locally only", "user_id", u.ID, "err", err)
		default:
			s.logger.Warnw("profile propagation failed", "user_id", u.ID, "err", err)
		}
		return
	}
	s.notify(ctx, remote.Notification{
		UserID:  u.ID,
		Title:   welcomeTitle,
		Message: welcomeMessage,
		Type:    remote.TypeWelcome,
	}, bearer)
}

// Login authenticates by username or email and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	u, err := s.users.AuthenticatePassword(ctx, req.UsernameOrEmail, req.Password)
	if err != nil {
		s.logger.Debugw("login rejected", "identifier", req.UsernameOrEmail, "err", err)
		return nil, err
	}
	s.logger.Infow("user logged in", "user_id", u.ID)
	return s.issue(u, "")
}

// RefreshToken issues a new access token. The refresh token is returned
// unchanged; refresh tokens are not rotated.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	u, _, err := s.verify(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, err
	}
	return s.issue(u, refreshToken)
}

// ValidateToken checks an access token and returns its owner's profile.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (*userentity.Profile, error) {
	u, _, err := s.verify(ctx, accessToken, token.TypeAccess)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

// verify runs the subject, owner and validity checks in that order and
// additionally rejects tokens of the wrong type or revoked ids.
func (s *Service) verify(ctx context.Context, raw, typ string) (*userentity.User, *token.Claims, error) {
	username, err := s.codec.ExtractSubject(raw)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if !s.codec.Validate(raw, u) {
		return nil, nil, ErrInvalidToken
	}
	claims, err := s.codec.Parse(raw)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	if claims.Type != typ {
		return nil, nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, typ)
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, nil, fmt.Errorf("%w: token revoked", ErrInvalidToken)
	}
	return u, claims, nil
}

// ForgotPassword replaces any reset token of the user with a new one and
// mails the reset link built from baseURL.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest, baseURL string) error {
	if err := req.Validate(); err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return err
	}

	if err := s.resetTokens.DeleteByUserID(ctx, u.ID); err != nil {
		return fmt.Errorf("delete previous reset token: %w", err)
	}
	now := s.now().UTC()
	rt := &entity.ResetToken{
		ID:         utilities.NewSnowflakeID(),
		Token:      utilities.NewOpaqueToken(),
		UserID:     u.ID,
		ExpiryDate: now.Add(s.resetTTL),
		CreatedAt:  now,
	}
	if err := s.resetTokens.Save(ctx, rt); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	s.logger.Infow("password reset requested", "user_id", u.ID)

	link := strings.TrimRight(baseURL, "/") + "/reset-password?token=" + rt.Token
	if err := s.mailer.Send(ctx, u.Email, resetMailSubject, resetMailBody(u, link, s.resetTTL)); err != nil {
		if s.mailFatal {
			s.logger.Warnw("reset mail failed", "user_id", u.ID, "err", err)
			return remoteError("send reset mail", err)
		}
		s.logger.Warnw("reset mail failed, continuing", "user_id", u.ID, "err", err)
	}

	s.notify(ctx, remote.Notification{
		UserID:  u.ID,
		Title:   resetRequestedTitle,
		Message: resetRequestedMessage,
		Type:    remote.TypeSecurityAlert,
	}, s.serviceBearer(u))
	return nil
}

// ResetPassword consumes a reset token and sets the new password. The token
// is removed before the password changes, so it works at most once even
// under concurrent requests; an expired one is gone after it is presented.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	rt, err := s.resetTokens.Consume(ctx, req.Token)
	if err != nil {
		if errors.Is(err, resetrepo.ErrNotFound) {
			return &resetTokenError{kind: ErrInvalidToken}
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	if rt.Expired(s.now()) {
		return &resetTokenError{kind: ErrExpiredToken}
	}

	u, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Warnw("reset token references missing user", "token_id", rt.ID, "user_id", rt.UserID)
		}
		return err
	}
	if err := s.users.ChangePassword(ctx, u, req.NewPassword); err != nil {
		return err
	}
	s.logger.Infow("password reset", "user_id", u.ID)

	s.notify(ctx, remote.Notification{
		UserID:  u.ID,
		Title:   passwordChangedTitle,
		Message: passwordChangedMessage,
		Type:    remote.TypeSecurityUpdate,
	}, s.serviceBearer(u))
	return nil
}

// Logout records the logout and, when a revocation store is configured,
// blocks the token until it would have expired. It never fails.
func (s *Service) Logout(ctx context.Context, raw string) {
	username, err := s.codec.ExtractSubject(raw)
	if err != nil {
		s.logger.Debugw("logout with unreadable token", "err", err)
		return
	}
	s.logger.Infow("user logged out", "username", username)

	claims, err := s.codec.Parse(raw)
	if err != nil {
		// expired or otherwise unusable already
		return
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		s.logger.Warnw("token revocation failed", "username", username, "err", err)
	}
}

func (s *Service) issue(u *userentity.User, refreshToken string) (*AuthResponse, error) {
	access, err := s.codec.IssueAccessToken(u, nil)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		refreshToken, err = s.codec.IssueRefreshToken(u)
		if err != nil {
			return nil, err
		}
	}
	return &AuthResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         u.Role,
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.codec.AccessTTL() / time.Second),
	}, nil
}

// serviceBearer returns the configured service credential or mints an
// internal-scope token for u.
func (s *Service) serviceBearer(u *userentity.User) string {
	if s.notificationToken != "" {
		return s.notificationToken
	}
	tok, err := s.codec.IssueAccessToken(u, map[string]any{"scope": "internal"})
	if err != nil {
		s.logger.Warnw("mint internal token failed", "user_id", u.ID, "err", err)
		return ""
	}
	return tok
}

// notify is best-effort.
func (s *Service) notify(ctx context.Context, n remote.Notification, bearer string) {
	if err := s.notifications.Send(ctx, n, bearer); err != nil {
		if errors.Is(err, remote.ErrRemoteDisabled) {
			s.logger.Debugw("notification skipped, service not configured", "user_id", n.UserID, "type", n.Type)
			return
		}
		s.logger.Warnw("notification failed", "user_id", n.UserID, "type", n.Type, "err", err)
	}
}

func resetMailBody(u *userentity.User, link string, ttl time.Duration) string {
	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	b.WriteString("You have requested to reset your password. Please use the link below to reset your password:\n\n")
	b.WriteString(link + "\n\n")
	fmt.Fprintf(&b, "This link will expire in %s.\n\n", humanDuration(ttl))
	b.WriteString("If you did not request a password reset, please ignore this email.\n\n")
	b.WriteString("Regards,\nSavings Group Team")
	return b.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
