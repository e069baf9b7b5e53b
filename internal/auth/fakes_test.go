package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/entity"
	resetrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/remote"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memUsers enforces the same uniqueness rules as the real stores.
type memUsers struct {
	mu   sync.Mutex
	byID map[string]*userentity.User
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]*userentity.User{}} }

func (m *memUsers) Create(ctx context.Context, u *userentity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.Username == u.Username {
			return userrepo.ErrDuplicateUsername
		}
		if o.Email == u.Email {
			return userrepo.ErrDuplicateEmail
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) find(match func(*userentity.User) bool) (*userentity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (m *memUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.GetByUsername(ctx, username)
	return err == nil, nil
}

func (m *memUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*userentity.User, error) {
	return m.find(func(u *userentity.User) bool { return u.ID == id })
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (*userentity.User, error) {
	return m.find(func(u *userentity.User) bool { return u.Username == username })
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*userentity.User, error) {
	return m.find(func(u *userentity.User) bool { return u.Email == email })
}

func (m *memUsers) UpdatePassword(ctx context.Context, id, hash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return userrepo.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = updatedAt
	return nil
}

func (m *memUsers) update(id string, fn func(u *userentity.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.byID[id])
}

func (m *memUsers) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

type memResetTokens struct {
	mu     sync.Mutex
	byUser map[string]*entity.ResetToken
	// beforeConsume runs outside the lock, letting tests line up callers.
	beforeConsume func()
}

func newMemResetTokens() *memResetTokens {
	return &memResetTokens{byUser: map[string]*entity.ResetToken{}}
}

func (m *memResetTokens) Save(ctx context.Context, t *entity.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.byUser[t.UserID] = &cp
	return nil
}

func (m *memResetTokens) Consume(ctx context.Context, tok string) (*entity.ResetToken, error) {
	if m.beforeConsume != nil {
		m.beforeConsume()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.byUser {
		if t.Token == tok {
			delete(m.byUser, k)
			return t, nil
		}
	}
	return nil, resetrepo.ErrNotFound
}

func (m *memResetTokens) DeleteByUserID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
	return nil
}

func (m *memResetTokens) all() []entity.ResetToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.ResetToken, 0, len(m.byUser))
	for _, t := range m.byUser {
		out = append(out, *t)
	}
	return out
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (m *memRevocations) Revoke(ctx context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = until
	return nil
}

func (m *memRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) CreateUser(ctx context.Context, p userentity.Profile, bearer string) (*userentity.Profile, error) {
	args := m.Called(p, bearer)
	out, _ := args.Get(0).(*userentity.Profile)
	return out, args.Error(1)
}

func (m *mockProfiles) GetUser(ctx context.Context, id, bearer string) (*userentity.Profile, error) {
	args := m.Called(id, bearer)
	out, _ := args.Get(0).(*userentity.Profile)
	return out, args.Error(1)
}

func (m *mockProfiles) UpdateUser(ctx context.Context, id string, p userentity.Profile, bearer string) (*userentity.Profile, error) {
	args := m.Called(id, p, bearer)
	out, _ := args.Get(0).(*userentity.Profile)
	return out, args.Error(1)
}

type mockNotifications struct{ mock.Mock }

func (m *mockNotifications) Send(ctx context.Context, n remote.Notification, bearer string) error {
	return m.Called(n, bearer).Error(0)
}

type sentMail struct{ to, subject, body string }

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *stubMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *stubMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

type harness struct {
	svc           *Service
	clock         *clock
	codec         *token.Codec
	users         *memUsers
	resetTokens   *memResetTokens
	revocations   *memRevocations
	profiles      *mockProfiles
	notifications *mockNotifications
	mailer        *stubMailer
}

// newHarness wires the service against in-memory stores and permissive
// remote mocks. opts tweaks the Options before construction.
func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock:         &clock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		users:         newMemUsers(),
		resetTokens:   newMemResetTokens(),
		revocations:   &memRevocations{revoked: map[string]time.Time{}},
		profiles:      &mockProfiles{},
		notifications: &mockNotifications{},
		mailer:        &stubMailer{},
	}
	codec, err := token.NewCodec(testSecret, "savings-group-auth", time.Hour, 24*time.Hour, token.WithClock(h.clock.now))
	require.NoError(t, err)
	h.codec = codec

	h.profiles.On("CreateUser", mock.Anything, mock.Anything).Return(&userentity.Profile{}, nil).Maybe()
	h.notifications.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()

	o := Options{MailFailureIsFatal: true, Now: h.clock.now}
	for _, fn := range opts {
		fn(&o)
	}
	users := user.NewUserService(h.users, user.BcryptHasher{Cost: bcrypt.MinCost}).WithClock(h.clock.now)
	h.svc, err = NewService(Deps{
		Users:         users,
		ResetTokens:   h.resetTokens,
		Codec:         codec,
		Revocations:   h.revocations,
		Profiles:      h.profiles,
		Notifications: h.notifications,
		Mailer:        h.mailer,
	}, o)
	require.NoError(t, err)
	return h
}

func aliceRequest() RegisterRequest {
	return RegisterRequest{
		Username:  "alice",
		Email:     "alice@x.com",
		Password:  "Passw0rd!",
		FirstName: "Alice",
		LastName:  "Liddell",
	}
}

func (h *harness) registerAlice(t *testing.T) *AuthResponse {
	t.Helper()
	resp, err := h.svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)
	return resp
}
