// Package token issues and verifies the service's HS256 access and refresh
// tokens.
package token

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// MinSecretLen is the shortest HMAC secret accepted (256 bits).
const MinSecretLen = 32

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrMalformedToken means the token could not be decoded or its signature
	// did not verify.
	ErrMalformedToken = errors.New("malformed token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrWeakSecret     = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLen)
)

var registered = []string{"sub", "iat", "exp", "jti", "typ", "iss", "role"}

// Claims is the typed view of a verified token.
type Claims struct {
	Subject   string
	ID        string
	Type      string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Codec is stateless after construction and safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, issuer string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	c := &Codec{
		secret:     append([]byte(nil), secret...),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// AccessTTL is the lifetime of access tokens issued by this codec.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// IssueAccessToken signs an access token for u. Extra claims are copied in
// first so they can never override the registered ones.
func (c *Codec) IssueAccessToken(u *entity.User, extra map[string]any) (string, error) {
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	c.stamp(claims, u.Username, TypeAccess, c.accessTTL)
	claims["role"] = string(u.Role)
	return c.sign(claims)
}

func (c *Codec) IssueRefreshToken(u *entity.User) (string, error) {
	claims := jwt.MapClaims{}
	c.stamp(claims, u.Username, TypeRefresh, c.refreshTTL)
	return c.sign(claims)
}

func (c *Codec) stamp(claims jwt.MapClaims, subject, typ string, ttl time.Duration) {
	now := c.now()
	for _, k := range registered {
		delete(claims, k)
	}
	claims["sub"] = subject
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	claims["jti"] = utilities.NewKSUID()
	claims["typ"] = typ
	if c.issuer != "" {
		claims["iss"] = c.issuer
	}
}

func (c *Codec) sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.secret, nil
}

// ExtractSubject verifies signature and structure and returns sub. Expiry is
// not checked, so an authentic but expired token still yields its subject.
func (c *Codec) ExtractSubject(raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	return sub, nil
}

// Parse fully verifies raw, including expiry and issuer.
func (c *Codec) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	mc := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, mc, c.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenMalformed) || errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claimsFromMap(mc), nil
}

// Validate reports whether raw is authentic, unexpired and issued for u.
func (c *Codec) Validate(raw string, u *entity.User) bool {
	if u == nil {
		return false
	}
	claims, err := c.Parse(raw)
	if err != nil {
		return false
	}
	return claims.Subject == u.Username
}

func claimsFromMap(mc jwt.MapClaims) *Claims {
	out := &Claims{Extra: map[string]any{}}
	out.Subject, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	out.ID, _ = mc["jti"].(string)
	out.Type, _ = mc["typ"].(string)
	out.Role, _ = mc["role"].(string)
	for k, v := range mc {
		if !slices.Contains(registered, k) {
			out.Extra[k] = v
		}
	}
	return out
}
