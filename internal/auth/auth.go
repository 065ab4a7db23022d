// Package auth authenticates operator UI users and automation workers.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthorized is returned when credentials are missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Role is a user's role within a tenant.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Elevated reports whether the role may trigger backups.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleOperator
}

// Principal is an authenticated user.
type Principal struct {
	UserID   string
	TenantID string
	Role     Role
}

// RequireElevated returns ErrForbidden unless p holds an elevated role.
func (p Principal) RequireElevated() error {
	if !p.Role.Elevated() {
		return fmt.Errorf("%w: role %q cannot perform this action", ErrForbidden, p.Role)
	}
	return nil
}

// Claims are the JWT claims of a user token.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}

// UserAuthenticator validates HS256 user tokens issued by the identity
// service.
type UserAuthenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewUserAuthenticator creates an authenticator for tokens signed with
// secret. An empty issuer accepts any issuer.
func NewUserAuthenticator(secret, issuer string) (*UserAuthenticator, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	return &UserAuthenticator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Authenticate parses and validates a token and returns its principal.
func (a *UserAuthenticator) Authenticate(token string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return a.secret, nil }, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if c.Subject == "" || c.TenantID == "" {
		return Principal{}, fmt.Errorf("%w: token lacks subject or tenant", ErrUnauthorized)
	}
	return Principal{UserID: c.Subject, TenantID: c.TenantID, Role: c.Role}, nil
}

// Issue signs a token for p valid for ttl. Used by tests and the CLI.
func (a *UserAuthenticator) Issue(p Principal, ttl time.Duration) (string, error) {
	now := a.now()
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: p.TenantID,
		Role:     p.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}

// workerTokenTTL is how long a verified worker token skips bcrypt.
const workerTokenTTL = 5 * time.Minute

// WorkerAuthenticator checks automation worker bearer tokens against bcrypt
// hashes from the configuration. Tokens that verified recently are
// remembered by SHA-256 digest; failures are never remembered.
type WorkerAuthenticator struct {
	hashes [][]byte
	now    func() time.Time

	mu       sync.Mutex
	verified map[[sha256.Size]byte]time.Time
}

// NewWorkerAuthenticator creates an authenticator accepting any token that
// matches one of hashes.
func NewWorkerAuthenticator(hashes []string) (*WorkerAuthenticator, error) {
	w := &WorkerAuthenticator{
		now:      time.Now,
		verified: make(map[[sha256.Size]byte]time.Time),
	}
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("worker token hash %d: %w", i, err)
		}
		w.hashes = append(w.hashes, []byte(h))
	}
	return w, nil
}

// Authenticate returns ErrUnauthorized unless token matches a known hash.
func (w *WorkerAuthenticator) Authenticate(token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	digest := sha256.Sum256([]byte(token))
	now := w.now()

	w.mu.Lock()
	until, ok := w.verified[digest]
	if ok && now.After(until) {
		delete(w.verified, digest)
		ok = false
	}
	w.mu.Unlock()
	if ok {
		return nil
	}

	for _, h := range w.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			w.mu.Lock()
			w.verified[digest] = now.Add(workerTokenTTL)
			w.mu.Unlock()
			return nil
		}
	}
	return ErrUnauthorized
}

// HashWorkerToken produces a bcrypt hash for the worker_token_hashes setting.
func HashWorkerToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
