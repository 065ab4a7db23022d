package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestRoleElevated(t *testing.T) {
	assert.True(t, RoleAdmin.Elevated())
	assert.True(t, RoleOperator.Elevated())
	assert.False(t, RoleViewer.Elevated())
	assert.False(t, Role("").Elevated())

	assert.NoError(t, Principal{Role: RoleAdmin}.RequireElevated())
	assert.ErrorIs(t, Principal{Role: RoleViewer}.RequireElevated(), ErrForbidden)
}

func TestNewUserAuthenticator_ShortSecret(t *testing.T) {
	_, err := NewUserAuthenticator("short", "")
	assert.Error(t, err)
}

func TestUserAuthenticator_RoundTrip(t *testing.T) {
	a, err := NewUserAuthenticator(testSecret, "netvault-idp")
	require.NoError(t, err)

	want := Principal{UserID: "user-1", TenantID: "tenant-1", Role: RoleOperator}
	token, err := a.Issue(want, time.Hour)
	require.NoError(t, err)

	got, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUserAuthenticator_Rejects(t *testing.T) {
	a, err := NewUserAuthenticator(testSecret, "netvault-idp")
	require.NoError(t, err)
	p := Principal{UserID: "user-1", TenantID: "tenant-1", Role: RoleAdmin}

	expired, err := a.Issue(p, -time.Minute)
	require.NoError(t, err)

	other, err := NewUserAuthenticator("ffffffffffffffffffffffffffffffff", "netvault-idp")
	require.NoError(t, err)
	wrongKey, err := other.Issue(p, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewUserAuthenticator(testSecret, "someone-else")
	require.NoError(t, err)
	wrongIssuer, err := otherIssuer.Issue(p, time.Hour)
	require.NoError(t, err)

	noTenant, err := a.Issue(Principal{UserID: "user-1", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "netvault-idp"},
		TenantID:         "tenant-1",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TenantID:         "tenant-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"no tenant":    noTenant,
		"no expiry":    noExpiry,
		"alg none":     noneAlg,
		"garbage":      "not.a.token",
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestWorkerAuthenticator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("worker-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	w, err := NewWorkerAuthenticator([]string{string(hash)})
	require.NoError(t, err)

	assert.NoError(t, w.Authenticate("worker-secret"))
	assert.ErrorIs(t, w.Authenticate("wrong"), ErrUnauthorized)
	assert.ErrorIs(t, w.Authenticate(""), ErrUnauthorized)
}

func TestWorkerAuthenticator_RemembersVerifiedTokens(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("worker-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	w, err := NewWorkerAuthenticator([]string{string(hash)})
	require.NoError(t, err)
	clock := time.Unix(1_700_000_000, 0)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Authenticate("worker-secret"))
	assert.ErrorIs(t, w.Authenticate("wrong"), ErrUnauthorized)
	assert.Len(t, w.verified, 1, "failed tokens are not remembered")

	// With the hashes gone only the remembered digest can admit the token.
	w.hashes = nil
	clock = clock.Add(workerTokenTTL - time.Second)
	assert.NoError(t, w.Authenticate("worker-secret"))
	assert.ErrorIs(t, w.Authenticate("wrong"), ErrUnauthorized)

	clock = clock.Add(2 * time.Second)
	assert.ErrorIs(t, w.Authenticate("worker-secret"), ErrUnauthorized)
	assert.Empty(t, w.verified)
}

func TestNewWorkerAuthenticator_BadHash(t *testing.T) {
	_, err := NewWorkerAuthenticator([]string{"plaintext-token"})
	assert.ErrorContains(t, err, "worker token hash 0")
}

func TestHashWorkerToken(t *testing.T) {
	h, err := HashWorkerToken("abc")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("abc")))

	_, err = HashWorkerToken("")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	p := Principal{UserID: "u", TenantID: "t", Role: RoleViewer}
	got, ok := PrincipalFrom(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, p, got)
}
