package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/darshan-rambhia/netvault/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusAccepted} {
		w := httptest.NewRecorder()
		LoggingMiddleware(okHandler(status, "body")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.Equal(t, status, w.Code)
		assert.Equal(t, "body", w.Body.String())
	}
}

func TestStatusWriter_WriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	sw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, sw.status)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRecoveryMiddleware_Panic(t *testing.T) {
	for name, v := range map[string]any{"string": "boom", "error": assert.AnError} {
		t.Run(name, func(t *testing.T) {
			inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(v) })
			w := httptest.NewRecorder()
			RecoveryMiddleware(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, codeInternal, body.Error.Code)
			assert.Equal(t, "Internal Server Error", body.Error.Message)
		})
	}
}

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	RecoveryMiddleware(okHandler(http.StatusOK, "ok")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeadersMiddleware(okHandler(http.StatusOK, "")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRequireWorker(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("tok"), bcrypt.MinCost)
	require.NoError(t, err)
	workers, err := auth.NewWorkerAuthenticator([]string{string(hash)})
	require.NoError(t, err)
	handler := RequireWorker(workers)(okHandler(http.StatusOK, "in"))

	tests := []struct {
		header string
		want   int
	}{
		{"Bearer tok", http.StatusOK},
		{"Bearer other", http.StatusUnauthorized},
		{"Basic dG9rOg==", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, tt.header)
	}
}

func TestRequireUser_StoresPrincipal(t *testing.T) {
	users, err := auth.NewUserAuthenticator(testJWTSecret, "")
	require.NoError(t, err)
	want := auth.Principal{UserID: "u1", TenantID: "t1", Role: auth.RoleOperator}
	token, err := users.Issue(want, time.Hour)
	require.NoError(t, err)

	var got auth.Principal
	var found bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = auth.PrincipalFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	RequireUser(users)(inner).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestRequireUser_Rejects(t *testing.T) {
	users, err := auth.NewUserAuthenticator(testJWTSecret, "")
	require.NoError(t, err)
	called := false
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	w := httptest.NewRecorder()
	RequireUser(users)(inner).ServeHTTP(w, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer realm="netvault"`, w.Header().Get("WWW-Authenticate"))
}
