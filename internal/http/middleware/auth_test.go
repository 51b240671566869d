package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/equicare/equicare-platform/internal/identity"
)

const authSecret = "test-secret"

func signToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	claims := actorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/appointments/1", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthInjectsActor(t *testing.T) {
	var got identity.Actor
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = identity.ActorFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	Auth(authSecret)(next).ServeHTTP(rec, authedRequest(signToken(t, authSecret, "42", "professional")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !ok {
		t.Fatal("actor missing from context")
	}
	if got.UserID != 42 || got.Role != identity.RoleProfessional {
		t.Fatalf("actor = %+v", got)
	}
}

func TestAuthRejections(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with invalid credentials")
	})
	handler := Auth(authSecret)(next)

	cases := map[string]*http.Request{
		"missing header": authedRequest(""),
		"wrong secret":   authedRequest(signToken(t, "other-secret", "42", "client")),
		"bad subject":    authedRequest(signToken(t, authSecret, "not-a-number", "client")),
		"bad role":       authedRequest(signToken(t, authSecret, "42", "superuser")),
	}
	for name, req := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with auth disabled")
	})
	rec := httptest.NewRecorder()
	Auth("")(next).ServeHTTP(rec, authedRequest(signToken(t, authSecret, "42", "client")))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
