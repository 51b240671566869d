package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/equicare/equicare-platform/internal/identity"
)

// actorClaims carries the acting user inside the bearer token. Subject is the
// user id, Role one of client/professional/admin.
type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth enforces an HMAC-signed JWT and places the acting user into the
// request context. Handlers downstream read it with identity.ActorFromContext
// and never see the raw token.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := actorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			userID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil || userID <= 0 {
				http.Error(w, "invalid subject", http.StatusUnauthorized)
				return
			}
			role := identity.Role(claims.Role)
			if !role.Valid() {
				http.Error(w, "invalid role", http.StatusUnauthorized)
				return
			}

			ctx := identity.WithActor(r.Context(), identity.Actor{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
