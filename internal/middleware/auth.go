package myMiddleware

import (
	"net/http"
	"strings"

	"campuschat/internal/user"
)

// TokenValidator is what we need from the user service.
// This interface decouples 'middleware' from the service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (*user.SessionClaims, error)
}

type AuthMiddleware struct {
	validator  TokenValidator
	cookieName string
}

func NewAuthMiddleware(v TokenValidator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{validator: v, cookieName: cookieName}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		// Check Authorization Header
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		// Fallback: Check Query Param (used by the websocket dial)
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		// Fallback: Check the session cookie
		if tokenString == "" {
			if c, err := r.Cookie(am.cookieName); err == nil {
				tokenString = c.Value
			}
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		claims, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(user.NewContext(r.Context(), claims)))
	})
}
