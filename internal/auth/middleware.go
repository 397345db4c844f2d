package auth

import (
	"net/http"
	"strings"

	"gorm.io/gorm"

	"geomon/internal/models"
)

// JWTAuth authenticates the request from its bearer token. The token
// must verify as type=access and must resolve to an existing, active
// user row; claims alone are never trusted for authorization.
func JWTAuth(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimPrefix(h, "Bearer ")
			claims, err := VerifyIdentity(raw, TokenAccess)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			var u models.User
			if err := db.First(&u, "id = ?", claims.UserID).Error; err != nil {
				http.Error(w, "user not found", http.StatusUnauthorized)
				return
			}
			if !u.IsActive {
				http.Error(w, "user deactivated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &u)))
		})
	}
}

// RequireRole gates a route on the role hierarchy.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil || !HasPermission(u.Role, role) {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
