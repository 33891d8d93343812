package adminapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireBearer wraps next with a bearer-token check, grounded on
// agent/run.go's jwt.Parse/MapClaims validation pattern. Requests missing
// or carrying an invalid token receive 401 before next ever runs.
func requireBearer(secret []byte, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if _, ok := token.Claims.(jwt.MapClaims); !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
