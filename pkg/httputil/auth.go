package httputil

import (
	"net/http"
	"strings"

	"github.com/bakeflow/bakeflow-backend/pkg/actor"
	"github.com/bakeflow/bakeflow-backend/pkg/config"
	"github.com/bakeflow/bakeflow-backend/pkg/tenant"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims issued by the gateway.
// The token is the service's only source of actor and organization context.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	OrgID   string `json:"org_id"`
	OrgSlug string `json:"org_slug"`
}

// Auth verifies the bearer token and attaches actor and org context.
//
// Security: missing or invalid context returns 401 (fail-fast). Every
// repository query is scoped by the org from this context, so a request
// without it must never reach a handler.
// Exception: /health is allowed without a token for monitoring.
func Auth(cfg *config.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.Secret), nil
			}, jwt.WithIssuer(cfg.Issuer))
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			if claims.OrgID == "" {
				http.Error(w, `{"error":"missing organization context"}`, http.StatusUnauthorized)
				return
			}

			ctx := tenant.WithOrgContext(r.Context(), claims.OrgID, claims.OrgSlug)
			ctx = actor.WithActor(ctx, &actor.Actor{
				ID:    claims.UserID,
				Name:  claims.Name,
				Email: claims.Email,
				OrgID: claims.OrgID,
				Role:  claims.Role,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
