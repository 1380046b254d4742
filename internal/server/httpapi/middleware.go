package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/server/auth"
	"github.com/zecrypt/vault/internal/server/models"
)

type contextKey string

const actorKey contextKey = "actor"

// actorFrom returns the authenticated actor placed by requireScope.
func actorFrom(ctx context.Context) models.Actor {
	actor, _ := ctx.Value(actorKey).(models.Actor)
	return actor
}

// requireScope validates the bearer token and enforces the required
// scope. A full token also passes a two-step check since enrollment
// endpoints stay reachable after login.
func (s *Server) requireScope(scope auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondError(w, common.ErrUnauthorized)
				return
			}

			claims, err := auth.ParseToken(token, s.jwtSecret)
			if err != nil {
				respondError(w, err)
				return
			}
			if claims.Scope != scope && claims.Scope != auth.ScopeFull {
				respondError(w, common.ErrUnauthorized)
				return
			}

			actor := models.Actor{
				UserID:    claims.UserID,
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
