package auth

import (
	"context"
	"net/http"

	"campus-loyalty/internal/models"
	"campus-loyalty/internal/utils"
)

type contextKey string

const actorKey contextKey = "actor"

// UserResolver loads a user by utorid. Backed by the ledger database; the
// middleware layers the Redis cache in front of it.
type UserResolver interface {
	ResolveUser(ctx context.Context, utorid string) (*models.User, error)
}

// Middleware verifies the bearer token, resolves the acting user, and
// stores them in the request context. The cache is optional.
func Middleware(secret string, resolver UserResolver, cache *ActorCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", err.Error()))
				return
			}

			claims, err := ParseToken(secret, rawToken)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "invalid token"))
				return
			}

			var actor *models.User
			if cache != nil {
				actor, _ = cache.Get(r.Context(), claims.Subject)
			}
			if actor == nil {
				actor, err = resolver.ResolveUser(r.Context(), claims.Subject)
				if err != nil {
					utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "unknown user"))
					return
				}
				if cache != nil {
					_ = cache.Set(r.Context(), actor)
				}
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on a minimum role. Must run after Middleware.
func RequireRole(min models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := Actor(r.Context())
			if actor == nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "no authenticated user"))
				return
			}
			if !actor.Role.AtLeast(min) {
				utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("forbidden", "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Actor returns the authenticated user stored by Middleware, or nil.
func Actor(ctx context.Context) *models.User {
	if actor, ok := ctx.Value(actorKey).(*models.User); ok {
		return actor
	}
	return nil
}
