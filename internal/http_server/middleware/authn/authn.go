// Package authn is the bearer-token gate in front of every protected
// endpoint. It distinguishes expiry from any other rejection so clients
// know when a refresh is worth attempting.
package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"voicescribe/internal/lib/api/response"
	"voicescribe/internal/lib/jwt"

	"github.com/go-chi/render"
)

type ctxKey struct{}

// New verifies the Authorization header and attaches the resolved user
// ID to the request context.
func New(log *slog.Logger, secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, r, "authorization header missing", response.CodeUnauthenticated)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, r, "malformed authorization header", response.CodeUnauthenticated)
				return
			}

			userID, err := jwt.ParseAccessToken(token, secret)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					unauthorized(w, r, "access token expired", response.CodeTokenExpired)
					return
				}

				log.Debug("rejected access token", slog.String("reason", err.Error()))
				unauthorized(w, r, "invalid access token", response.CodeUnauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user attached by New.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg, code string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error(msg, code))
}
