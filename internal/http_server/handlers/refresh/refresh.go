package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"voicescribe/internal/auth"
	"voicescribe/internal/lib/api/cookie"
	resp "voicescribe/internal/lib/api/response"
	sl "voicescribe/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	AccessToken string `json:"accessToken"`
}

// New rotates the refresh token presented in the cookie. The previous
// token value is dead after a success; a reused value gets 401.
func New(
	log *slog.Logger,
	authService *auth.Auth,
	secureCookies bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		rawToken, ok := cookie.Refresh(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("refresh token missing", resp.CodeMissingToken))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, err := authService.Refresh(ctx, rawToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidRefreshToken) {
				cookie.ClearRefresh(w, secureCookies)

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid or expired refresh token", resp.CodeInvalidRefreshToken))

				return
			}

			log.Error("failed to refresh session", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		cookie.SetRefresh(w, pair.RefreshToken, pair.RefreshExpiresAt, secureCookies)

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			AccessToken: pair.AccessToken,
		})
	}
}
