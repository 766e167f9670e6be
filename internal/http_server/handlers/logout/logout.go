package logout

import (
	"context"
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
	Message string `json:"message"`
}

// New revokes the session behind the refresh cookie. Best-effort
// cleanup: the caller always gets 200, even with no cookie at all.
func New(
	log *slog.Logger,
	authService *auth.Auth,
	secureCookies bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if rawToken, ok := cookie.Refresh(r); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := authService.Logout(ctx, rawToken); err != nil {
				log.Error("failed to revoke refresh token", sl.Err(err))
			}
		}

		cookie.ClearRefresh(w, secureCookies)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "logged out",
		})
	}
}
