package verify

import (
	"log/slog"
	"net/http"

	"voicescribe/internal/auth"
	resp "voicescribe/internal/lib/api/response"
	sl "voicescribe/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

// New consumes an email-verification link.
func New(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verify.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("token query parameter required", resp.CodeValidation))

			return
		}

		if err := authService.VerifyEmail(r.Context(), token); err != nil {
			log.Warn("email verification failed", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("invalid or expired verification token", resp.CodeValidation))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "email verified",
		})
	}
}
