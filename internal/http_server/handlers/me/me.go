package me

import (
	"errors"
	"log/slog"
	"net/http"

	"voicescribe/internal/auth"
	resp "voicescribe/internal/lib/api/response"
	sl "voicescribe/internal/lib/logger"
	"voicescribe/internal/http_server/middleware/authn"
	"voicescribe/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

func New(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := authn.UserID(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("unauthenticated", resp.CodeUnauthenticated))

			return
		}

		user, err := authService.CurrentUser(r.Context(), userID)
		if err != nil {
			// The token can outlive its subject.
			if errors.Is(err, auth.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("user not found", resp.CodeUserNotFound))

				return
			}

			log.Error("failed to load current user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     user.Public(),
		})
	}
}
