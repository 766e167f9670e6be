package login

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
	"voicescribe/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Message     string            `json:"message"`
	User        models.PublicUser `json:"user"`
	AccessToken string            `json:"accessToken"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	secureCookies bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to decode request", resp.CodeValidation))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if errors.As(err, &validateErr) {
				log.Info("rejected invalid login request")

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.ValidationError(validateErr))

				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, pair, err := authService.Login(ctx, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid email or password", resp.CodeInvalidCredentials))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		cookie.SetRefresh(w, pair.RefreshToken, pair.RefreshExpiresAt, secureCookies)

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			Message:     "login successful",
			User:        user.Public(),
			AccessToken: pair.AccessToken,
		})
	}
}
