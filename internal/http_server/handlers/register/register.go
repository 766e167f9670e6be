package register

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
	"voicescribe/internal/lib/password"
	"voicescribe/internal/lib/verification"
	"voicescribe/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Nickname string `json:"nickname"`
}

type Response struct {
	resp.Response
	Message     string            `json:"message"`
	User        models.PublicUser `json:"user"`
	AccessToken string            `json:"accessToken"`
}

type Config struct {
	VerificationTTL    time.Duration
	VerificationSecret string
	BaseURL            string
	SecureCookies      bool
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	publisher verification.Publisher,
	cfg Config,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		// Collect every violated rule before answering, not just the first.
		var violations []string
		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if errors.As(err, &validateErr) {
				violations = append(violations, resp.ValidationError(validateErr).Error)
			}
		}
		violations = append(violations, password.Validate(req.Password)...)

		if len(violations) > 0 {
			log.Info("rejected invalid registration")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationMessages(violations))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, pair, err := authService.Register(ctx, req.Email, req.Password, req.Nickname)
		if err != nil {
			if errors.Is(err, auth.ErrEmailTaken) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("email already registered", resp.CodeEmailTaken))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		if publisher != nil {
			verification.SendVerificationEmail(
				ctx, log, publisher,
				user.ID, user.Email,
				cfg.BaseURL, cfg.VerificationSecret, cfg.VerificationTTL,
			)
		}

		cookie.SetRefresh(w, pair.RefreshToken, pair.RefreshExpiresAt, cfg.SecureCookies)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:    resp.OK(),
			Message:     "registration successful",
			User:        user.Public(),
			AccessToken: pair.AccessToken,
		})
	}
}
